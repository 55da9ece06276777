package vm

import (
	"unicode/utf8"

	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/value"
)

// location is a resolved storage slot: read through get, write through
// set. A nil set marks a read-only binding (object names, member
// functions, internal functions, temporaries).
type location struct {
	get func() value.Value
	set func(value.Value) error
	// name the trap mentions when a write is refused
	readOnlyName string
}

func mapLocation(scope map[string]value.Value, name string) location {
	return location{
		get: func() value.Value { return scope[name] },
		set: func(v value.Value) error { scope[name] = v; return nil },
	}
}

func readOnlyLocation(name string, v value.Value) location {
	return location{
		get:          func() value.Value { return v },
		readOnlyName: name,
	}
}

// evaluate resolves a variable reference to its current value. The
// result is a private copy: arrays and dicts have value semantics.
func (m *Machine) evaluate(ref value.Variable) (value.Value, error) {
	loc, err := m.locate(ref)
	if err != nil {
		return nil, err
	}
	return value.Copy(loc.get()), nil
}

// store resolves a variable reference and writes a private copy of val
// into it.
func (m *Machine) store(ref value.Variable, val value.Value) error {
	loc, err := m.locate(ref)
	if err != nil {
		return err
	}
	if loc.set == nil {
		return rerr(diagnostics.ErrR009, loc.readOnlyName)
	}
	return loc.set(value.Copy(val))
}

func (m *Machine) locate(ref value.Variable) (location, error) {
	switch v := ref.(type) {
	case value.DirectVar:
		loc, ok := m.resolveDirect(v.Name)
		if !ok {
			return location{}, rerr(diagnostics.ErrR001, v.Name)
		}
		return loc, nil
	case value.IndirectVar:
		return m.resolveIndirect(v)
	case value.ArrayVar:
		root, err := m.locateBase(v.Location)
		if err != nil {
			return location{}, err
		}
		return drill(root, v.Indexes)
	default:
		return location{}, rerr(diagnostics.ErrR006, "unresolvable variable reference")
	}
}

func (m *Machine) locateBase(base value.IndexableBase) (location, error) {
	switch b := base.(type) {
	case value.DirectVar:
		loc, ok := m.resolveDirect(b.Name)
		if !ok {
			return location{}, rerr(diagnostics.ErrR001, b.Name)
		}
		return loc, nil
	case value.IndirectVar:
		return m.resolveIndirect(b)
	case value.TempValue:
		return readOnlyLocation("a temporary value", b.Val), nil
	default:
		return location{}, rerr(diagnostics.ErrR006, "unresolvable index base")
	}
}

// resolveDirect searches, in order: the top frame's scopes innermost
// outward; its instance stack top-down, instance variables before
// object member functions; older frames in reverse; the global object
// name table; the internal function table.
func (m *Machine) resolveDirect(name string) (location, bool) {
	if loc, ok := m.frameDirect(m.topFrame, name); ok {
		return loc, true
	}
	for i := len(m.frames) - 1; i >= 0; i-- {
		if loc, ok := m.frameDirect(m.frames[i], name); ok {
			return loc, true
		}
	}
	if id, ok := m.global.ObjectNames[name]; ok {
		return readOnlyLocation(name, value.Number(id)), true
	}
	if _, ok := m.binding(name); ok {
		return readOnlyLocation(name, &value.Func{Internal: true, InternalName: name}), true
	}
	return location{}, false
}

func (m *Machine) frameDirect(f *Frame, name string) (location, bool) {
	for i := len(f.Scopes) - 1; i >= 0; i-- {
		scope := f.Scopes[i]
		if _, ok := scope[name]; ok {
			return mapLocation(scope, name), true
		}
	}
	for i := len(f.InstanceStack) - 1; i >= 0; i-- {
		inst, ok := m.global.Instances[f.InstanceStack[i]]
		if !ok {
			continue
		}
		if _, ok := inst.Variables[name]; ok {
			return mapLocation(inst.Variables, name), true
		}
		if spec, ok := m.global.Objects[inst.ObjType]; ok {
			if fn, ok := spec.Functions[name]; ok {
				bound := &value.Func{UserDef: fn, BoundInstID: inst.Ident}
				return readOnlyLocation(name, bound), true
			}
		}
	}
	return location{}, false
}

func (m *Machine) resolveIndirect(ref value.IndirectVar) (location, error) {
	inst, ok := m.global.Instances[ref.InstID]
	if !ok {
		return location{}, rerr(diagnostics.ErrR002, ref.InstID)
	}
	if _, ok := inst.Variables[ref.Name]; ok {
		return mapLocation(inst.Variables, ref.Name), nil
	}
	if spec, ok := m.global.Objects[inst.ObjType]; ok {
		if fn, ok := spec.Functions[ref.Name]; ok {
			bound := &value.Func{UserDef: fn, BoundInstID: inst.Ident}
			return readOnlyLocation(ref.Name, bound), nil
		}
	}
	return location{}, rerr(diagnostics.ErrR001, ref.Name)
}

// drill walks an index chain from a resolved root: numeric indices for
// arrays, numeric or string keys for dicts, and a final numeric index
// into a text's code points.
func drill(loc location, indexes []value.Value) (location, error) {
	for i, index := range indexes {
		cur := loc.get()
		switch c := cur.(type) {
		case *value.Array:
			n, ok := index.(value.Number)
			if !ok {
				return location{}, rerr(diagnostics.ErrR006, "array index must be a number")
			}
			at := int(round(float64(n)))
			if at < 0 || at >= len(c.Elems) {
				return location{}, rerr(diagnostics.ErrR005, at)
			}
			loc = arrayLocation(c, at, loc.readOnlyName)
		case *value.Dict:
			key, ok := value.KeyOf(index)
			if !ok {
				return location{}, rerr(diagnostics.ErrR006, "dict key must be a string or a number")
			}
			if _, found := c.Get(key); !found {
				return location{}, rerr(diagnostics.ErrR005, index.Inspect())
			}
			loc = dictLocation(c, key, loc.readOnlyName)
		case value.Text:
			if i != len(indexes)-1 {
				return location{}, rerr(diagnostics.ErrR006, "cannot index into a character of a string")
			}
			n, ok := index.(value.Number)
			if !ok {
				return location{}, rerr(diagnostics.ErrR006, "string index must be a number")
			}
			return textLocation(loc, c, int(round(float64(n))))
		default:
			return location{}, rerr(diagnostics.ErrR006, "tried to index into a non-indexable value")
		}
	}
	return loc, nil
}

func arrayLocation(arr *value.Array, at int, readOnlyName string) location {
	loc := location{
		get:          func() value.Value { return arr.Elems[at] },
		set:          func(v value.Value) error { arr.Elems[at] = v; return nil },
		readOnlyName: readOnlyName,
	}
	if readOnlyName != "" {
		loc.set = nil
	}
	return loc
}

func dictLocation(dict *value.Dict, key value.HashableKey, readOnlyName string) location {
	loc := location{
		get: func() value.Value {
			v, _ := dict.Get(key)
			return v
		},
		set:          func(v value.Value) error { dict.Set(key, v); return nil },
		readOnlyName: readOnlyName,
	}
	if readOnlyName != "" {
		loc.set = nil
	}
	return loc
}

// textLocation indexes one code point of a string. Reading yields a
// one-code-point Text; writing requires one and rebuilds the string
// through the parent location.
func textLocation(parent location, text value.Text, at int) (location, error) {
	runes := []rune(string(text))
	if at < 0 || at >= len(runes) {
		return location{}, rerr(diagnostics.ErrR005, at)
	}
	loc := location{
		get: func() value.Value { return value.Text(string(runes[at])) },
	}
	if parent.set != nil {
		loc.set = func(v value.Value) error {
			if err := checkTextAssign(v); err != nil {
				return err
			}
			ch := []rune(string(v.(value.Text)))
			out := make([]rune, len(runes))
			copy(out, runes)
			out[at] = ch[0]
			return parent.set(value.Text(string(out)))
		}
	} else {
		loc.readOnlyName = parent.readOnlyName
	}
	return loc, nil
}

// checkTextAssign enforces the single-code-point rule for string index
// assignment.
func checkTextAssign(v value.Value) error {
	t, ok := v.(value.Text)
	if !ok {
		return rerr(diagnostics.ErrR006, "string index assignment requires a string")
	}
	if utf8.RuneCountInString(string(t)) != 1 {
		return rerr(diagnostics.ErrR006, "string index assignment requires exactly one character")
	}
	return nil
}
