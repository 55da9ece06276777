// Package builtins provides the host-bound internal functions the
// language calls by name: print/len/keys, the metaprogramming surface
// (parse_text, compile_text, compile_ast), and the instance
// operations.
package builtins

import (
	"fmt"
	"io"
	"regexp"
	"unicode/utf8"

	"github.com/vexlang/vex/internal/compiler"
	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/parser"
	"github.com/vexlang/vex/internal/value"
	"github.com/vexlang/vex/internal/vm"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z_0-9]*$`)

func rerr(code diagnostics.Code, args ...any) error {
	return diagnostics.New(diagnostics.PhaseRuntime, code, 0, 0, args...)
}

// Register installs the default bindings on a machine. The parser is
// used by parse_text and compile_text; out receives print output.
func Register(m *vm.Machine, p *parser.Parser, out io.Writer) {
	m.Bind("print", bindPrint(out))
	m.Bind("len", bindLen)
	m.Bind("keys", bindKeys)
	m.Bind("parse_text", bindParseText(p))
	m.Bind("compile_text", bindCompileText(p))
	m.Bind("compile_ast", bindCompileAST)
	m.Bind("instance_create", bindInstanceCreate)
	m.Bind("instance_add_variable", bindInstanceAddVariable)
	m.BindNoReturn("instance_execute", bindInstanceExecute)
}

func bindPrint(out io.Writer) vm.Binding {
	return func(_ *vm.Machine, args []value.Value, _ bool) (value.Value, bool, error) {
		for _, arg := range args {
			s, err := value.Format(arg)
			if err != nil {
				return nil, false, err
			}
			fmt.Fprintln(out, s)
		}
		return value.Number(0), false, nil
	}
}

func bindLen(_ *vm.Machine, args []value.Value, _ bool) (value.Value, bool, error) {
	if len(args) != 1 {
		return nil, false, rerr(diagnostics.ErrR007, 1, len(args))
	}
	switch v := args[0].(type) {
	case value.Text:
		return value.Number(utf8.RuneCountInString(string(v))), false, nil
	case *value.Array:
		return value.Number(len(v.Elems)), false, nil
	case *value.Dict:
		return value.Number(v.Len()), false, nil
	default:
		return nil, false, rerr(diagnostics.ErrR006, "tried to take the length of a lengthless value")
	}
}

func bindKeys(_ *vm.Machine, args []value.Value, _ bool) (value.Value, bool, error) {
	if len(args) != 1 {
		return nil, false, rerr(diagnostics.ErrR007, 1, len(args))
	}
	switch v := args[0].(type) {
	case *value.Array:
		elems := make([]value.Value, len(v.Elems))
		for i := range v.Elems {
			elems[i] = value.Number(i)
		}
		return &value.Array{Elems: elems}, false, nil
	case *value.Dict:
		keys := v.Keys()
		elems := make([]value.Value, len(keys))
		for i, k := range keys {
			elems[i] = k.Value()
		}
		return &value.Array{Elems: elems}, false, nil
	default:
		return nil, false, rerr(diagnostics.ErrR006, "tried to take the keys of a keyless value")
	}
}

func bindParseText(p *parser.Parser) vm.Binding {
	return func(_ *vm.Machine, args []value.Value, _ bool) (value.Value, bool, error) {
		src, err := oneText(args, "parse_text")
		if err != nil {
			return nil, false, err
		}
		root, err := p.ParseText(src)
		if err != nil {
			return nil, false, err
		}
		return astToDict(root), false, nil
	}
}

func bindCompileText(p *parser.Parser) vm.Binding {
	return func(_ *vm.Machine, args []value.Value, _ bool) (value.Value, bool, error) {
		src, err := oneText(args, "compile_text")
		if err != nil {
			return nil, false, err
		}
		root, err := p.ParseText(src)
		if err != nil {
			return nil, false, err
		}
		code, err := compiler.Compile(root)
		if err != nil {
			return nil, false, err
		}
		return wrapCode(code), false, nil
	}
}

func bindCompileAST(_ *vm.Machine, args []value.Value, _ bool) (value.Value, bool, error) {
	if len(args) != 1 {
		return nil, false, rerr(diagnostics.ErrR007, 1, len(args))
	}
	dict, ok := args[0].(*value.Dict)
	if !ok {
		return nil, false, rerr(diagnostics.ErrR006, "compile_ast requires a dict")
	}
	root, err := dictToAst(dict)
	if err != nil {
		return nil, false, err
	}
	code, err := compiler.Compile(root)
	if err != nil {
		return nil, false, err
	}
	return wrapCode(code), false, nil
}

// wrapCode turns a freshly compiled buffer into a callable Func value.
func wrapCode(code []byte) *value.Func {
	return &value.Func{UserDef: &value.FuncSpec{
		Code:    code,
		StartPC: 0,
		EndPC:   len(code),
	}}
}

func bindInstanceCreate(m *vm.Machine, args []value.Value, _ bool) (value.Value, bool, error) {
	if len(args) != 1 {
		return nil, false, rerr(diagnostics.ErrR007, 1, len(args))
	}
	idVal, ok := args[0].(value.Number)
	if !ok {
		return nil, false, rerr(diagnostics.ErrR006, "instance_create requires an object id")
	}
	g := m.Global()
	objectID := roundID(idVal)
	object, ok := g.Objects[objectID]
	if !ok {
		return nil, false, rerr(diagnostics.ErrR003, objectID)
	}
	instanceID := g.NextInstanceID
	g.Instances[instanceID] = &vm.Instance{
		ObjType: objectID,
		Ident:   instanceID,
		Variables: map[string]value.Value{
			"x": value.Number(0),
			"y": value.Number(0),
		},
	}
	g.InstancesByType[objectID] = append(g.InstancesByType[objectID], instanceID)
	g.NextInstanceID++

	frameMoved := false
	if create, ok := object.Functions["create"]; ok {
		if err := m.CallUserFunction(&value.Func{UserDef: create}, nil, false); err != nil {
			return nil, false, err
		}
		m.PushInstanceContext(instanceID)
		frameMoved = true
	}
	return value.Number(instanceID), frameMoved, nil
}

func bindInstanceAddVariable(m *vm.Machine, args []value.Value, _ bool) (value.Value, bool, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, false, rerr(diagnostics.ErrR007, 2, len(args))
	}
	idVal, ok := args[0].(value.Number)
	if !ok {
		return nil, false, rerr(diagnostics.ErrR006, "instance_add_variable requires an instance id")
	}
	name, ok := args[1].(value.Text)
	if !ok {
		return nil, false, rerr(diagnostics.ErrR006, "instance_add_variable requires a variable name")
	}
	if !identRe.MatchString(string(name)) {
		return nil, false, rerr(diagnostics.ErrR006, "variable name is not a valid identifier")
	}
	var initial value.Value = value.Number(0)
	if len(args) == 3 {
		initial = args[2]
	}
	inst, ok := m.Global().Instances[roundID(idVal)]
	if !ok {
		return nil, false, rerr(diagnostics.ErrR002, roundID(idVal))
	}
	if _, exists := inst.Variables[string(name)]; exists {
		return nil, false, rerr(diagnostics.ErrR008, string(name))
	}
	inst.Variables[string(name)] = value.Copy(initial)
	return value.Number(0), false, nil
}

func bindInstanceExecute(m *vm.Machine, args []value.Value, isExpr bool) (value.Value, bool, error) {
	if len(args) < 2 {
		return nil, false, rerr(diagnostics.ErrR007, 2, len(args))
	}
	idVal, ok := args[0].(value.Number)
	if !ok {
		return nil, false, rerr(diagnostics.ErrR006, "instance_execute requires an instance id")
	}
	fn, ok := args[1].(*value.Func)
	if !ok {
		return nil, false, rerr(diagnostics.ErrR006, "instance_execute requires a function")
	}
	if fn.Internal {
		return nil, false, rerr(diagnostics.ErrR006, "instance_execute cannot dispatch an internal function")
	}
	instanceID := roundID(idVal)
	if _, ok := m.Global().Instances[instanceID]; !ok {
		return nil, false, rerr(diagnostics.ErrR002, instanceID)
	}
	if err := m.CallUserFunction(fn, args[2:], isExpr); err != nil {
		return nil, false, err
	}
	m.PushInstanceContext(instanceID)
	return value.Number(0), true, nil
}

func oneText(args []value.Value, name string) (string, error) {
	if len(args) != 1 {
		return "", rerr(diagnostics.ErrR007, 1, len(args))
	}
	s, ok := args[0].(value.Text)
	if !ok {
		return "", rerr(diagnostics.ErrR006, name+" requires a string")
	}
	return string(s), nil
}

func roundID(n value.Number) int64 {
	if n < 0 {
		return int64(float64(n) - 0.5)
	}
	return int64(float64(n) + 0.5)
}
