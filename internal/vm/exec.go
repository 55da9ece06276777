package vm

import (
	"fmt"
	"math"

	"github.com/vexlang/vex/internal/compiler"
	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/value"
)

const maxScopeDepth = 0x10000

func round(f float64) int64 {
	return int64(math.Round(f))
}

// exec dispatches one opcode.
func (m *Machine) exec(op byte) error {
	switch op {
	case compiler.OP_NOP:
		return nil
	case compiler.OP_PUSHFLT:
		m.topFrame.push(value.Number(m.pullF64()))
	case compiler.OP_PUSHSHORT:
		m.topFrame.push(value.Number(m.pullU16()))
	case compiler.OP_PUSHSTR:
		m.topFrame.push(value.Text(m.readString()))
	case compiler.OP_PUSHNAME:
		m.topFrame.push(value.Var{Ref: value.DirectVar{Name: m.readString()}})
	case compiler.OP_PUSHVAR:
		name := m.readString()
		val, err := m.evaluate(value.DirectVar{Name: name})
		if err != nil {
			return err
		}
		m.topFrame.push(val)
	case compiler.OP_DECLVAR:
		name, err := m.popName()
		if err != nil {
			return err
		}
		scope := m.topFrame.topScope()
		if _, exists := scope[name]; exists {
			return rerr(diagnostics.ErrR008, name)
		}
		scope[name] = value.Number(0)
	case compiler.OP_DECLFAR:
		return m.execDeclFar()
	case compiler.OP_BINSTATE:
		return m.execBinstate()
	case compiler.OP_BINOP:
		return m.execBinop()
	case compiler.OP_UNOP:
		return m.execUnop()
	case compiler.OP_INDIRECTION:
		return m.execIndirection()
	case compiler.OP_EVALUATION:
		return m.execEvaluation()
	case compiler.OP_FUNCCALL:
		return m.handleCall(false)
	case compiler.OP_FUNCEXPR:
		return m.handleCall(true)
	case compiler.OP_SCOPE:
		f := m.topFrame
		f.Scopes = append(f.Scopes, map[string]value.Value{})
		if len(f.Scopes) >= maxScopeDepth {
			return rerr(diagnostics.ErrR011, len(f.Scopes))
		}
	case compiler.OP_UNSCOPE:
		target := int(m.pullU16())
		m.drainScopes(target + 1)
	case compiler.OP_BREAK:
		return m.execBreak()
	case compiler.OP_CONTINUE:
		return m.execContinue()
	case compiler.OP_IF:
		elen := int(m.pullU64())
		clen := int(m.pullU64())
		pc := m.topFrame.PC
		m.pushController(ControlData{
			Kind:       compiler.OP_IF,
			Points:     []int{pc + elen, pc + elen + clen},
			ScopeDepth: len(m.topFrame.Scopes),
		})
	case compiler.OP_IFELSE:
		elen := int(m.pullU64())
		clen := int(m.pullU64())
		c2len := int(m.pullU64())
		pc := m.topFrame.PC
		m.pushController(ControlData{
			Kind:       compiler.OP_IFELSE,
			Points:     []int{pc + elen, pc + elen + clen, pc + elen + clen + c2len},
			ScopeDepth: len(m.topFrame.Scopes),
		})
	case compiler.OP_WHILE:
		elen := int(m.pullU64())
		clen := int(m.pullU64())
		pc := m.topFrame.PC
		m.pushController(ControlData{
			Kind:       compiler.OP_WHILE,
			Points:     []int{pc, pc + elen, pc + elen + clen},
			ScopeDepth: len(m.topFrame.Scopes),
		})
	case compiler.OP_FOR:
		elen := int(m.pullU64())
		postlen := int(m.pullU64())
		clen := int(m.pullU64())
		pc := m.topFrame.PC
		m.pushController(ControlData{
			Kind:       compiler.OP_FOR,
			Points:     []int{pc, pc + elen, pc + elen + postlen, pc + elen + postlen + clen},
			ScopeDepth: len(m.topFrame.Scopes),
		})
	case compiler.OP_WITH:
		return m.execWith()
	case compiler.OP_COLLECTARRAY:
		n := int(m.pullU16())
		if len(m.topFrame.Stack) < n {
			return rerr(diagnostics.ErrR006, "not enough values on the operand stack")
		}
		elems := make([]value.Value, n)
		for i := n - 1; i >= 0; i-- {
			v, _ := m.topFrame.pop()
			elems[i] = v
		}
		m.topFrame.push(&value.Array{Elems: elems})
	case compiler.OP_COLLECTDICT:
		return m.execCollectDict()
	case compiler.OP_ARRAYEXPR:
		return m.execArrayExpr()
	case compiler.OP_FUNCDEF:
		name, spec := m.readFunction()
		scope := m.topFrame.topScope()
		if _, exists := scope[name]; exists {
			return rerr(diagnostics.ErrR008, name)
		}
		scope[name] = &value.Func{UserDef: spec}
	case compiler.OP_LAMBDA:
		return m.execLambda()
	case compiler.OP_OBJDEF:
		return m.execObjdef()
	case compiler.OP_EXIT:
		m.popFrame(nil)
	case compiler.OP_RETURN:
		return m.execReturn()
	case compiler.OP_LINENUM:
		m.topFrame.CurrLine = int(m.pullU64())
	default:
		return rerr(diagnostics.ErrR006, fmt.Sprintf("unknown operation 0x%02X", op))
	}
	return nil
}

func (m *Machine) pushController(c ControlData) {
	m.topFrame.ControlStack = append(m.topFrame.ControlStack, c)
}

func (m *Machine) execDeclFar() error {
	name, err := m.popName()
	if err != nil {
		return err
	}
	f := m.topFrame
	if len(f.InstanceStack) == 0 {
		return rerr(diagnostics.ErrR006, "far declaration outside of instance context")
	}
	id := f.InstanceStack[len(f.InstanceStack)-1]
	inst, ok := m.global.Instances[id]
	if !ok {
		return rerr(diagnostics.ErrR002, id)
	}
	if _, exists := inst.Variables[name]; exists {
		return rerr(diagnostics.ErrR008, name)
	}
	inst.Variables[name] = value.Number(0)
	return nil
}

func (m *Machine) execBinstate() error {
	sub := m.pullByte()
	rhs, err := m.popValue()
	if err != nil {
		return err
	}
	target, err := m.popValue()
	if err != nil {
		return err
	}
	vr, ok := target.(value.Var)
	if !ok {
		return rerr(diagnostics.ErrR006, "assignment target is not a variable")
	}
	if sub == 0x00 {
		return m.store(vr.Ref, rhs)
	}
	initial, err := m.evaluate(vr.Ref)
	if err != nil {
		return err
	}
	updated, err := value.BinaryOp(sub, initial, rhs)
	if err != nil {
		return err
	}
	return m.store(vr.Ref, updated)
}

func (m *Machine) execBinop() error {
	sub := m.pullByte()
	right, err := m.popValue()
	if err != nil {
		return err
	}
	left, err := m.popValue()
	if err != nil {
		return err
	}
	result, err := value.BinaryOp(sub, left, right)
	if err != nil {
		return err
	}
	m.topFrame.push(result)
	return nil
}

func (m *Machine) execUnop() error {
	sub := m.pullByte()
	v, err := m.popValue()
	if err != nil {
		return err
	}
	result, err := value.UnaryOp(sub, v)
	if err != nil {
		return err
	}
	m.topFrame.push(result)
	return nil
}

func (m *Machine) execIndirection() error {
	name, err := m.popName()
	if err != nil {
		return err
	}
	v, err := m.popValue()
	if err != nil {
		return err
	}
	n, ok := v.(value.Number)
	if !ok {
		return rerr(diagnostics.ErrR004)
	}
	id := round(float64(n))
	if _, ok := m.global.Instances[id]; !ok {
		return rerr(diagnostics.ErrR002, id)
	}
	m.topFrame.push(value.Var{Ref: value.IndirectVar{InstID: id, Name: name}})
	return nil
}

func (m *Machine) execEvaluation() error {
	v, err := m.popValue()
	if err != nil {
		return err
	}
	vr, ok := v.(value.Var)
	if !ok {
		return rerr(diagnostics.ErrR006, "tried to evaluate a non-variable value")
	}
	switch vr.Ref.(type) {
	case value.IndirectVar, value.ArrayVar:
		val, err := m.evaluate(vr.Ref)
		if err != nil {
			return err
		}
		m.topFrame.push(val)
		return nil
	default:
		return rerr(diagnostics.ErrR006, "tried to evaluate a direct variable reference")
	}
}

func (m *Machine) execWith() error {
	target, err := m.popNumber()
	if err != nil {
		return err
	}
	id := round(target)
	blen := int(m.pullU64())
	pc := m.topFrame.PC

	if _, ok := m.global.Instances[id]; ok {
		m.topFrame.InstanceStack = append(m.topFrame.InstanceStack, id)
		m.pushController(ControlData{
			Kind:       compiler.OP_WITH,
			Points:     []int{pc, pc + blen},
			ScopeDepth: len(m.topFrame.Scopes),
			Pending:    []int64{},
		})
		return nil
	}
	if list, ok := m.global.InstancesByType[id]; ok {
		if len(list) == 0 {
			// no instances of this object: skip the block entirely
			m.topFrame.PC += blen
			return nil
		}
		m.topFrame.InstanceStack = append(m.topFrame.InstanceStack, list[0])
		pending := make([]int64, len(list)-1)
		copy(pending, list[1:])
		m.pushController(ControlData{
			Kind:       compiler.OP_WITH,
			Points:     []int{pc, pc + blen},
			ScopeDepth: len(m.topFrame.Scopes),
			Pending:    pending,
		})
		return nil
	}
	return rerr(diagnostics.ErrR002, id)
}

func (m *Machine) execCollectDict() error {
	n := int(m.pullU16())
	if len(m.topFrame.Stack) < n*2 {
		return rerr(diagnostics.ErrR006, "not enough values on the operand stack")
	}
	dict := value.NewDict()
	type entry struct {
		key value.HashableKey
		val value.Value
	}
	entries := make([]entry, n)
	for i := n - 1; i >= 0; i-- {
		v, _ := m.topFrame.pop()
		k, _ := m.topFrame.pop()
		key, ok := value.KeyOf(k)
		if !ok {
			return rerr(diagnostics.ErrR006, "dictionary key must be a string or a number")
		}
		entries[i] = entry{key: key, val: v}
	}
	for _, e := range entries {
		dict.Set(e.key, e.val)
	}
	m.topFrame.push(dict)
	return nil
}

func (m *Machine) execArrayExpr() error {
	index, err := m.popValue()
	if err != nil {
		return err
	}
	base, err := m.popValue()
	if err != nil {
		return err
	}
	switch b := base.(type) {
	case value.Var:
		switch ref := b.Ref.(type) {
		case value.ArrayVar:
			m.topFrame.push(value.Var{Ref: ref.WithIndex(index)})
		case value.DirectVar:
			m.topFrame.push(value.Var{Ref: value.ArrayVar{Location: ref, Indexes: []value.Value{index}}})
		case value.IndirectVar:
			m.topFrame.push(value.Var{Ref: value.ArrayVar{Location: ref, Indexes: []value.Value{index}}})
		default:
			return rerr(diagnostics.ErrR006, "tried to index a non-indexable reference")
		}
	case *value.Array, *value.Dict, value.Text:
		m.topFrame.push(value.Var{Ref: value.ArrayVar{
			Location: value.TempValue{Val: base},
			Indexes:  []value.Value{index},
		}})
	default:
		return rerr(diagnostics.ErrR006, "tried to index a non-indexable value")
	}
	return nil
}

func (m *Machine) execLambda() error {
	captc := int(m.pullU16())
	if len(m.topFrame.Stack) < captc*2 {
		return rerr(diagnostics.ErrR006, "not enough values on the operand stack")
	}
	captured := map[string]value.Value{}
	for i := 0; i < captc; i++ {
		v, _ := m.topFrame.pop()
		nameVal, _ := m.topFrame.pop()
		name, ok := nameVal.(value.Text)
		if !ok {
			return rerr(diagnostics.ErrR006, "lambda capture name was not a string")
		}
		if _, exists := captured[string(name)]; exists {
			return rerr(diagnostics.ErrR008, string(name))
		}
		captured[string(name)] = v
	}
	argc := int(m.pullU16())
	bodylen := int(m.pullU64())
	params := make([]string, 0, argc)
	for i := 0; i < argc; i++ {
		params = append(params, m.readString())
	}
	start := m.topFrame.PC
	m.topFrame.PC += bodylen
	spec := &value.FuncSpec{
		ParamNames: params,
		Code:       m.topFrame.Code,
		StartPC:    start,
		EndPC:      start + bodylen,
		Captured:   captured,
	}
	m.topFrame.push(&value.Func{UserDef: spec})
	return nil
}

func (m *Machine) execObjdef() error {
	name := m.readString()
	if _, exists := m.global.ObjectNames[name]; exists {
		return rerr(diagnostics.ErrR008, name)
	}
	objectID := m.global.NextObjectID
	nfuncs := int(m.pullU16())
	funcs := map[string]*value.FuncSpec{}
	for i := 0; i < nfuncs; i++ {
		fname, spec := m.readFunction()
		spec.FromObject = true
		spec.ParentObjectID = objectID
		if _, exists := funcs[fname]; exists {
			return rerr(diagnostics.ErrR008, fname)
		}
		funcs[fname] = spec
	}
	m.global.ObjectNames[name] = objectID
	m.global.Objects[objectID] = &ObjSpec{Ident: objectID, Name: name, Functions: funcs}
	m.global.InstancesByType[objectID] = []int64{}
	m.global.NextObjectID++
	return nil
}

// popFrame returns to the caller frame. result, when non-nil, is the
// value RETURN hands back; EXIT passes nil and an expression caller
// receives 0 instead.
func (m *Machine) popFrame(result value.Value) {
	if len(m.frames) == 0 {
		m.doExit = true
		return
	}
	wasExpr := m.topFrame.IsExpr
	m.topFrame = m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	if wasExpr {
		if result == nil {
			result = value.Number(0)
		}
		m.topFrame.push(result)
	}
}

func (m *Machine) execReturn() error {
	if len(m.frames) == 0 {
		return rerr(diagnostics.ErrR010)
	}
	var result value.Value
	if m.topFrame.IsExpr {
		v, err := m.popValue()
		if err != nil {
			return err
		}
		result = v
	}
	m.popFrame(result)
	return nil
}
