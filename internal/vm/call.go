package vm

import (
	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/value"
)

// handleCall implements FUNCCALL and FUNCEXPR: the stack holds
// ...args, argc, callee.
func (m *Machine) handleCall(isExpr bool) error {
	callee, err := m.popValue()
	if err != nil {
		return err
	}
	argcF, err := m.popNumber()
	if err != nil {
		return err
	}
	argc := int(round(argcF))
	if len(m.topFrame.Stack) < argc {
		return rerr(diagnostics.ErrR006, "not enough values on the operand stack")
	}
	args := make([]value.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		v, _ := m.topFrame.pop()
		args[i] = v
	}

	if vr, ok := callee.(value.Var); ok {
		callee, err = m.evaluate(vr.Ref)
		if err != nil {
			return err
		}
	}
	fn, ok := callee.(*value.Func)
	if !ok {
		return rerr(diagnostics.ErrR006, "tried to call a non-function value")
	}
	return m.callFunction(fn, args, isExpr)
}

func (m *Machine) callFunction(fn *value.Func, args []value.Value, isExpr bool) error {
	if fn.Internal {
		return m.callInternal(fn.InternalName, args, isExpr)
	}
	spec := fn.UserDef
	if spec == nil {
		return rerr(diagnostics.ErrR006, "function value has no body")
	}
	if !spec.FromObject {
		return m.jumpToFunction(spec, args, isExpr)
	}
	if fn.HasBoundInstance() {
		inst, ok := m.global.Instances[fn.BoundInstID]
		if !ok {
			return rerr(diagnostics.ErrR002, fn.BoundInstID)
		}
		if inst.ObjType != spec.ParentObjectID {
			return rerr(diagnostics.ErrR006, "bound instance is not of the function's object type")
		}
		if err := m.jumpToFunction(spec, args, isExpr); err != nil {
			return err
		}
		m.topFrame.InstanceStack = append(m.topFrame.InstanceStack, fn.BoundInstID)
		return nil
	}
	// unbound object function: the innermost matching instance context
	// of the calling frame becomes "self"
	caller := m.topFrame
	for i := len(caller.InstanceStack) - 1; i >= 0; i-- {
		id := caller.InstanceStack[i]
		inst, ok := m.global.Instances[id]
		if !ok || inst.ObjType != spec.ParentObjectID {
			continue
		}
		if err := m.jumpToFunction(spec, args, isExpr); err != nil {
			return err
		}
		m.topFrame.InstanceStack = append(m.topFrame.InstanceStack, id)
		return nil
	}
	return rerr(diagnostics.ErrR006, "no instance context matches the function's object type")
}

func (m *Machine) callInternal(name string, args []value.Value, isExpr bool) error {
	fn, ok := m.binding(name)
	if !ok {
		return rerr(diagnostics.ErrR001, name)
	}
	ret, frameMoved, err := fn(m, args, isExpr)
	if err != nil {
		return err
	}
	if !isExpr || m.noReturn[name] {
		return nil
	}
	if !frameMoved {
		m.topFrame.push(ret)
		return nil
	}
	// the binding pushed a user-defined call; the caller's frame is now
	// below the new one
	if len(m.frames) == 0 {
		return rerr(diagnostics.ErrR006, "lost calling frame after an internal function moved it")
	}
	m.frames[len(m.frames)-1].push(ret)
	return nil
}

// jumpToFunction builds and enters a frame for a user-defined function.
// args are in declaration order; a lambda's captured environment is
// copied in as the root scope.
func (m *Machine) jumpToFunction(spec *value.FuncSpec, args []value.Value, isExpr bool) error {
	if len(args) != len(spec.ParamNames) {
		return rerr(diagnostics.ErrR007, len(spec.ParamNames), len(args))
	}
	frame := newCallFrame(spec, isExpr)
	if spec.Captured != nil {
		root := frame.Scopes[0]
		for name, v := range spec.Captured {
			root[name] = value.Copy(v)
		}
	}
	scope := frame.Scopes[0]
	for i, name := range spec.ParamNames {
		scope[name] = value.Copy(args[i])
	}
	m.frames = append(m.frames, m.topFrame)
	m.topFrame = frame
	return nil
}

// CallUserFunction is the binding-facing wrapper around jumpToFunction:
// it enters fn's frame so the user code runs on subsequent steps, and
// reports that the frame moved.
func (m *Machine) CallUserFunction(fn *value.Func, args []value.Value, isExpr bool) error {
	if fn.Internal {
		return rerr(diagnostics.ErrR006, "cannot dispatch an internal function as a user function")
	}
	if fn.UserDef == nil {
		return rerr(diagnostics.ErrR006, "function value has no body")
	}
	return m.jumpToFunction(fn.UserDef, args, isExpr)
}

// PushInstanceContext makes id the current "self" of the top frame.
// Used by bindings that enter user code on behalf of an instance.
func (m *Machine) PushInstanceContext(id int64) {
	m.topFrame.InstanceStack = append(m.topFrame.InstanceStack, id)
}
