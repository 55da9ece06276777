package vm

import (
	"github.com/vexlang/vex/internal/compiler"
	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/value"
)

// handleFlowControl runs after every instruction: it examines the top
// controller and, when the pc sits on one of its control points,
// performs the jump, scope drain, test, or iteration advance that
// controller kind calls for.
func (m *Machine) handleFlowControl() error {
	f := m.topFrame
	if len(f.ControlStack) == 0 {
		return nil
	}
	controller := f.ControlStack[len(f.ControlStack)-1]
	f.ControlStack = f.ControlStack[:len(f.ControlStack)-1]

	putBack := true
	var err error
	if controller.hasPoint(f.PC) {
		switch controller.Kind {
		case compiler.OP_IF:
			putBack, err = m.flowIf(&controller)
		case compiler.OP_IFELSE:
			putBack, err = m.flowIfElse(&controller)
		case compiler.OP_WHILE:
			putBack, err = m.flowWhile(&controller)
		case compiler.OP_FOR:
			putBack, err = m.flowFor(&controller)
		case compiler.OP_WITH:
			putBack, err = m.flowWith(&controller)
		default:
			err = rerr(diagnostics.ErrR006, "unknown controller kind on the control stack")
		}
		if err != nil {
			return err
		}
	}
	if putBack {
		f.ControlStack = append(f.ControlStack, controller)
	}
	return nil
}

func (m *Machine) flowIf(c *ControlData) (bool, error) {
	f := m.topFrame
	if f.PC == c.Points[0] {
		test, err := m.popValue()
		if err != nil {
			return false, err
		}
		if !value.Truthy(test) {
			f.PC = c.Points[1]
			m.drainScopes(c.ScopeDepth)
			return false, nil
		}
	}
	return true, nil
}

func (m *Machine) flowIfElse(c *ControlData) (bool, error) {
	f := m.topFrame
	switch f.PC {
	case c.Points[0]:
		test, err := m.popValue()
		if err != nil {
			return false, err
		}
		if !value.Truthy(test) {
			f.PC = c.Points[1]
		}
	case c.Points[1]:
		// end of the then block: jump past the else block
		f.PC = c.Points[2]
		m.drainScopes(c.ScopeDepth)
		return false, nil
	case c.Points[2]:
		m.drainScopes(c.ScopeDepth)
		return false, nil
	}
	return true, nil
}

func (m *Machine) flowWhile(c *ControlData) (bool, error) {
	f := m.topFrame
	switch f.PC {
	case c.Points[1]:
		test, err := m.popValue()
		if err != nil {
			return false, err
		}
		if !value.Truthy(test) {
			f.PC = c.Points[2]
			m.drainScopes(c.ScopeDepth)
			return false, nil
		}
	case c.Points[2]:
		// end of the body: back to the condition
		f.PC = c.Points[0]
		m.drainScopes(c.ScopeDepth)
	}
	return true, nil
}

func (m *Machine) flowFor(c *ControlData) (bool, error) {
	f := m.topFrame
	switch f.PC {
	case c.Points[1]:
		// end of condition; a continue that just jumped here suppresses
		// the test once
		if m.suppressForExprEnd {
			m.suppressForExprEnd = false
			return true, nil
		}
		test, err := m.popValue()
		if err != nil {
			return false, err
		}
		if !value.Truthy(test) {
			f.PC = c.Points[3]
			m.drainScopes(c.ScopeDepth)
			return false, nil
		}
		f.PC = c.Points[2]
	case c.Points[2]:
		// end of the post expression: back to the condition
		f.PC = c.Points[0]
	case c.Points[3]:
		// end of the body: run the post expression
		f.PC = c.Points[1]
	}
	return true, nil
}

func (m *Machine) flowWith(c *ControlData) (bool, error) {
	f := m.topFrame
	if f.PC == c.Points[1] {
		if len(f.InstanceStack) > 0 {
			f.InstanceStack = f.InstanceStack[:len(f.InstanceStack)-1]
		}
		if len(c.Pending) > 0 {
			next := c.Pending[0]
			c.Pending = c.Pending[1:]
			f.InstanceStack = append(f.InstanceStack, next)
			f.PC = c.Points[0]
			return true, nil
		}
		return false, nil
	}
	return true, nil
}

// popControlUntilLoop discards controllers until a while or for sits on
// top, for break and continue. A discarded with controller also pops
// the instance context it pushed, keeping the instance stack
// consistent.
func (m *Machine) popControlUntilLoop() error {
	f := m.topFrame
	for len(f.ControlStack) > 0 {
		top := f.ControlStack[len(f.ControlStack)-1]
		if top.Kind == compiler.OP_WHILE || top.Kind == compiler.OP_FOR {
			return nil
		}
		if top.Kind == compiler.OP_WITH && len(f.InstanceStack) > 0 {
			f.InstanceStack = f.InstanceStack[:len(f.InstanceStack)-1]
		}
		f.ControlStack = f.ControlStack[:len(f.ControlStack)-1]
	}
	return rerr(diagnostics.ErrR012, "break or continue")
}

func (m *Machine) execBreak() error {
	if err := m.popControlUntilLoop(); err != nil {
		return err
	}
	f := m.topFrame
	controller := f.ControlStack[len(f.ControlStack)-1]
	f.ControlStack = f.ControlStack[:len(f.ControlStack)-1]
	switch controller.Kind {
	case compiler.OP_WHILE:
		f.PC = controller.Points[2]
	case compiler.OP_FOR:
		f.PC = controller.Points[3]
	}
	m.drainScopes(controller.ScopeDepth)
	return nil
}

func (m *Machine) execContinue() error {
	if err := m.popControlUntilLoop(); err != nil {
		return err
	}
	f := m.topFrame
	controller := f.ControlStack[len(f.ControlStack)-1]
	switch controller.Kind {
	case compiler.OP_WHILE:
		f.PC = controller.Points[0]
	case compiler.OP_FOR:
		f.PC = controller.Points[1]
		m.suppressForExprEnd = true
	}
	m.drainScopes(controller.ScopeDepth)
	return nil
}
