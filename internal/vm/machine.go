// Package vm executes vex bytecode one instruction at a time. The
// machine is a standalone single-threaded automaton: the host owns the
// loop and may stop stepping at any instruction boundary; all state
// needed to resume lives in the frames and the global state.
package vm

import (
	"github.com/vexlang/vex/internal/compiler"
	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/value"
)

// Binding is a host-bound internal function. The second result reports
// whether the binding moved the frame (pushed a user-defined call, as
// instance_create does); the machine then routes any expression return
// value to the frame the caller is actually on.
type Binding func(m *Machine, args []value.Value, isExpr bool) (value.Value, bool, error)

// Machine is the stepping interpreter for one bytecode program.
type Machine struct {
	topFrame *Frame
	frames   []*Frame
	doExit   bool

	// set by continue in a for loop so the next condition-end event is
	// skipped exactly once
	suppressForExprEnd bool

	global    *Global
	bindings  map[string]Binding
	noReturn  map[string]bool
	lastError string
}

// New builds a machine over a compiled code buffer. The buffer is
// never copied or mutated; every frame created from it shares it.
func New(code []byte) *Machine {
	return &Machine{
		topFrame: newRootFrame(code),
		global:   newGlobal(),
		bindings: map[string]Binding{},
		noReturn: map[string]bool{},
	}
}

// Global exposes the instance/object world, for bindings.
func (m *Machine) Global() *Global { return m.global }

// Restart loads new code, resetting frames and operand stack but
// keeping global state and registered bindings.
func (m *Machine) Restart(code []byte) {
	m.topFrame = newRootFrame(code)
	m.frames = nil
	m.doExit = false
	m.suppressForExprEnd = false
	m.lastError = ""
}

// ClearGlobalState gracelessly deletes all instances and objects,
// regardless of their state. Bindings and code stay loaded.
func (m *Machine) ClearGlobalState() {
	m.global = newGlobal()
}

// Bind registers an internal function callable by name from scripts.
func (m *Machine) Bind(name string, fn Binding) {
	m.bindings[name] = fn
}

// BindNoReturn registers an internal function whose result is never
// pushed to the caller's stack, like instance_execute.
func (m *Machine) BindNoReturn(name string, fn Binding) {
	m.bindings[name] = fn
	m.noReturn[name] = true
}

func (m *Machine) binding(name string) (Binding, bool) {
	fn, ok := m.bindings[name]
	return fn, ok
}

// DumpCode returns the raw bytecode buffer of the root program.
func (m *Machine) DumpCode() []byte {
	if len(m.frames) > 0 {
		return m.frames[0].Code
	}
	return m.topFrame.Code
}

// LastError is the most recent trap message, with the source line of
// the failing instruction appended. Empty after a clean step.
func (m *Machine) LastError() string { return m.lastError }

// Step executes one instruction and runs flow-control post-processing.
// done is true on graceful end of the program; err is non-nil on a
// trap.
func (m *Machine) Step() (done bool, err error) {
	m.lastError = ""
	done, err = m.stepInternal()
	if err != nil {
		if d, ok := err.(*diagnostics.Diagnostic); ok {
			m.lastError = d.WithLine(m.topFrame.CurrLine)
		} else {
			m.lastError = err.Error()
		}
	}
	return done, err
}

// StepUntilErrorOrExit steps until the program finishes or traps.
func (m *Machine) StepUntilErrorOrExit() error {
	for {
		done, err := m.Step()
		if err != nil || done {
			return err
		}
	}
}

// StepCachedUntilErrorOrExit is the tight variant of
// StepUntilErrorOrExit: it skips per-step bookkeeping of lastError and
// only records the final outcome.
func (m *Machine) StepCachedUntilErrorOrExit() error {
	for {
		done, err := m.stepInternal()
		if err != nil {
			if d, ok := err.(*diagnostics.Diagnostic); ok {
				m.lastError = d.WithLine(m.topFrame.CurrLine)
			} else {
				m.lastError = err.Error()
			}
			return err
		}
		if done {
			m.lastError = ""
			return nil
		}
	}
}

func (m *Machine) stepInternal() (bool, error) {
	f := m.topFrame
	if f.PC < f.StartPC || f.PC > f.EndPC || f.PC >= len(f.Code) {
		return true, rerr(diagnostics.ErrR006, "stepped outside the range of the current frame")
	}
	op := m.pullByte()
	if err := m.exec(op); err != nil {
		return true, err
	}
	if err := m.handleFlowControl(); err != nil {
		return true, err
	}
	return m.doExit, nil
}

func rerr(code diagnostics.Code, args ...any) error {
	return diagnostics.New(diagnostics.PhaseRuntime, code, 0, 0, args...)
}

func (m *Machine) pullByte() byte {
	b := m.topFrame.Code[m.topFrame.PC]
	m.topFrame.PC++
	return b
}

func (m *Machine) pullU16() uint16 {
	f := m.topFrame
	v := compiler.UnpackU16(f.Code[f.PC : f.PC+2])
	f.PC += 2
	return v
}

func (m *Machine) pullU64() uint64 {
	f := m.topFrame
	v := compiler.UnpackU64(f.Code[f.PC : f.PC+8])
	f.PC += 8
	return v
}

func (m *Machine) pullF64() float64 {
	f := m.topFrame
	v := compiler.UnpackF64(f.Code[f.PC : f.PC+8])
	f.PC += 8
	return v
}

// readString pulls a zero-terminated UTF-8 string from the code.
func (m *Machine) readString() string {
	f := m.topFrame
	start := f.PC
	for f.PC < len(f.Code) && f.Code[f.PC] != 0 {
		f.PC++
	}
	s := string(f.Code[start:f.PC])
	if f.PC < len(f.Code) {
		f.PC++
	}
	return s
}

// readFunction decodes the tail of a FUNCDEF (name, argc, bodylen,
// argument names, body) and skips the body, which the returned spec
// points into.
func (m *Machine) readFunction() (string, *value.FuncSpec) {
	name := m.readString()
	argc := int(m.pullU16())
	bodylen := int(m.pullU64())
	params := make([]string, 0, argc)
	for i := 0; i < argc; i++ {
		params = append(params, m.readString())
	}
	start := m.topFrame.PC
	m.topFrame.PC += bodylen
	return name, &value.FuncSpec{
		ParamNames: params,
		Code:       m.topFrame.Code,
		StartPC:    start,
		EndPC:      start + bodylen,
	}
}

func (m *Machine) drainScopes(depth int) {
	f := m.topFrame
	for len(f.Scopes) > depth {
		f.Scopes = f.Scopes[:len(f.Scopes)-1]
	}
}

func (m *Machine) popValue() (value.Value, error) {
	v, ok := m.topFrame.pop()
	if !ok {
		return nil, rerr(diagnostics.ErrR006, "not enough values on the operand stack")
	}
	return v, nil
}

func (m *Machine) popNumber() (float64, error) {
	v, err := m.popValue()
	if err != nil {
		return 0, err
	}
	n, ok := v.(value.Number)
	if !ok {
		return 0, rerr(diagnostics.ErrR006, "expected a number on the operand stack")
	}
	return float64(n), nil
}

func (m *Machine) popName() (string, error) {
	v, err := m.popValue()
	if err != nil {
		return "", err
	}
	if vr, ok := v.(value.Var); ok {
		if d, ok := vr.Ref.(value.DirectVar); ok {
			return d.Name, nil
		}
	}
	return "", rerr(diagnostics.ErrR006, "expected a name on the operand stack")
}
