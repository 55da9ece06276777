// Package interp ties the pipeline together behind the host embedding
// surface: construct with an optional parser, restart with new code or
// fresh source text, step, and read back bytecode and errors.
package interp

import (
	"io"
	"os"

	"github.com/vexlang/vex/internal/builtins"
	"github.com/vexlang/vex/internal/compiler"
	"github.com/vexlang/vex/internal/parser"
	"github.com/vexlang/vex/internal/vm"
)

// Interpreter owns one machine, one parser, and the writer print
// output goes to.
type Interpreter struct {
	machine *vm.Machine
	parser  *parser.Parser
	out     io.Writer
}

// New builds an interpreter over compiled code. A nil parser loads the
// default grammar; parse_text and compile_text use it at runtime.
func New(code []byte, p *parser.Parser) (*Interpreter, error) {
	if p == nil {
		var err error
		p, err = parser.New(nil)
		if err != nil {
			return nil, err
		}
	}
	return &Interpreter{
		machine: vm.New(code),
		parser:  p,
		out:     os.Stdout,
	}, nil
}

// NewFromSource compiles src and builds an interpreter over it.
func NewFromSource(src string) (*Interpreter, error) {
	p, err := parser.New(nil)
	if err != nil {
		return nil, err
	}
	code, err := CompileText(p, src)
	if err != nil {
		return nil, err
	}
	return New(code, p)
}

// CompileText runs source text through the whole front half of the
// pipeline: lex, parse, post-process, compile.
func CompileText(p *parser.Parser, src string) ([]byte, error) {
	root, err := p.ParseText(src)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(root)
}

// SetOutput redirects print output (stdout by default).
func (i *Interpreter) SetOutput(w io.Writer) {
	i.out = w
}

// InsertDefaultBindings registers the built-in internal functions.
func (i *Interpreter) InsertDefaultBindings() {
	builtins.Register(i.machine, i.parser, i.out)
}

// Restart loads new code, resetting frames and operand stack but
// keeping global state.
func (i *Interpreter) Restart(code []byte) {
	i.machine.Restart(code)
}

// RestartIntoString compiles src and restarts into the result.
func (i *Interpreter) RestartIntoString(src string) error {
	code, err := CompileText(i.parser, src)
	if err != nil {
		return err
	}
	i.machine.Restart(code)
	return nil
}

// ClearGlobalState wipes instances and objects; parser and code stay.
func (i *Interpreter) ClearGlobalState() {
	i.machine.ClearGlobalState()
}

// Step executes one instruction. done is true on graceful program end;
// err is non-nil on a trap.
func (i *Interpreter) Step() (done bool, err error) {
	return i.machine.Step()
}

// StepUntilErrorOrExit steps until the program finishes or traps.
func (i *Interpreter) StepUntilErrorOrExit() error {
	return i.machine.StepUntilErrorOrExit()
}

// StepCachedUntilErrorOrExit is the tight-loop variant that skips
// per-step error bookkeeping.
func (i *Interpreter) StepCachedUntilErrorOrExit() error {
	return i.machine.StepCachedUntilErrorOrExit()
}

// DumpCode returns the raw bytecode buffer.
func (i *Interpreter) DumpCode() []byte {
	return i.machine.DumpCode()
}

// LastError is the most recent trap message with the source line
// appended, or empty.
func (i *Interpreter) LastError() string {
	return i.machine.LastError()
}

// Machine exposes the underlying stepper for hosts that register their
// own bindings.
func (i *Interpreter) Machine() *vm.Machine {
	return i.machine
}
