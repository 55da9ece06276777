package compiler_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vexlang/vex/internal/compiler"
	"github.com/vexlang/vex/internal/parser"
)

func compile(t *testing.T, src string) []byte {
	t.Helper()
	p, err := parser.New(nil)
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	root, err := p.ParseText(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	code, err := compiler.Compile(root)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return code
}

func TestCompileCall(t *testing.T) {
	code := compile(t, "print(7);")
	want := []string{
		"LINE 1",
		"PUSHFLT 7",
		"PUSHSHORT 1",
		`PUSHVAR "print"`,
		"FUNCCALL",
		"EXIT",
	}
	if diff := cmp.Diff(want, compiler.Disassemble(code, 0, 0)); diff != "" {
		t.Errorf("disassembly mismatch (-want +got):\n%s", diff)
	}
}

func TestCompilePrecedence(t *testing.T) {
	code := compile(t, "print(1+2*3);")
	want := []string{
		"LINE 1",
		"PUSHFLT 1",
		"PUSHFLT 2",
		"PUSHFLT 3",
		"BINOP *",
		"BINOP +",
		"PUSHSHORT 1",
		`PUSHVAR "print"`,
		"FUNCCALL",
		"EXIT",
	}
	if diff := cmp.Diff(want, compiler.Disassemble(code, 0, 0)); diff != "" {
		t.Errorf("disassembly mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileDeclaration(t *testing.T) {
	code := compile(t, "var x = 5;")
	want := []string{
		"LINE 1",
		`PUSHNAME "x"`,
		"DECLVAR",
		`PUSHNAME "x"`,
		"PUSHFLT 5",
		"BINSTATE =",
		"EXIT",
	}
	if diff := cmp.Diff(want, compiler.Disassemble(code, 0, 0)); diff != "" {
		t.Errorf("disassembly mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileCompoundAssignment(t *testing.T) {
	got := compiler.Disassemble(compile(t, "x -= 2;"), 0, 0)
	want := []string{
		"LINE 1",
		`PUSHNAME "x"`,
		"PUSHFLT 2",
		"BINSTATE -=",
		"EXIT",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("disassembly mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileIfShape(t *testing.T) {
	lines := compiler.Disassemble(compile(t, "if (1) { f(); }"), 0, 0)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"IF", "PUSHFLT 1", "FUNCCALL", "SCOPE", "UNSCOPE 0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("disassembly lacks %q:\n%s", want, joined)
		}
	}
}

// An omitted for condition compiles to a PUSHSHORT 1 segment and an
// omitted post clause to NOP, so the VM's control points always sit on
// well-defined code.
func TestCompileForEmptySlots(t *testing.T) {
	lines := compiler.Disassemble(compile(t, "for (;;) { break; }"), 0, 0)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "PUSHSHORT 1") {
		t.Errorf("empty condition did not compile to PUSHSHORT 1:\n%s", joined)
	}
	if !strings.Contains(joined, "NOP") {
		t.Errorf("empty post clause did not compile to NOP:\n%s", joined)
	}
}

// The for init clause wraps the loop in its own scope pair.
func TestCompileForInitScope(t *testing.T) {
	lines := compiler.Disassemble(compile(t, "for (var i = 0; i < 3; i += 1) { print(i); }"), 0, 0)
	if lines[1] != "SCOPE" {
		t.Errorf("loop with init does not open an outer scope:\n%s", strings.Join(lines, "\n"))
	}
	if last := lines[len(lines)-2]; last != "UNSCOPE 0" {
		t.Errorf("loop with init does not close the outer scope, got %q", last)
	}
}

func TestCompileFuncdef(t *testing.T) {
	lines := compiler.Disassemble(compile(t, "function add(a, b) { return a + b; }"), 0, 0)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"FUNCDEF add", "RETURN", `PUSHVAR "a"`, `PUSHVAR "b"`} {
		if !strings.Contains(joined, want) {
			t.Errorf("disassembly lacks %q:\n%s", want, joined)
		}
	}
}

func TestCompileObjdef(t *testing.T) {
	lines := compiler.Disassemble(compile(t, "object O { function create() { far n; } }"), 0, 0)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"OBJDEF O", "FUNCTION create", "DECLFAR"} {
		if !strings.Contains(joined, want) {
			t.Errorf("disassembly lacks %q:\n%s", want, joined)
		}
	}
}

func TestCompileStringEscapes(t *testing.T) {
	code := compile(t, `print("a\nb");`)
	joined := strings.Join(compiler.Disassemble(code, 0, 0), "\n")
	// PUSHSTR operands print raw, so the unescaped newline appears
	if !strings.Contains(joined, "PUSHSTR \"a\nb\"") {
		t.Errorf("string literal not unescaped into the buffer:\n%s", joined)
	}
}

// opcodeWalk decodes the buffer into its mnemonic sequence, skipping
// operands by size. Control-construct segments are plain instruction
// streams and decode linearly; only objdef member bodies need explicit
// recursion, because the next member header follows the previous body.
func opcodeWalk(t *testing.T, code []byte) []string {
	t.Helper()
	return decodeRange(t, code, 0, len(code))
}

func decodeRange(t *testing.T, code []byte, pc, end int) []string {
	t.Helper()
	var out []string
	pullText := func() {
		for pc < len(code) && code[pc] != 0 {
			pc++
		}
		pc++
	}
	for pc < end {
		op := code[pc]
		pc++
		name, ok := compiler.OpName[op]
		if !ok {
			t.Fatalf("unknown opcode 0x%02X at %d", op, pc-1)
		}
		out = append(out, name)
		switch op {
		case compiler.OP_PUSHFLT, compiler.OP_LINENUM:
			pc += 8
		case compiler.OP_PUSHSHORT, compiler.OP_UNSCOPE, compiler.OP_COLLECTARRAY, compiler.OP_COLLECTDICT:
			pc += 2
		case compiler.OP_PUSHSTR, compiler.OP_PUSHVAR, compiler.OP_PUSHNAME:
			pullText()
		case compiler.OP_BINOP, compiler.OP_UNOP, compiler.OP_BINSTATE:
			pc++
		case compiler.OP_IF, compiler.OP_WHILE:
			pc += 16
		case compiler.OP_IFELSE, compiler.OP_FOR:
			pc += 24
		case compiler.OP_WITH:
			pc += 8
		case compiler.OP_FUNCDEF:
			pullText()
			argc := int(compiler.UnpackU16(code[pc : pc+2]))
			pc += 10
			for i := 0; i < argc; i++ {
				pullText()
			}
		case compiler.OP_LAMBDA:
			argc := int(compiler.UnpackU16(code[pc+2 : pc+4]))
			pc += 12
			for i := 0; i < argc; i++ {
				pullText()
			}
		case compiler.OP_OBJDEF:
			pullText()
			nfuncs := int(compiler.UnpackU16(code[pc : pc+2]))
			pc += 2
			for i := 0; i < nfuncs; i++ {
				pullText()
				argc := int(compiler.UnpackU16(code[pc : pc+2]))
				bodylen := int(compiler.UnpackU64(code[pc+2 : pc+10]))
				pc += 10
				for j := 0; j < argc; j++ {
					pullText()
				}
				out = append(out, decodeRange(t, code, pc, pc+bodylen)...)
				pc += bodylen
			}
		}
	}
	return out
}

// scanDisassembly re-parses the textual disassembly back into the
// mnemonic sequence. Nested blocks print in buffer order, so the two
// sequences must line up exactly (round-trip of the bytecode format).
func scanDisassembly(lines []string) []string {
	mnemonics := map[string]string{"LINE": "LINENUM"}
	for _, name := range compiler.OpName {
		mnemonics[name] = name
	}
	var out []string
	for _, line := range lines {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		if name, ok := mnemonics[fields[0]]; ok {
			out = append(out, name)
		}
	}
	return out
}

func TestDisassemblyRoundTrip(t *testing.T) {
	srcs := []string{
		"print(1+2*3);",
		"var s = 0; for (var i = 0; i < 5; i += 1) { s += i; } print(s);",
		"if (1) { f(); } else { g(); }",
		"while (x < 3) { x += 1; if (x == 2) { continue; } }",
		"function add(a, b) { return a + b; } print(add(1, 2));",
		"object O { function create() { far n; n = 7; } } var i = instance_create(O); with (O) { print(n); }",
		`var d = {"x": [1, 2, 3]}; d["x"][1] = 9;`,
		"var f = [a]() -> { return a + 1; }; print(f());",
	}
	for _, src := range srcs {
		code := compile(t, src)
		want := opcodeWalk(t, code)
		got := scanDisassembly(compiler.Disassemble(code, 0, 0))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: opcode sequence mismatch (-walk +disasm):\n%s", src, diff)
		}
	}
}
