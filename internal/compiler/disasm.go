package compiler

import (
	"fmt"
	"strconv"
)

var binopName = map[byte]string{
	0x10: "&&",
	0x11: "||",
	0x20: "==",
	0x21: "!=",
	0x22: ">=",
	0x23: "<=",
	0x24: ">",
	0x25: "<",
	0x30: "+",
	0x31: "-",
	0x40: "*",
	0x41: "/",
	0x42: "%",
}

var unopName = map[byte]string{
	0x10: "-",
	0x11: "+",
	0x20: "!",
}

var binstateName = map[byte]string{
	0x00: "=",
	0x30: "+=",
	0x31: "-=",
	0x40: "*=",
	0x41: "/=",
	0x42: "%=",
}

// Disassemble renders code[pc:end] as one line per instruction, with
// the nested bodies of control constructs and function definitions
// recursed into and indented. end == 0 means the end of the buffer.
func Disassemble(code []byte, pc, end int) []string {
	d := &disassembler{code: code, pc: pc}
	if end == 0 {
		end = len(code)
	}
	return d.run(end)
}

type disassembler struct {
	code []byte
	pc   int
}

func (d *disassembler) pull() byte {
	if d.pc >= len(d.code) {
		return 0
	}
	b := d.code[d.pc]
	d.pc++
	return b
}

func (d *disassembler) pullN(n int) []byte {
	if d.pc+n > len(d.code) {
		n = len(d.code) - d.pc
	}
	b := d.code[d.pc : d.pc+n]
	d.pc += n
	return b
}

func (d *disassembler) pullText() string {
	start := d.pc
	for d.pc < len(d.code) && d.code[d.pc] != 0 {
		d.pc++
	}
	s := string(d.code[start:d.pc])
	if d.pc < len(d.code) {
		d.pc++ // zero terminator
	}
	return s
}

func (d *disassembler) block(length int) []string {
	sub := Disassemble(d.code, d.pc, d.pc+length)
	d.pc += length
	return sub
}

func indent(out []string, lines []string) []string {
	for _, line := range lines {
		out = append(out, "    "+line)
	}
	return out
}

func subName(table map[byte]string, b byte) string {
	if name, ok := table[b]; ok {
		return name
	}
	return "<unknown>"
}

func (d *disassembler) run(end int) []string {
	var out []string
	for d.pc < end {
		op := d.pull()
		switch op {
		case OP_NOP:
			out = append(out, "NOP")
		case OP_PUSHFLT:
			out = append(out, fmt.Sprintf("PUSHFLT %s", strconv.FormatFloat(UnpackF64(d.pullN(8)), 'g', -1, 64)))
		case OP_PUSHSHORT:
			out = append(out, fmt.Sprintf("PUSHSHORT %d", UnpackU16(d.pullN(2))))
		case OP_PUSHSTR:
			out = append(out, fmt.Sprintf("PUSHSTR \"%s\"", d.pullText()))
		case OP_PUSHVAR:
			out = append(out, fmt.Sprintf("PUSHVAR \"%s\"", Escape(d.pullText())))
		case OP_PUSHNAME:
			out = append(out, fmt.Sprintf("PUSHNAME \"%s\"", Escape(d.pullText())))
		case OP_BINOP:
			out = append(out, fmt.Sprintf("BINOP %s", subName(binopName, d.pull())))
		case OP_UNOP:
			out = append(out, fmt.Sprintf("UNOP %s", subName(unopName, d.pull())))
		case OP_BINSTATE:
			out = append(out, fmt.Sprintf("BINSTATE %s", subName(binstateName, d.pull())))
		case OP_FUNCEXPR:
			out = append(out, "FUNCEXPR")
		case OP_FUNCCALL:
			out = append(out, "FUNCCALL")
		case OP_DECLVAR:
			out = append(out, "DECLVAR")
		case OP_DECLFAR:
			out = append(out, "DECLFAR")
		case OP_SCOPE:
			out = append(out, "SCOPE")
		case OP_UNSCOPE:
			out = append(out, fmt.Sprintf("UNSCOPE %d", UnpackU16(d.pullN(2))))
		case OP_COLLECTARRAY:
			out = append(out, fmt.Sprintf("COLLECTARRAY %d", UnpackU16(d.pullN(2))))
		case OP_COLLECTDICT:
			out = append(out, fmt.Sprintf("COLLECTDICT %d", UnpackU16(d.pullN(2))))
		case OP_IF:
			elen := int(UnpackU64(d.pullN(8)))
			clen := int(UnpackU64(d.pullN(8)))
			out = append(out, "IF", "(")
			out = indent(out, d.block(elen))
			out = append(out, ")", "{")
			out = indent(out, d.block(clen))
			out = append(out, "}")
		case OP_IFELSE:
			elen := int(UnpackU64(d.pullN(8)))
			clen := int(UnpackU64(d.pullN(8)))
			c2len := int(UnpackU64(d.pullN(8)))
			out = append(out, "IFELSE", "(")
			out = indent(out, d.block(elen))
			out = append(out, ")", "{")
			out = indent(out, d.block(clen))
			out = append(out, "}", "{")
			out = indent(out, d.block(c2len))
			out = append(out, "}")
		case OP_WHILE:
			elen := int(UnpackU64(d.pullN(8)))
			clen := int(UnpackU64(d.pullN(8)))
			out = append(out, "WHILE", "(")
			out = indent(out, d.block(elen))
			out = append(out, ")", "{")
			out = indent(out, d.block(clen))
			out = append(out, "}")
		case OP_FOR:
			elen := int(UnpackU64(d.pullN(8)))
			postlen := int(UnpackU64(d.pullN(8)))
			clen := int(UnpackU64(d.pullN(8)))
			out = append(out, "FOR", "(")
			out = indent(out, d.block(elen))
			out = append(out, ")", "(")
			out = indent(out, d.block(postlen))
			out = append(out, ")", "{")
			out = indent(out, d.block(clen))
			out = append(out, "}")
		case OP_WITH:
			blen := int(UnpackU64(d.pullN(8)))
			out = append(out, "WITH", "{")
			out = indent(out, d.block(blen))
			out = append(out, "}")
		case OP_BREAK:
			out = append(out, "BREAK")
		case OP_CONTINUE:
			out = append(out, "CONTINUE")
		case OP_INDIRECTION:
			out = append(out, "INDIRECTION")
		case OP_EVALUATION:
			out = append(out, "EVALUATION")
		case OP_ARRAYEXPR:
			out = append(out, "ARRAYEXPR")
		case OP_FUNCDEF:
			name := d.pullText()
			argc := int(UnpackU16(d.pullN(2)))
			bodylen := int(UnpackU64(d.pullN(8)))
			out = append(out, fmt.Sprintf("FUNCDEF %s", name), "(")
			for i := 0; i < argc; i++ {
				out = append(out, "    "+d.pullText())
			}
			out = append(out, ")", "{")
			out = indent(out, d.block(bodylen))
			out = append(out, "}")
		case OP_LAMBDA:
			captc := int(UnpackU16(d.pullN(2)))
			argc := int(UnpackU16(d.pullN(2)))
			bodylen := int(UnpackU64(d.pullN(8)))
			out = append(out, "LAMBDA", fmt.Sprintf("[%d]", captc), "(")
			for i := 0; i < argc; i++ {
				out = append(out, "    "+d.pullText())
			}
			out = append(out, ")", "{")
			out = indent(out, d.block(bodylen))
			out = append(out, "}")
		case OP_OBJDEF:
			name := d.pullText()
			nfuncs := int(UnpackU16(d.pullN(2)))
			out = append(out, fmt.Sprintf("OBJDEF %s", name), "{")
			for i := 0; i < nfuncs; i++ {
				fname := d.pullText()
				argc := int(UnpackU16(d.pullN(2)))
				bodylen := int(UnpackU64(d.pullN(8)))
				out = append(out, fmt.Sprintf("    FUNCTION %s", fname), "    (")
				for j := 0; j < argc; j++ {
					out = append(out, "    "+d.pullText())
				}
				out = append(out, "    )", "    {")
				for _, line := range d.block(bodylen) {
					out = append(out, "        "+line)
				}
				out = append(out, "    }")
			}
			out = append(out, "}")
		case OP_EXIT:
			out = append(out, "EXIT")
		case OP_RETURN:
			out = append(out, "RETURN")
		case OP_LINENUM:
			out = append(out, fmt.Sprintf("LINE %d", UnpackU64(d.pullN(8))))
		default:
			out = append(out, "<unknown>")
		}
	}
	return out
}
