package compiler

import (
	"strconv"
	"strings"

	"github.com/vexlang/vex/internal/ast"
	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/value"
)

const maxScopeDepth = 0xFFFF
const maxCallArgs = 0xFFFF

// Compile walks a post-processed AST rooted at "program" and returns
// the bytecode buffer.
func Compile(root *ast.Node) ([]byte, error) {
	if !root.IsParent || root.Text != "program" {
		return nil, internalErr(root)
	}
	var code []byte
	for _, child := range root.Children {
		sub, err := compileNode(child, 0)
		if err != nil {
			return nil, err
		}
		code = append(code, sub...)
	}
	code = append(code, OP_EXIT)
	return code, nil
}

func internalErr(n *ast.Node) error {
	return diagnostics.New(diagnostics.PhaseCompiler, diagnostics.ErrC001, n.Line, n.Column, n.String())
}

func appendCString(code []byte, s string) []byte {
	code = append(code, s...)
	return append(code, 0x00)
}

// compileNode emits the code for one AST node. Expression positions go
// through compileExpr instead, which adds the EVALUATION an indirection
// or array reference needs to become a value.
func compileNode(n *ast.Node, depth int) ([]byte, error) {
	if !n.IsParent {
		return nil, internalErr(n)
	}
	switch {
	case n.Text == "statement":
		return compileStatement(n, depth)
	case n.Text == "expr":
		if len(n.Children) != 1 {
			return nil, internalErr(n)
		}
		return compileExpr(n.Children[0], depth)
	case strings.HasPrefix(n.Text, "binexpr_"):
		return compileBinexpr(n, depth)
	case n.Text == "lhunop":
		return compileUnop(n, depth)
	case n.Text == "simplexpr":
		// only the parenthesized form survives post-processing
		if len(n.Children) == 3 && isLeaf(n.Children[0], "(") && isLeaf(n.Children[2], ")") {
			return compileExpr(n.Children[1], depth)
		}
		return nil, internalErr(n)
	case n.Text == "number":
		f, err := strconv.ParseFloat(n.Children[0].Text, 64)
		if err != nil {
			return nil, internalErr(n)
		}
		code := []byte{OP_PUSHFLT}
		return append(code, PackF64(f)...), nil
	case n.Text == "string":
		raw := n.Children[0].Text
		code := []byte{OP_PUSHSTR}
		return appendCString(code, Unescape(raw[1:len(raw)-1])), nil
	case n.Text == "name":
		code := []byte{OP_PUSHVAR}
		return appendCString(code, n.Children[0].Text), nil
	case n.Text == "lambda":
		return compileLambda(n, depth)
	case n.Text == "arraybody":
		return compileArrayBody(n, depth)
	case n.Text == "dictbody":
		return compileDictBody(n, depth)
	case n.Text == "funccall" || n.Text == "funcexpr":
		return compileCall(n, depth)
	case n.Text == "arrayexpr":
		return compileArrayExpr(n, depth)
	case n.Text == "indirection":
		return compileIndirection(n, depth)
	case n.Text == "lvar":
		return compileLvar(n, depth)
	case n.Text == "declaration":
		return compileDeclaration(n, depth)
	case n.Text == "funcdef":
		return compileFuncdef(n)
	case n.Text == "objdef":
		return compileObjdef(n)
	case n.Text == "withstatement":
		return compileWith(n, depth)
	case n.Text == "ifcondition":
		return compileIf(n, depth)
	case n.Text == "whilecondition":
		return compileWhile(n, depth)
	case n.Text == "forcondition":
		return compileFor(n, depth)
	case n.Text == "forpost":
		return compileForPost(n, depth)
	case n.Text == "instruction":
		return compileInstruction(n, depth)
	default:
		return nil, internalErr(n)
	}
}

// compileExpr compiles a node in value position: indirection and array
// references leave a Var on the stack, so they get a trailing
// EVALUATION here.
func compileExpr(n *ast.Node, depth int) ([]byte, error) {
	code, err := compileNode(n, depth)
	if err != nil {
		return nil, err
	}
	if n.Text == "arrayexpr" || n.Text == "indirection" {
		code = append(code, OP_EVALUATION)
	}
	return code, nil
}

func isLeaf(n *ast.Node, text string) bool {
	return !n.IsParent && n.Text == text
}

func compileStatement(n *ast.Node, depth int) ([]byte, error) {
	code := []byte{OP_LINENUM}
	code = append(code, PackU64(uint64(n.Line))...)

	if len(n.Children) == 0 {
		return nil, internalErr(n)
	}
	// brace block
	if isLeaf(n.Children[0], "{") && isLeaf(n.Children[len(n.Children)-1], "}") {
		if depth+1 >= maxScopeDepth {
			return nil, diagnostics.New(diagnostics.PhaseCompiler, diagnostics.ErrC003, n.Line, n.Column, depth+1)
		}
		code = append(code, OP_SCOPE)
		for _, child := range n.Children[1 : len(n.Children)-1] {
			sub, err := compileNode(child, depth+1)
			if err != nil {
				return nil, err
			}
			code = append(code, sub...)
		}
		code = append(code, OP_UNSCOPE)
		return append(code, PackU16(uint16(depth))...), nil
	}
	// assignment
	if len(n.Children) == 3 && n.Children[1].IsParent && n.Children[1].Text == "binstateop" {
		sub, err := compileAssignment(n.Children[0], n.Children[1], n.Children[2], depth)
		if err != nil {
			return nil, err
		}
		return append(code, sub...), nil
	}
	if len(n.Children) == 1 && n.Children[0].IsParent {
		sub, err := compileNode(n.Children[0], depth)
		if err != nil {
			return nil, err
		}
		return append(code, sub...), nil
	}
	return nil, internalErr(n)
}

func compileAssignment(lhs, opNode, rhs *ast.Node, depth int) ([]byte, error) {
	code, err := compileNode(lhs, depth)
	if err != nil {
		return nil, err
	}
	sub, err := compileExpr(rhs, depth)
	if err != nil {
		return nil, err
	}
	code = append(code, sub...)
	code = append(code, OP_BINSTATE)
	operator := opNode.Children[0].Text
	if operator == "=" {
		return append(code, 0x00), nil
	}
	subcode, ok := value.BinOpText[operator[:1]]
	if !ok {
		return nil, internalErr(opNode)
	}
	return append(code, subcode), nil
}

func compileBinexpr(n *ast.Node, depth int) ([]byte, error) {
	if len(n.Children) != 3 {
		return nil, internalErr(n)
	}
	code, err := compileExpr(n.Children[0], depth)
	if err != nil {
		return nil, err
	}
	right, err := compileExpr(n.Children[2], depth)
	if err != nil {
		return nil, err
	}
	code = append(code, right...)
	subcode, ok := value.BinOpText[opText(n.Children[1])]
	if !ok {
		return nil, internalErr(n)
	}
	code = append(code, OP_BINOP, subcode)
	return code, nil
}

// opText digs the operator text out of a (possibly rule-wrapped)
// operator node.
func opText(n *ast.Node) string {
	for n.IsParent && len(n.Children) > 0 {
		n = n.Children[0]
	}
	return n.Text
}

func compileUnop(n *ast.Node, depth int) ([]byte, error) {
	if len(n.Children) != 2 {
		return nil, internalErr(n)
	}
	code, err := compileExpr(n.Children[1], depth)
	if err != nil {
		return nil, err
	}
	subcode, ok := value.UnOpText[opText(n.Children[0])]
	if !ok {
		return nil, internalErr(n)
	}
	return append(code, OP_UNOP, subcode), nil
}

func compileLvar(n *ast.Node, depth int) ([]byte, error) {
	if len(n.Children) != 1 {
		return nil, internalErr(n)
	}
	child := n.Children[0]
	if child.IsParent && child.Text == "name" {
		code := []byte{OP_PUSHNAME}
		return appendCString(code, child.Children[0].Text), nil
	}
	return compileNode(child, depth)
}

func compileDeclaration(n *ast.Node, depth int) ([]byte, error) {
	declOp := byte(OP_DECLVAR)
	if isLeaf(n.Children[0], "far") {
		declOp = OP_DECLFAR
	}
	var code []byte
	for _, declarg := range n.Children[1:] {
		name := declarg.Children[0].Children[0].Text
		code = append(code, OP_PUSHNAME)
		code = appendCString(code, name)
		code = append(code, declOp)
		if len(declarg.Children) == 3 {
			code = append(code, OP_PUSHNAME)
			code = appendCString(code, name)
			sub, err := compileExpr(declarg.Children[2], depth)
			if err != nil {
				return nil, err
			}
			code = append(code, sub...)
			code = append(code, OP_BINSTATE, 0x00)
		}
	}
	return code, nil
}

func compileCall(n *ast.Node, depth int) ([]byte, error) {
	args := callArgs(n.Children[1])
	if len(args) > maxCallArgs {
		return nil, diagnostics.New(diagnostics.PhaseCompiler, diagnostics.ErrC002, n.Line, n.Column, len(args))
	}
	var code []byte
	for _, arg := range args {
		sub, err := compileExpr(arg, depth)
		if err != nil {
			return nil, err
		}
		code = append(code, sub...)
	}
	code = append(code, OP_PUSHSHORT)
	code = append(code, PackU16(uint16(len(args)))...)
	callee, err := compileNode(n.Children[0], depth)
	if err != nil {
		return nil, err
	}
	code = append(code, callee...)
	if n.Text == "funccall" {
		return append(code, OP_FUNCCALL), nil
	}
	return append(code, OP_FUNCEXPR), nil
}

// callArgs unwraps a funcargs node (parens already stripped) down to
// the individual argument expressions.
func callArgs(funcargs *ast.Node) []*ast.Node {
	if len(funcargs.Children) == 0 {
		return nil
	}
	return funcargs.Children[0].Children
}

func compileArrayExpr(n *ast.Node, depth int) ([]byte, error) {
	var code []byte
	base := n.Children[0]
	if base.IsParent && base.Text == "name" {
		code = append(code, OP_PUSHNAME)
		code = appendCString(code, base.Children[0].Text)
	} else {
		sub, err := compileNode(base, depth)
		if err != nil {
			return nil, err
		}
		code = append(code, sub...)
	}
	index, err := compileExpr(n.Children[1].Children[1], depth)
	if err != nil {
		return nil, err
	}
	code = append(code, index...)
	return append(code, OP_ARRAYEXPR), nil
}

func compileIndirection(n *ast.Node, depth int) ([]byte, error) {
	code, err := compileNode(n.Children[0], depth)
	if err != nil {
		return nil, err
	}
	if n.Children[0].Text == "indirection" {
		code = append(code, OP_EVALUATION)
	}
	code = append(code, OP_PUSHNAME)
	code = appendCString(code, n.Children[1].Children[1].Children[0].Text)
	return append(code, OP_INDIRECTION), nil
}

func compileArrayBody(n *ast.Node, depth int) ([]byte, error) {
	var elems []*ast.Node
	for _, child := range n.Children {
		if child.IsParent && child.Text == "exprlist" {
			elems = child.Children
		}
	}
	var code []byte
	for _, elem := range elems {
		sub, err := compileExpr(elem, depth)
		if err != nil {
			return nil, err
		}
		code = append(code, sub...)
	}
	code = append(code, OP_COLLECTARRAY)
	return append(code, PackU16(uint16(len(elems)))...), nil
}

func compileDictBody(n *ast.Node, depth int) ([]byte, error) {
	var entries []*ast.Node
	for _, child := range n.Children {
		if child.IsParent && child.Text == "dictentrylist" {
			entries = child.Children
		}
	}
	var code []byte
	for _, entry := range entries {
		key, err := compileExpr(entry.Children[0], depth)
		if err != nil {
			return nil, err
		}
		val, err := compileExpr(entry.Children[2], depth)
		if err != nil {
			return nil, err
		}
		code = append(code, key...)
		code = append(code, val...)
	}
	code = append(code, OP_COLLECTDICT)
	return append(code, PackU16(uint16(len(entries)))...), nil
}

func compileInstruction(n *ast.Node, depth int) ([]byte, error) {
	head := n.Children[0]
	switch head.Text {
	case "break":
		return []byte{OP_BREAK}, nil
	case "continue":
		return []byte{OP_CONTINUE}, nil
	case "return":
		var code []byte
		if len(n.Children) == 2 {
			sub, err := compileExpr(n.Children[1], depth)
			if err != nil {
				return nil, err
			}
			code = append(code, sub...)
		} else {
			code = append(code, OP_PUSHFLT)
			code = append(code, PackF64(0)...)
		}
		return append(code, OP_RETURN), nil
	default:
		return nil, internalErr(n)
	}
}

// compileBody compiles a statement used as the body of a control
// construct. A bare (non-brace) statement gets its own SCOPE/UNSCOPE
// pair so declarations inside it cannot leak.
func compileBody(stmt *ast.Node, depth int) ([]byte, error) {
	if len(stmt.Children) > 0 && isLeaf(stmt.Children[0], "{") {
		return compileNode(stmt, depth)
	}
	code := []byte{OP_SCOPE}
	sub, err := compileNode(stmt, depth+1)
	if err != nil {
		return nil, err
	}
	code = append(code, sub...)
	code = append(code, OP_UNSCOPE)
	return append(code, PackU16(uint16(depth))...), nil
}

func compileWith(n *ast.Node, depth int) ([]byte, error) {
	code, err := compileExpr(n.Children[1], depth)
	if err != nil {
		return nil, err
	}
	body, err := compileBody(n.Children[2], depth)
	if err != nil {
		return nil, err
	}
	code = append(code, OP_WITH)
	code = append(code, PackU64(uint64(len(body)))...)
	return append(code, body...), nil
}

func compileIf(n *ast.Node, depth int) ([]byte, error) {
	expr, err := compileExpr(n.Children[1], depth)
	if err != nil {
		return nil, err
	}
	block, err := compileBody(n.Children[2], depth)
	if err != nil {
		return nil, err
	}
	var code []byte
	if len(n.Children) == 3 {
		code = append(code, OP_IF)
		code = append(code, PackU64(uint64(len(expr)))...)
		code = append(code, PackU64(uint64(len(block)))...)
		code = append(code, expr...)
		return append(code, block...), nil
	}
	if len(n.Children) == 5 && isLeaf(n.Children[3], "else") {
		block2, err := compileBody(n.Children[4], depth)
		if err != nil {
			return nil, err
		}
		code = append(code, OP_IFELSE)
		code = append(code, PackU64(uint64(len(expr)))...)
		code = append(code, PackU64(uint64(len(block)))...)
		code = append(code, PackU64(uint64(len(block2)))...)
		code = append(code, expr...)
		code = append(code, block...)
		return append(code, block2...), nil
	}
	return nil, internalErr(n)
}

func compileWhile(n *ast.Node, depth int) ([]byte, error) {
	expr, err := compileExpr(n.Children[1], depth)
	if err != nil {
		return nil, err
	}
	block, err := compileBody(n.Children[2], depth)
	if err != nil {
		return nil, err
	}
	code := []byte{OP_WHILE}
	code = append(code, PackU64(uint64(len(expr)))...)
	code = append(code, PackU64(uint64(len(block)))...)
	code = append(code, expr...)
	return append(code, block...), nil
}

// compileFor lays out [FOR][elen][postlen][clen][expr][post][block],
// with the whole loop wrapped in an extra SCOPE/UNSCOPE pair when an
// init clause is present. An omitted condition compiles to PUSHSHORT 1
// and an omitted post clause to NOP, so every control segment the VM
// will land on is non-empty and well-defined.
func compileFor(n *ast.Node, depth int) ([]byte, error) {
	var slots [3]*ast.Node
	idx := 0
	for _, child := range n.Children[1 : len(n.Children)-1] {
		if child.IsParent {
			if idx < 3 {
				slots[idx] = child
			}
		} else if child.Text == ";" {
			idx++
		}
	}
	stmt := n.Children[len(n.Children)-1]

	var code []byte
	if slots[0] != nil {
		code = append(code, OP_SCOPE)
		depth++
		init, err := compileNode(slots[0], depth)
		if err != nil {
			return nil, err
		}
		code = append(code, init...)
	}

	expr := []byte{OP_PUSHSHORT, 0x00, 0x01}
	if slots[1] != nil {
		var err error
		expr, err = compileExpr(slots[1], depth)
		if err != nil {
			return nil, err
		}
	}

	var block, post []byte
	var err error
	if len(stmt.Children) > 0 && isLeaf(stmt.Children[0], "{") {
		block, err = compileNode(stmt, depth)
		if err != nil {
			return nil, err
		}
		post, err = compileForSlotPost(slots[2], depth)
		if err != nil {
			return nil, err
		}
	} else {
		inner, err := compileNode(stmt, depth+1)
		if err != nil {
			return nil, err
		}
		block = append([]byte{OP_SCOPE}, inner...)
		block = append(block, OP_UNSCOPE)
		block = append(block, PackU16(uint16(depth))...)
		post, err = compileForSlotPost(slots[2], depth+1)
		if err != nil {
			return nil, err
		}
	}

	code = append(code, OP_FOR)
	code = append(code, PackU64(uint64(len(expr)))...)
	code = append(code, PackU64(uint64(len(post)))...)
	code = append(code, PackU64(uint64(len(block)))...)
	code = append(code, expr...)
	code = append(code, post...)
	code = append(code, block...)

	if slots[0] != nil {
		depth--
		code = append(code, OP_UNSCOPE)
		code = append(code, PackU16(uint16(depth))...)
	}
	return code, nil
}

func compileForSlotPost(post *ast.Node, depth int) ([]byte, error) {
	if post == nil {
		return []byte{OP_NOP}, nil
	}
	return compileNode(post, depth)
}

func compileForPost(n *ast.Node, depth int) ([]byte, error) {
	if len(n.Children) == 3 && n.Children[1].IsParent && n.Children[1].Text == "binstateop" {
		return compileAssignment(n.Children[0], n.Children[1], n.Children[2], depth)
	}
	if len(n.Children) == 1 && n.Children[0].IsParent {
		return compileNode(n.Children[0], depth)
	}
	return nil, internalErr(n)
}

// funcParts pulls the pieces every function-like node shares: the
// parameter names and the body statements.
func funcParts(n *ast.Node) (params []string, stmts []*ast.Node) {
	for _, child := range n.Children {
		if !child.IsParent {
			continue
		}
		switch child.Text {
		case "funcargnames":
			for _, p := range child.Children {
				params = append(params, p.Children[0].Text)
			}
		case "statement":
			stmts = append(stmts, child)
		}
	}
	return params, stmts
}

func compileFuncBody(stmts []*ast.Node) ([]byte, error) {
	var body []byte
	for _, stmt := range stmts {
		sub, err := compileNode(stmt, 0)
		if err != nil {
			return nil, err
		}
		body = append(body, sub...)
	}
	return append(body, OP_EXIT), nil
}

func compileFuncdef(n *ast.Node) ([]byte, error) {
	name := n.Children[1].Children[0].Text
	params, stmts := funcParts(n)
	body, err := compileFuncBody(stmts)
	if err != nil {
		return nil, err
	}
	code := []byte{OP_FUNCDEF}
	code = appendCString(code, name)
	code = append(code, PackU16(uint16(len(params)))...)
	code = append(code, PackU64(uint64(len(body)))...)
	for _, p := range params {
		code = appendCString(code, p)
	}
	return append(code, body...), nil
}

func compileLambda(n *ast.Node, depth int) ([]byte, error) {
	var captures []*ast.Node
	for _, child := range n.Children {
		if child.IsParent && child.Text == "lambdacaptures" {
			captures = child.Children
		}
	}
	params, stmts := funcParts(n)
	body, err := compileFuncBody(stmts)
	if err != nil {
		return nil, err
	}

	// capture initializers run before the LAMBDA opcode collects them; a
	// bare name captures the variable's current value
	var code []byte
	for _, capture := range captures {
		name := capture.Children[0].Children[0].Text
		code = append(code, OP_PUSHSTR)
		code = appendCString(code, name)
		if len(capture.Children) == 3 {
			sub, err := compileExpr(capture.Children[2], depth)
			if err != nil {
				return nil, err
			}
			code = append(code, sub...)
		} else {
			code = append(code, OP_PUSHVAR)
			code = appendCString(code, name)
		}
	}
	code = append(code, OP_LAMBDA)
	code = append(code, PackU16(uint16(len(captures)))...)
	code = append(code, PackU16(uint16(len(params)))...)
	code = append(code, PackU64(uint64(len(body)))...)
	for _, p := range params {
		code = appendCString(code, p)
	}
	return append(code, body...), nil
}

func compileObjdef(n *ast.Node) ([]byte, error) {
	name := n.Children[1].Children[0].Text
	var funcs []*ast.Node
	for _, child := range n.Children {
		if child.IsParent && child.Text == "funcdef" {
			funcs = append(funcs, child)
		}
	}
	var tails []byte
	for _, fn := range funcs {
		sub, err := compileFuncdef(fn)
		if err != nil {
			return nil, err
		}
		tails = append(tails, sub[1:]...) // cut off the FUNCDEF byte
	}
	code := []byte{OP_OBJDEF}
	code = appendCString(code, name)
	code = append(code, PackU16(uint16(len(funcs)))...)
	return append(code, tails...), nil
}
