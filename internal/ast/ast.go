// Package ast defines the parse tree produced by internal/parser and
// its two post-processing passes: left-associativity rotation for
// binary operator chains, and a structural cleanup pass that turns
// grammar-shaped nodes (rhunexpr trailer lists, paren-wrapped
// conditions, dangling semicolons) into the shapes internal/compiler
// expects.
package ast

import (
	"fmt"
	"strings"

	"github.com/vexlang/vex/internal/diagnostics"
)

// OpData carries the operator metadata the grammar's Op token attaches
// to a matched leaf.
type OpData struct {
	IsOp       bool
	Assoc      int // 0 = right, 1 = left
	Precedence int
}

// Node is one AST node: a leaf carrying matched token text, or a parent
// carrying a rule name and children.
type Node struct {
	Text     string
	Line     int
	Column   int
	IsParent bool
	Children []*Node
	Op       OpData
}

// Leaf builds a non-parent node from a matched token.
func Leaf(text string, line, col int) *Node {
	return &Node{Text: text, Line: line, Column: col}
}

// Parent builds a parent node tagged with a grammar rule name.
func Parent(name string, line, col int, children ...*Node) *Node {
	return &Node{Text: name, Line: line, Column: col, IsParent: true, Children: children}
}

func (n *Node) String() string {
	if !n.IsParent {
		return n.Text
	}
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s(%s)", n.Text, strings.Join(parts, " "))
}

// PostProcess runs both passes over root and returns the resulting tree
// (the rotation pass rewrites in place; the structural pass may replace
// nodes, so the returned root must be used).
func PostProcess(root *Node) (*Node, error) {
	rotate(root)
	root = restructure(root)
	if err := validate(root); err != nil {
		return nil, err
	}
	return root, nil
}

// rotate fixes associativity: for every binexpr_ node with exactly 3
// children L OP R, if R is itself a binexpr_ of the same precedence and
// both operators are left-associative, rotate so the tree skews left.
// Applied to a fixpoint at each node, then recursively into children.
func rotate(n *Node) {
	if !n.IsParent {
		return
	}
	for strings.HasPrefix(n.Text, "binexpr_") && len(n.Children) == 3 {
		l, op, r := n.Children[0], n.Children[1], n.Children[2]
		if !r.IsParent || !strings.HasPrefix(r.Text, "binexpr_") || len(r.Children) != 3 {
			break
		}
		opLeaf := opLeafOf(op)
		rOpLeaf := opLeafOf(r.Children[1])
		if opLeaf == nil || rOpLeaf == nil {
			break
		}
		if opLeaf.Op.Precedence != rOpLeaf.Op.Precedence || opLeaf.Op.Assoc != 1 || rOpLeaf.Op.Assoc != 1 {
			break
		}
		// rotate: n becomes (L op r.L), new top is r with (n, r.op, r.R)
		rl := r.Children[0]
		newLeft := &Node{Text: n.Text, Line: n.Line, Column: n.Column, IsParent: true, Children: []*Node{l, op, rl}}
		n.Text, n.Children = r.Text, []*Node{newLeft, r.Children[1], r.Children[2]}
	}
	for _, c := range n.Children {
		rotate(c)
	}
}

// opLeafOf finds the leaf token carrying operator metadata inside a
// (possibly rule-wrapped) operator node, matching the pattern the grammar
// produces: a parent node (e.g. "binop_add") whose single child is the
// literal operator leaf.
func opLeafOf(n *Node) *Node {
	if !n.IsParent {
		if n.Op.IsOp {
			return n
		}
		return nil
	}
	if len(n.Children) != 1 {
		return nil
	}
	return opLeafOf(n.Children[0])
}

var binexprCollapse = map[string]bool{"simplexpr": true, "supersimplexpr": true, "lhunop": true}

func isBinexpr(text string) bool { return strings.HasPrefix(text, "binexpr_") }

// restructure applies the structural cleanup pass recursively, leaves
// first.
func restructure(n *Node) *Node {
	if !n.IsParent {
		return n
	}
	for i, c := range n.Children {
		n.Children[i] = restructure(c)
	}

	switch {
	case n.Text == "statement" || n.Text == "barestatement":
		stripTrailingSemicolon(n)
	case isBinexpr(n.Text) || binexprCollapse[n.Text]:
		if len(n.Children) == 1 {
			return n.Children[0]
		}
	case n.Text == "funcargs":
		n.Children = stripParens(n.Children)
	case n.Text == "funccall":
		return unwrapFunccall(n)
	case n.Text == "rhunexpr":
		return foldRhunexpr(n)
	case n.Text == "ifcondition" || n.Text == "whilecondition" || n.Text == "withstatement":
		stripConditionParens(n)
	case n.Text == "forcondition":
		stripForParens(n)
	}
	return n
}

func stripTrailingSemicolon(n *Node) {
	if len(n.Children) == 0 {
		return
	}
	last := n.Children[len(n.Children)-1]
	if !last.IsParent && last.Text == ";" {
		n.Children = n.Children[:len(n.Children)-1]
	}
}

// stripParens discards the outer "(" and ")" literal children, if present.
func stripParens(children []*Node) []*Node {
	if len(children) >= 2 {
		first, last := children[0], children[len(children)-1]
		if !first.IsParent && first.Text == "(" && !last.IsParent && last.Text == ")" {
			return children[1 : len(children)-1]
		}
	}
	return children
}

// stripConditionParens drops the literal "(" and ")" tokens at positions
// 1 and 3 of an if/while/with condition header.
func stripConditionParens(n *Node) {
	if len(n.Children) < 4 {
		return
	}
	if n.Children[1].IsParent || n.Children[1].Text != "(" {
		return
	}
	if n.Children[3].IsParent || n.Children[3].Text != ")" {
		return
	}
	out := make([]*Node, 0, len(n.Children)-2)
	out = append(out, n.Children[0])
	out = append(out, n.Children[2])
	out = append(out, n.Children[4:]...)
	n.Children = out
}

// stripForParens drops the literal "(" and ")" tokens bracketing a
// forcondition header; unlike if/while/with, the header's segment count
// varies with which of the three optional clauses are present, so the
// parens are located by value rather than fixed position.
func stripForParens(n *Node) {
	out := n.Children[:0:0]
	for _, c := range n.Children {
		if !c.IsParent && (c.Text == "(" || c.Text == ")") {
			continue
		}
		out = append(out, c)
	}
	n.Children = out
}

// foldRhunexpr left-folds an rhunexpr trailer list into a chain of
// binary nodes, renaming each link by its right child's shape: funcargs
// make a funcexpr, arrayindex an arrayexpr, dotname an indirection.
func foldRhunexpr(n *Node) *Node {
	if len(n.Children) == 1 {
		return n.Children[0]
	}
	result := n.Children[0]
	for _, trailer := range n.Children[1:] {
		inner := trailer
		if trailer.IsParent && trailer.Text == "rhuntrailer" && len(trailer.Children) == 1 {
			inner = trailer.Children[0]
		}
		result = &Node{
			Text: renameRhunexpr(inner), Line: result.Line, Column: result.Column,
			IsParent: true, Children: []*Node{result, inner},
		}
	}
	return result
}

func renameRhunexpr(inner *Node) string {
	if !inner.IsParent {
		return "rhunexpr"
	}
	switch inner.Text {
	case "funcargs":
		return "funcexpr"
	case "arrayindex":
		return "arrayexpr"
	case "dotname":
		return "indirection"
	default:
		return "rhunexpr"
	}
}

// unwrapFunccall unwraps a single-child funccall into the funcexpr it
// holds; anything else inside is a user error, caught by validate.
func unwrapFunccall(n *Node) *Node {
	if len(n.Children) != 1 {
		return n
	}
	inner := n.Children[0]
	if !inner.IsParent || inner.Text != "funcexpr" {
		// validated in validate(); keep the shape so validate can report it
		n.Children[0] = inner
		return n
	}
	inner.Text = "funccall"
	return inner
}

// validate rejects trees no later stage can compile: object
// create/destroy members with parameters, and call-like nodes that did
// not fold to exactly two children.
func validate(n *Node) error {
	if !n.IsParent {
		return nil
	}
	switch n.Text {
	case "objdef":
		if err := validateObjdef(n); err != nil {
			return err
		}
	case "funccall", "funcexpr", "arrayexpr", "indirection":
		if len(n.Children) != 2 {
			return diagnostics.New(diagnostics.PhaseAST, diagnostics.ErrA002, n.Line, n.Column, n.Text, len(n.Children))
		}
	}
	for _, c := range n.Children {
		if err := validate(c); err != nil {
			return err
		}
	}
	return nil
}

func validateObjdef(n *Node) error {
	objName := ""
	if len(n.Children) > 1 && n.Children[1].IsParent && len(n.Children[1].Children) > 0 {
		objName = n.Children[1].Children[0].Text
	}
	for _, c := range n.Children {
		if !c.IsParent || c.Text != "funcdef" {
			continue
		}
		fname := ""
		if len(c.Children) > 1 && c.Children[1].IsParent && len(c.Children[1].Children) > 0 {
			fname = c.Children[1].Children[0].Text
		}
		if fname != "create" && fname != "destroy" {
			continue
		}
		argc := countFuncdefArgs(c)
		if argc != 0 {
			return diagnostics.New(diagnostics.PhaseAST, diagnostics.ErrA001, c.Line, c.Column, fname, objName)
		}
	}
	return nil
}

func countFuncdefArgs(funcdef *Node) int {
	for _, c := range funcdef.Children {
		if c.IsParent && c.Text == "funcargnames" {
			return len(c.Children)
		}
	}
	return 0
}
