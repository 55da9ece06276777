package builtins

import (
	"github.com/vexlang/vex/internal/ast"
	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/value"
)

// astToDict renders a parsed AST as nested dicts for scripts to
// inspect and rewrite, with keys text, line, position, isparent,
// children, and opdata.
func astToDict(n *ast.Node) *value.Dict {
	d := value.NewDict()
	d.Set(value.TextKey("text"), value.Text(n.Text))
	d.Set(value.TextKey("line"), value.Number(n.Line))
	d.Set(value.TextKey("position"), value.Number(n.Column))
	d.Set(value.TextKey("isparent"), boolNum(n.IsParent))

	children := make([]value.Value, len(n.Children))
	for i, child := range n.Children {
		children[i] = astToDict(child)
	}
	d.Set(value.TextKey("children"), &value.Array{Elems: children})

	opdata := value.NewDict()
	opdata.Set(value.TextKey("isop"), boolNum(n.Op.IsOp))
	opdata.Set(value.TextKey("assoc"), value.Number(n.Op.Assoc))
	opdata.Set(value.TextKey("precedence"), value.Number(n.Op.Precedence))
	d.Set(value.TextKey("opdata"), opdata)
	return d
}

func boolNum(b bool) value.Number {
	if b {
		return 1
	}
	return 0
}

// dictToAst is the inverse of astToDict, used by compile_ast.
func dictToAst(d *value.Dict) (*ast.Node, error) {
	n := &ast.Node{}
	text, err := dictText(d, "text")
	if err != nil {
		return nil, err
	}
	n.Text = text
	line, err := dictNumber(d, "line")
	if err != nil {
		return nil, err
	}
	n.Line = int(line)
	position, err := dictNumber(d, "position")
	if err != nil {
		return nil, err
	}
	n.Column = int(position)
	isparent, err := dictNumber(d, "isparent")
	if err != nil {
		return nil, err
	}
	n.IsParent = value.Truthy(value.Number(isparent))

	childrenVal, ok := d.Get(value.TextKey("children"))
	if !ok {
		return nil, astFieldErr("children")
	}
	children, ok := childrenVal.(*value.Array)
	if !ok {
		return nil, astFieldErr("children")
	}
	for _, child := range children.Elems {
		childDict, ok := child.(*value.Dict)
		if !ok {
			return nil, astFieldErr("children")
		}
		sub, err := dictToAst(childDict)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, sub)
	}

	opdataVal, ok := d.Get(value.TextKey("opdata"))
	if !ok {
		return nil, astFieldErr("opdata")
	}
	opdata, ok := opdataVal.(*value.Dict)
	if !ok {
		return nil, astFieldErr("opdata")
	}
	isop, err := dictNumber(opdata, "isop")
	if err != nil {
		return nil, err
	}
	assoc, err := dictNumber(opdata, "assoc")
	if err != nil {
		return nil, err
	}
	precedence, err := dictNumber(opdata, "precedence")
	if err != nil {
		return nil, err
	}
	n.Op = ast.OpData{
		IsOp:       value.Truthy(value.Number(isop)),
		Assoc:      int(assoc),
		Precedence: int(precedence),
	}
	return n, nil
}

func dictText(d *value.Dict, field string) (string, error) {
	v, ok := d.Get(value.TextKey(field))
	if !ok {
		return "", astFieldErr(field)
	}
	t, ok := v.(value.Text)
	if !ok {
		return "", astFieldErr(field)
	}
	return string(t), nil
}

func dictNumber(d *value.Dict, field string) (float64, error) {
	v, ok := d.Get(value.TextKey(field))
	if !ok {
		return 0, astFieldErr(field)
	}
	n, ok := v.(value.Number)
	if !ok {
		return 0, astFieldErr(field)
	}
	return float64(n), nil
}

func astFieldErr(field string) error {
	return diagnostics.New(diagnostics.PhaseRuntime, diagnostics.ErrR006,
		0, 0, "ast dict is missing or mistypes the "+field+" field")
}
