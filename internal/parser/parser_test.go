package parser_test

import (
	"strings"
	"testing"

	"github.com/vexlang/vex/internal/ast"
	"github.com/vexlang/vex/internal/parser"
)

func parse(t *testing.T, src string) *ast.Node {
	t.Helper()
	p, err := parser.New(nil)
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	root, err := p.ParseText(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return root
}

func parseErr(t *testing.T, src string) error {
	t.Helper()
	p, err := parser.New(nil)
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	_, err = p.ParseText(src)
	if err == nil {
		t.Fatalf("parse %q: expected an error", src)
	}
	return err
}

// find returns the first node with the given tag, depth-first.
func find(n *ast.Node, tag string) *ast.Node {
	if n.IsParent && n.Text == tag {
		return n
	}
	for _, c := range n.Children {
		if got := find(c, tag); got != nil {
			return got
		}
	}
	return nil
}

func walk(n *ast.Node, fn func(*ast.Node)) {
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}

func TestParsePrograms(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"declaration", "var x = 5;"},
		{"multi_declaration", "var x = 1, y = 2;"},
		{"far_declaration", "far health;"},
		{"assignment", "x = 1;"},
		{"compound_assignment", "x += 2;"},
		{"call_statement", "print(1);"},
		{"nested_call", "f(g(1), 2);"},
		{"block", "{ var x = 1; x = 2; }"},
		{"if", "if (x > 1) { print(x); }"},
		{"if_else", "if (x) { f(); } else { g(); }"},
		{"if_bare", "if (x) print(x);"},
		{"while", "while (x < 10) { x += 1; }"},
		{"for_full", "for (var i = 0; i < 5; i += 1) { print(i); }"},
		{"for_empty_slots", "for (;;) { break; }"},
		{"with", "with (Enemy) { hp = 0; }"},
		{"funcdef", "function add(a, b) { return a + b; }"},
		{"objdef", "object Enemy { function create() { far hp; } }"},
		{"lambda", "var f = [a = 1]() -> { return a; };"},
		{"lambda_capture_by_name", "var f = [a]() -> { return a; };"},
		{"lambda_args", "var f = [](x) -> { return x; };"},
		{"array_literal", "var a = [1, 2, 3];"},
		{"dict_literal", `var d = {"k": 1, 2: "v"};`},
		{"indexing", "a[0] = a[1];"},
		{"indirection", "inst.x = 5;"},
		{"chained", "a.b[0](1);"},
		{"break_continue", "while (1) { if (x) { break; } continue; }"},
		{"return_void", "function f() { return; }"},
		{"unary", "x = -y + !z;"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := parse(t, tc.input)
			if root.Text != "program" {
				t.Errorf("root is %q, want program", root.Text)
			}
		})
	}
}

// Post-processing invariants: every call-like node is binary, no
// binexpr collapses to a single child.
func TestPostProcessShapes(t *testing.T) {
	srcs := []string{
		"print(1+2*3);",
		"a.b.c[1](2)(3);",
		"x = f(1)[2].y;",
		"var q = (1+2)*(3-4);",
	}
	for _, src := range srcs {
		root := parse(t, src)
		walk(root, func(n *ast.Node) {
			if !n.IsParent {
				return
			}
			switch {
			case n.Text == "funccall" || n.Text == "funcexpr" || n.Text == "arrayexpr" || n.Text == "indirection":
				if len(n.Children) != 2 {
					t.Errorf("%s: %s has %d children, want 2", src, n.Text, len(n.Children))
				}
			case strings.HasPrefix(n.Text, "binexpr_"):
				if len(n.Children) == 1 {
					t.Errorf("%s: single-child %s survived post-processing", src, n.Text)
				}
			}
		})
	}
}

// a-b-c parses leftward: ((a-b)-c).
func TestLeftAssociativity(t *testing.T) {
	root := parse(t, "x = 10-3-2;")
	top := find(root, "binexpr_4")
	if top == nil {
		t.Fatal("no binexpr_4 in tree")
	}
	left := top.Children[0]
	if !left.IsParent || !strings.HasPrefix(left.Text, "binexpr_") {
		t.Fatalf("left child is %q, want a binexpr (left-skewed tree)", left.Text)
	}
	right := top.Children[2]
	if right.IsParent && strings.HasPrefix(right.Text, "binexpr_") {
		t.Error("right child is a binexpr; tree still skews right")
	}
}

// 1+2*3: the * subtree hangs off the right side of +.
func TestPrecedence(t *testing.T) {
	root := parse(t, "x = 1+2*3;")
	add := find(root, "binexpr_4")
	if add == nil {
		t.Fatal("no binexpr_4 (add level) in tree")
	}
	right := add.Children[2]
	if !right.IsParent || right.Text != "binexpr_5" {
		t.Fatalf("right child of + is %q, want binexpr_5 (mul level)", right.Text)
	}
}

func TestParseConsumesAllTokens(t *testing.T) {
	parseErr(t, "var x = 5; )")
	parseErr(t, "var x = 5; var")
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"missing_semicolon", "var x = 5"},
		{"missing_rhs", "x = ;"},
		{"unclosed_block", "{ var x = 1;"},
		{"bad_for", "for (var i = 0) { }"},
		{"objdef_create_args", "object O { function create(a) { } }"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parseErr(t, tc.input)
		})
	}
}

func TestParseErrorMentionsExpected(t *testing.T) {
	err := parseErr(t, "x = ;")
	if !strings.Contains(err.Error(), "unexpected token") {
		t.Errorf("error %q does not describe the unexpected token", err)
	}
	if !strings.Contains(err.Error(), "^") {
		t.Errorf("error %q lacks a caret into the source line", err)
	}
}

func TestConditionParensStripped(t *testing.T) {
	root := parse(t, "if (x) { f(); }")
	ifc := find(root, "ifcondition")
	if ifc == nil {
		t.Fatal("no ifcondition")
	}
	for _, c := range ifc.Children {
		if !c.IsParent && (c.Text == "(" || c.Text == ")") {
			t.Error("parens survived in ifcondition")
		}
	}
	if len(ifc.Children) != 3 {
		t.Errorf("ifcondition has %d children, want 3", len(ifc.Children))
	}
}
