package builtins

import (
	"bytes"
	"testing"

	"github.com/vexlang/vex/internal/parser"
	"github.com/vexlang/vex/internal/value"
	"github.com/vexlang/vex/internal/vm"
)

func newParser(t *testing.T) *parser.Parser {
	t.Helper()
	p, err := parser.New(nil)
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	return p
}

func TestAstDictRoundTrip(t *testing.T) {
	p := newParser(t)
	root, err := p.ParseText("print(1+2*3);")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dict := astToDict(root)
	back, err := dictToAst(dict)
	if err != nil {
		t.Fatalf("dictToAst: %v", err)
	}
	if back.String() != root.String() {
		t.Errorf("round trip changed the tree:\n got %s\nwant %s", back.String(), root.String())
	}
}

func TestAstDictShape(t *testing.T) {
	p := newParser(t)
	root, err := p.ParseText("var x = 1;")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dict := astToDict(root)
	for _, field := range []string{"text", "line", "position", "isparent", "children", "opdata"} {
		if _, ok := dict.Get(value.TextKey(field)); !ok {
			t.Errorf("ast dict lacks %q", field)
		}
	}
	text, _ := dict.Get(value.TextKey("text"))
	if text.(value.Text) != "program" {
		t.Errorf("root text = %s", text.Inspect())
	}
}

func TestDictToAstRejectsMalformed(t *testing.T) {
	d := value.NewDict()
	d.Set(value.TextKey("text"), value.Text("program"))
	if _, err := dictToAst(d); err == nil {
		t.Error("expected an error for a dict missing ast fields")
	}
}

func TestLenAndKeys(t *testing.T) {
	arr := &value.Array{Elems: []value.Value{value.Number(5), value.Number(6)}}
	got, _, err := bindLen(nil, []value.Value{arr}, false)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if float64(got.(value.Number)) != 2 {
		t.Errorf("len = %s", got.Inspect())
	}

	got, _, err = bindLen(nil, []value.Value{value.Text("héllo")}, false)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if float64(got.(value.Number)) != 5 {
		t.Errorf("len of text = %s, want 5 code points", got.Inspect())
	}

	keys, _, err := bindKeys(nil, []value.Value{arr}, false)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	elems := keys.(*value.Array).Elems
	if len(elems) != 2 || float64(elems[1].(value.Number)) != 1 {
		t.Errorf("keys = %s", keys.Inspect())
	}

	if _, _, err := bindLen(nil, []value.Value{value.Number(1)}, false); err == nil {
		t.Error("expected an error taking len of a number")
	}
}

func TestPrintFormatting(t *testing.T) {
	var buf bytes.Buffer
	fn := bindPrint(&buf)
	args := []value.Value{
		value.Number(2.5),
		value.Text("plain"),
		&value.Array{Elems: []value.Value{value.Text("q")}},
	}
	if _, _, err := fn(nil, args, false); err != nil {
		t.Fatalf("print: %v", err)
	}
	want := "2.5\nplain\n[\"q\"]\n"
	if buf.String() != want {
		t.Errorf("printed %q, want %q", buf.String(), want)
	}
}

func TestInstanceCreateRequiresObject(t *testing.T) {
	m := vm.New([]byte{0xF0}) // bare EXIT
	if _, _, err := bindInstanceCreate(m, []value.Value{value.Number(12345)}, false); err == nil {
		t.Error("expected an error for a missing object")
	}
}
