package grammar

import "testing"

const miniGrammar = `
TOKEN name:
%[A-Za-z_][A-Za-z_0-9]*%

program:
$statement$*

statement:
$name$ = $name$ ;
print ( $args$? ) ;

args:
$name$...,

binop:
+ \l 50
- \r 60

optional:
$name$ >>? ;
`

func TestLoad(t *testing.T) {
	g, err := Load(miniGrammar)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Rules) != 6 {
		t.Fatalf("got %d rules, want 6", len(g.Rules))
	}
	name := g.Rules["name"]
	if !name.IsTokenRule {
		t.Error("name should be a TOKEN rule")
	}
	if len(name.Forms) != 1 || name.Forms[0].Tokens[0].Kind != Regex {
		t.Error("name form should be a single regex token")
	}

	stmt := g.Rules["statement"]
	if len(stmt.Forms) != 2 {
		t.Fatalf("statement has %d forms, want 2", len(stmt.Forms))
	}
	first := stmt.Forms[0].Tokens
	wantKinds := []TokenKind{Name, Plain, Name, Plain}
	for i, k := range wantKinds {
		if first[i].Kind != k {
			t.Errorf("statement form 0 token %d kind = %v, want %v", i, first[i].Kind, k)
		}
	}
}

func TestLoadOperators(t *testing.T) {
	g, err := Load(miniGrammar)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	forms := g.Rules["binop"].Forms
	plus := forms[0].Tokens[0]
	if plus.Kind != Op || plus.Assoc != 1 || plus.Precedence != 50 {
		t.Errorf("+ parsed as %+v", plus)
	}
	minus := forms[1].Tokens[0]
	if minus.Kind != Op || minus.Assoc != 0 || minus.Precedence != 60 {
		t.Errorf("- parsed as %+v", minus)
	}
}

func TestLoadSeparatorList(t *testing.T) {
	g, err := Load(miniGrammar)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tok := g.Rules["args"].Forms[0].Tokens[0]
	if tok.Kind != SeparatorNameList || tok.Text != "name" || tok.Separator != "," {
		t.Errorf("separator list parsed as %+v", tok)
	}
}

func TestLoadRestIsOptional(t *testing.T) {
	g, err := Load(miniGrammar)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	toks := g.Rules["optional"].Forms[0].Tokens
	if toks[1].Kind != RestIsOptional {
		t.Errorf("expected RestIsOptional, got %+v", toks[1])
	}
}

// Symbols must sort longest-first so the lexer matches greedily.
func TestSymbolOrdering(t *testing.T) {
	src := `
program:
$a$

a:
x == y
x = y
x ; y
`
	g, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Symbols) < 2 || g.Symbols[0] != "==" {
		t.Errorf("symbols not sorted longest-first: %v", g.Symbols)
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{"no_program", "statement:\nx\n"},
		{"undefined_rule", "program:\n$missing$\n"},
		{"bad_token", "program:\n$bad\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(tc.src); err == nil {
				t.Error("expected a load error")
			}
		})
	}
}
