// Package parser implements the grammar-driven recursive descent
// parser: it backtracks across a named rule's alternative Forms, in
// declared order, matching each Form's grammar tokens against the token
// stream produced by internal/lexer.
//
// The grammar itself (internal/parser/grammar.txt) is data, not code;
// this file is the engine that walks it.
package parser

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vexlang/vex/internal/ast"
	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/grammar"
	"github.com/vexlang/vex/internal/lexer"
	"github.com/vexlang/vex/internal/token"
)

//go:embed grammar.txt
var defaultGrammarSrc string

// DefaultGrammar loads the vex language grammar embedded at build time.
func DefaultGrammar() (*grammar.Grammar, error) {
	return grammar.Load(defaultGrammarSrc)
}

// Parser matches a token stream against a Grammar's "program" rule.
type Parser struct {
	g    *grammar.Grammar
	toks []token.Token

	regexCache map[string]*regexp.Regexp

	// source lines of the last ParseText call, for error carets
	srcLines []string

	pos      int
	bestPos  int
	expected map[string]bool
}

// New builds a Parser bound to g. Pass nil to use DefaultGrammar.
func New(g *grammar.Grammar) (*Parser, error) {
	if g == nil {
		var err error
		g, err = DefaultGrammar()
		if err != nil {
			return nil, err
		}
	}
	return &Parser{g: g, regexCache: map[string]*regexp.Regexp{}, expected: map[string]bool{}}, nil
}

// ParseSource lexes and parses src in one call.
func ParseSource(g *grammar.Grammar, src string) (*ast.Node, error) {
	p, err := New(g)
	if err != nil {
		return nil, err
	}
	return p.ParseText(src)
}

// ParseText lexes and parses src against p's grammar.
func (p *Parser) ParseText(src string) (*ast.Node, error) {
	lx, err := lexer.New(p.g)
	if err != nil {
		return nil, err
	}
	toks, err := lx.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p.srcLines = strings.Split(src, "\n")
	defer func() { p.srcLines = nil }()
	return p.Parse(toks)
}

// Parse matches the full token stream against the "program" rule and
// post-processes the resulting tree. A short parse is an error.
func (p *Parser) Parse(toks []token.Token) (*ast.Node, error) {
	p.toks = toks
	p.pos = 0
	p.bestPos = 0
	p.expected = map[string]bool{}

	root, ok := p.matchRule("program")
	if !ok || p.pos != len(p.toks) {
		return nil, p.parseError()
	}
	return ast.PostProcess(root)
}

func (p *Parser) parseError() error {
	line, col := 0, 0
	if p.bestPos < len(p.toks) {
		t := p.toks[p.bestPos]
		line, col = t.Line, t.Column
	} else if len(p.toks) > 0 {
		t := p.toks[len(p.toks)-1]
		line, col = t.Line, t.Column
	}
	if p.bestPos >= len(p.toks) && len(p.expected) == 0 {
		return diagnostics.New(diagnostics.PhaseParser, diagnostics.ErrP002, line, col)
	}
	exp := make([]string, 0, len(p.expected))
	for e := range p.expected {
		exp = append(exp, e)
	}
	sort.Strings(exp)
	got := "<end of input>"
	if p.bestPos < len(p.toks) {
		got = p.toks[p.bestPos].Text
	}
	d := diagnostics.New(diagnostics.PhaseParser, diagnostics.ErrP001, line, col, got, exp)
	d.Snippet = p.caretSnippet(line, col)
	return d
}

// caretSnippet renders the offending source line with a caret under
// the failure column, when the source is available.
func (p *Parser) caretSnippet(line, col int) string {
	if line < 1 || line > len(p.srcLines) || col < 1 {
		return ""
	}
	src := strings.TrimRight(p.srcLines[line-1], "\r")
	if col > len(src)+1 {
		return ""
	}
	pad := make([]byte, col-1)
	for i, c := range []byte(src[:col-1]) {
		if c == '\t' {
			pad[i] = '\t'
		} else {
			pad[i] = ' '
		}
	}
	return src + "\n" + string(pad) + "^"
}

func (p *Parser) fail(expected string) {
	if p.pos > p.bestPos {
		p.bestPos = p.pos
		p.expected = map[string]bool{expected: true}
	} else if p.pos == p.bestPos {
		p.expected[expected] = true
	}
}

func (p *Parser) peek() (token.Token, bool) {
	if p.pos >= len(p.toks) {
		return token.Token{}, false
	}
	return p.toks[p.pos], true
}

// matchRule tries every Form of the named rule in declared order.
func (p *Parser) matchRule(name string) (*ast.Node, bool) {
	rule, ok := p.g.Rules[name]
	if !ok {
		return nil, false
	}
	for _, form := range rule.Forms {
		save := p.pos
		children, ok := p.matchForm(form)
		if ok {
			line, col := 0, 0
			if len(children) > 0 {
				line, col = children[0].Line, children[0].Column
			} else if t, ok := p.peek(); ok {
				line, col = t.Line, t.Column
			}
			return ast.Parent(name, line, col, children...), true
		}
		p.pos = save
	}
	return nil, false
}

// matchForm matches one alternative form, honoring the RestIsOptional
// fallback: once past that sentinel, a later failure succeeds with
// whatever was consumed up to it.
func (p *Parser) matchForm(form grammar.Form) ([]*ast.Node, bool) {
	var children []*ast.Node
	var fallback []*ast.Node
	fallbackPos := 0
	haveFallback := false

	for _, gt := range form.Tokens {
		switch gt.Kind {
		case grammar.RestIsOptional:
			fallback = append([]*ast.Node{}, children...)
			fallbackPos = p.pos
			haveFallback = true
			continue
		case grammar.Plain:
			t, ok := p.peek()
			if !ok || t.Text != gt.Text {
				p.fail(gt.Text)
				if haveFallback {
					p.pos = fallbackPos
					return fallback, true
				}
				return nil, false
			}
			children = append(children, ast.Leaf(t.Text, t.Line, t.Column))
			p.pos++
		case grammar.Op:
			t, ok := p.peek()
			if !ok || t.Text != gt.Text {
				p.fail(gt.Text)
				if haveFallback {
					p.pos = fallbackPos
					return fallback, true
				}
				return nil, false
			}
			leaf := ast.Leaf(t.Text, t.Line, t.Column)
			leaf.Op = ast.OpData{IsOp: true, Assoc: gt.Assoc, Precedence: gt.Precedence}
			children = append(children, leaf)
			p.pos++
		case grammar.Regex:
			re := p.regex(gt.Text)
			t, ok := p.peek()
			if !ok || !re.MatchString(t.Text) {
				p.fail("<" + gt.Text + ">")
				if haveFallback {
					p.pos = fallbackPos
					return fallback, true
				}
				return nil, false
			}
			children = append(children, ast.Leaf(t.Text, t.Line, t.Column))
			p.pos++
		case grammar.Name:
			node, ok := p.matchRule(gt.Text)
			if !ok {
				if haveFallback {
					p.pos = fallbackPos
					return fallback, true
				}
				return nil, false
			}
			children = append(children, node)
		case grammar.OptionalName:
			save := p.pos
			if node, ok := p.matchRule(gt.Text); ok {
				children = append(children, node)
			} else {
				p.pos = save
			}
		case grammar.NameList:
			count := 0
			for {
				save := p.pos
				node, ok := p.matchRule(gt.Text)
				if !ok {
					p.pos = save
					break
				}
				children = append(children, node)
				count++
			}
			if count == 0 {
				if haveFallback {
					p.pos = fallbackPos
					return fallback, true
				}
				return nil, false
			}
		case grammar.OptionalNameList:
			for {
				save := p.pos
				node, ok := p.matchRule(gt.Text)
				if !ok {
					p.pos = save
					break
				}
				children = append(children, node)
			}
		case grammar.SeparatorNameList:
			first, ok := p.matchRule(gt.Text)
			if !ok {
				if haveFallback {
					p.pos = fallbackPos
					return fallback, true
				}
				return nil, false
			}
			children = append(children, first)
			for {
				save := p.pos
				t, ok := p.peek()
				if !ok || t.Text != gt.Separator {
					break
				}
				p.pos++
				node, ok := p.matchRule(gt.Text)
				if !ok {
					p.pos = save
					break
				}
				children = append(children, node)
			}
		default:
			panic(fmt.Sprintf("parser: unhandled grammar token kind %v", gt.Kind))
		}
	}
	return children, true
}

func (p *Parser) regex(pat string) *regexp.Regexp {
	if re, ok := p.regexCache[pat]; ok {
		return re
	}
	re := regexp.MustCompile("^(?:" + pat + ")$")
	p.regexCache[pat] = re
	return re
}
