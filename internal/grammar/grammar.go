// Package grammar loads a textual grammar description into the set of
// named rules the parser matches against.
//
// Rules, their alternative forms, operator metadata, and the lexical
// token classes all come from this one text, so the language's surface
// syntax can change without touching the lexer or parser code.
package grammar

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/vexlang/vex/internal/diagnostics"
)

// TokenKind distinguishes the ways one grammar token can match input.
type TokenKind int

const (
	Plain TokenKind = iota
	Regex
	Name
	NameList
	OptionalName
	OptionalNameList
	SeparatorNameList
	Op
	RestIsOptional
)

// GrammarToken is one element of a grammar Form.
type GrammarToken struct {
	Kind       TokenKind
	Text       string // literal text, rule name, or regex body
	Separator  string // only for SeparatorNameList
	Assoc      int    // 0 = right, 1 = left; only for Op
	Precedence int    // only for Op
}

// Form is one alternative way to write a rule.
type Form struct {
	Tokens []GrammarToken
}

// Rule is a named grammar point: an ordered list of alternative Forms.
type Rule struct {
	Name        string
	IsTokenRule bool
	Forms       []Form
}

// Grammar is the fully loaded, validated rule set plus the lexical
// classes it implies for the lexer (regexes in declared order, symbols
// and words sorted longest-first so the lexer matches greedily).
type Grammar struct {
	Rules   map[string]*Rule
	Regexes []string
	Symbols []string
	Words   []string

	regexSet  map[string]bool
	symbolSet map[string]bool
	wordSet   map[string]bool
}

var (
	wordRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z_0-9]*$`)
	symbolRe    = regexp.MustCompile(`^[^A-Za-z0-9_]+$`)
	sepRunRe    = regexp.MustCompile(`^[^A-Za-z0-9_]+$`)
	headerRe    = regexp.MustCompile(`^(TOKEN\s+)?([A-Za-z_][A-Za-z_0-9]*):$`)
	regexWrapRe = regexp.MustCompile(`^%(.+)%$`)
	nameRe      = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z_0-9]*)\$$`)
	nameListRe  = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z_0-9]*)\$\+$`)
	optNameRe   = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z_0-9]*)\$\?$`)
	optListRe   = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z_0-9]*)\$\*$`)
	sepListRe   = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z_0-9]*)\$\.\.\.(.+)$`)
)

// Load parses a grammar description text into a Grammar.
func Load(src string) (*Grammar, error) {
	g := &Grammar{
		Rules:     map[string]*Rule{},
		regexSet:  map[string]bool{},
		symbolSet: map[string]bool{},
		wordSet:   map[string]bool{},
	}

	lines := strings.Split(src, "\n")
	i := 0
	for i < len(lines) {
		line := strings.TrimRight(lines[i], "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			i++
			continue
		}
		m := headerRe.FindStringSubmatch(trimmed)
		if m == nil {
			return nil, diagnostics.New(diagnostics.PhaseGrammar, diagnostics.ErrG001, i+1, 1, trimmed)
		}
		isToken := m[1] != ""
		name := m[2]
		rule := &Rule{Name: name, IsTokenRule: isToken}
		i++
		for i < len(lines) {
			formLine := strings.TrimRight(lines[i], "\r")
			if strings.TrimSpace(formLine) == "" {
				break
			}
			form, err := g.parseForm(formLine, isToken, i+1)
			if err != nil {
				return nil, err
			}
			rule.Forms = append(rule.Forms, form)
			i++
		}
		g.Rules[name] = rule
	}

	if _, ok := g.Rules["program"]; !ok {
		return nil, diagnostics.New(diagnostics.PhaseGrammar, diagnostics.ErrG003, 0, 0)
	}
	for _, rule := range g.Rules {
		for _, form := range rule.Forms {
			for _, tok := range form.Tokens {
				switch tok.Kind {
				case Name, NameList, OptionalName, OptionalNameList, SeparatorNameList:
					if _, ok := g.Rules[tok.Text]; !ok {
						return nil, diagnostics.New(diagnostics.PhaseGrammar, diagnostics.ErrG002, 0, 0, tok.Text)
					}
				}
			}
		}
	}

	sort.Slice(g.Symbols, func(a, b int) bool { return len(g.Symbols[a]) > len(g.Symbols[b]) })
	sort.Slice(g.Words, func(a, b int) bool { return len(g.Words[a]) > len(g.Words[b]) })

	return g, nil
}

func (g *Grammar) parseForm(line string, inToken bool, lineNo int) (Form, error) {
	var form Form
	fields := strings.Split(line, " ")
	n := len(fields)

	// Operator spec: exactly 3 fields, 2nd is \l or \r.
	if n == 3 && (fields[1] == `\l` || fields[1] == `\r`) {
		precedence, err := strconv.Atoi(fields[2])
		if err != nil {
			return form, diagnostics.New(diagnostics.PhaseGrammar, diagnostics.ErrG001, lineNo, 1, line)
		}
		assoc := 0
		if fields[1] == `\l` {
			assoc = 1
		}
		form.Tokens = append(form.Tokens, GrammarToken{Kind: Op, Text: fields[0], Assoc: assoc, Precedence: precedence})
		g.registerLiteral(fields[0])
		return form, nil
	}

	for _, field := range fields {
		if field == "" {
			continue
		}
		switch {
		case field == ">>?":
			form.Tokens = append(form.Tokens, GrammarToken{Kind: RestIsOptional})
		case regexWrapRe.MatchString(field):
			body := regexWrapRe.FindStringSubmatch(field)[1]
			form.Tokens = append(form.Tokens, GrammarToken{Kind: Regex, Text: body})
			if inToken && !g.regexSet[body] {
				g.regexSet[body] = true
				g.Regexes = append(g.Regexes, body)
			}
		case sepListRe.MatchString(field):
			mm := sepListRe.FindStringSubmatch(field)
			if !sepRunRe.MatchString(mm[2]) {
				return form, diagnostics.New(diagnostics.PhaseGrammar, diagnostics.ErrG001, lineNo, 1, field)
			}
			form.Tokens = append(form.Tokens, GrammarToken{Kind: SeparatorNameList, Text: mm[1], Separator: mm[2]})
			g.registerLiteral(mm[2])
		case nameListRe.MatchString(field):
			form.Tokens = append(form.Tokens, GrammarToken{Kind: NameList, Text: nameListRe.FindStringSubmatch(field)[1]})
		case optListRe.MatchString(field):
			form.Tokens = append(form.Tokens, GrammarToken{Kind: OptionalNameList, Text: optListRe.FindStringSubmatch(field)[1]})
		case optNameRe.MatchString(field):
			form.Tokens = append(form.Tokens, GrammarToken{Kind: OptionalName, Text: optNameRe.FindStringSubmatch(field)[1]})
		case nameRe.MatchString(field):
			form.Tokens = append(form.Tokens, GrammarToken{Kind: Name, Text: nameRe.FindStringSubmatch(field)[1]})
		case strings.HasPrefix(field, "$"):
			return form, diagnostics.New(diagnostics.PhaseGrammar, diagnostics.ErrG001, lineNo, 1, field)
		default:
			form.Tokens = append(form.Tokens, GrammarToken{Kind: Plain, Text: field})
			if !wordRe.MatchString(field) && !symbolRe.MatchString(field) {
				return form, diagnostics.New(diagnostics.PhaseGrammar, diagnostics.ErrG001, lineNo, 1, field)
			}
			g.registerLiteral(field)
		}
	}
	return form, nil
}

func (g *Grammar) registerLiteral(text string) {
	if wordRe.MatchString(text) {
		if !g.wordSet[text] {
			g.wordSet[text] = true
			g.Words = append(g.Words, text)
		}
		return
	}
	if symbolRe.MatchString(text) && !g.symbolSet[text] {
		g.symbolSet[text] = true
		g.Symbols = append(g.Symbols, text)
	}
}
