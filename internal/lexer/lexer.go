// Package lexer turns vex source text into a stream of tokens. The
// lexical classes (regexes, symbols, words) come from a loaded
// internal/grammar.Grammar, so this lexer has no hardcoded notion of
// what an operator or keyword looks like: it is purely driven by the
// data the grammar loader produced.
package lexer

import (
	"regexp"
	"strings"

	"github.com/vexlang/vex/internal/diagnostics"
	"github.com/vexlang/vex/internal/grammar"
	"github.com/vexlang/vex/internal/token"
)

var wordBoundary = regexp.MustCompile(`^[A-Za-z0-9_]`)

// Lexer tokenizes source text against a fixed Grammar.
type Lexer struct {
	g       *grammar.Grammar
	regexes []*regexp.Regexp
}

// New compiles the grammar's regex rules once so Tokenize can reuse them.
func New(g *grammar.Grammar) (*Lexer, error) {
	l := &Lexer{g: g}
	for _, pat := range g.Regexes {
		re, err := regexp.Compile("^(?:" + pat + ")")
		if err != nil {
			return nil, diagnostics.New(diagnostics.PhaseLexer, diagnostics.ErrL001, 0, 0, err.Error())
		}
		l.regexes = append(l.regexes, re)
	}
	return l, nil
}

// Tokenize splits src into lines and scans each: comments and
// whitespace first, then regex rules in declared order, then symbol
// and word literals longest-first.
func (l *Lexer) Tokenize(src string) ([]token.Token, error) {
	var out []token.Token
	lines := strings.Split(src, "\n")
	inBlockComment := false

	for lineNo, rawLine := range lines {
		line := strings.TrimRight(rawLine, "\r")
		pos := 0
		for pos < len(line) {
			if inBlockComment {
				idx := strings.Index(line[pos:], "*/")
				if idx < 0 {
					pos = len(line)
					break
				}
				pos += idx + 2
				inBlockComment = false
				continue
			}
			if strings.HasPrefix(line[pos:], "/*") {
				inBlockComment = true
				pos += 2
				continue
			}
			if strings.HasPrefix(line[pos:], "//") {
				break
			}
			ws := leadingWhitespace(line[pos:])
			if ws > 0 {
				pos += ws
				continue
			}

			matched := false
			for _, re := range l.regexes {
				if loc := re.FindStringIndex(line[pos:]); loc != nil && loc[0] == 0 && loc[1] > 0 {
					text := line[pos : pos+loc[1]]
					out = append(out, token.New(text, lineNo+1, pos+1))
					pos += loc[1]
					matched = true
					break
				}
			}
			if matched {
				continue
			}

			for _, sym := range l.g.Symbols {
				if strings.HasPrefix(line[pos:], sym) {
					out = append(out, token.New(sym, lineNo+1, pos+1))
					pos += len(sym)
					matched = true
					break
				}
			}
			if matched {
				continue
			}

			for _, word := range l.g.Words {
				if strings.HasPrefix(line[pos:], word) {
					rest := line[pos+len(word):]
					if wordBoundary.MatchString(rest) {
						continue
					}
					out = append(out, token.New(word, lineNo+1, pos+1))
					pos += len(word)
					matched = true
					break
				}
			}
			if matched {
				continue
			}

			return nil, diagnostics.New(diagnostics.PhaseLexer, diagnostics.ErrL001, lineNo+1, pos+1, line)
		}
	}
	return out, nil
}

func leadingWhitespace(s string) int {
	n := 0
	for n < len(s) {
		switch s[n] {
		case ' ', '\t', '\r', '\n':
			n++
		default:
			return n
		}
	}
	return n
}
