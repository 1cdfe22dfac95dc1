package expreval

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokName  // #placeholder
	tokValue // :placeholder
	tokNumber
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
	tokCmp
	tokPlus
	tokMinus
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q at %d", t.text, t.pos)
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '.':
			toks = append(toks, token{tokDot, ".", i})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+", i})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case c == '=':
			toks = append(toks, token{tokCmp, "=", i})
			i++
		case c == '<':
			if strings.HasPrefix(input[i:], "<>") || strings.HasPrefix(input[i:], "<=") {
				toks = append(toks, token{tokCmp, input[i : i+2], i})
				i += 2
			} else {
				toks = append(toks, token{tokCmp, "<", i})
				i++
			}
		case c == '>':
			if strings.HasPrefix(input[i:], ">=") {
				toks = append(toks, token{tokCmp, ">=", i})
				i += 2
			} else {
				toks = append(toks, token{tokCmp, ">", i})
				i++
			}
		case c == '#' || c == ':':
			start := i
			i++
			for i < len(input) && isIdentChar(rune(input[i])) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("empty placeholder at %d", start)
			}
			kind := tokName
			if c == ':' {
				kind = tokValue
			}
			toks = append(toks, token{kind, input[start:i], start})
		case unicode.IsDigit(c):
			start := i
			for i < len(input) && unicode.IsDigit(rune(input[i])) {
				i++
			}
			toks = append(toks, token{tokNumber, input[start:i], start})
		case isIdentChar(c):
			start := i
			for i < len(input) && isIdentChar(rune(input[i])) {
				i++
			}
			toks = append(toks, token{tokIdent, input[start:i], start})
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	toks = append(toks, token{tokEOF, "", len(input)})
	return toks, nil
}

func isIdentChar(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

// tokens is a cursor over lexed input shared by the condition, update and
// projection parsers.
type tokens struct {
	toks []token
	pos  int
	env  *Env
}

func newTokens(input string, env *Env) (*tokens, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	return &tokens{toks: toks, env: env}, nil
}

func (t *tokens) peek() token {
	return t.toks[t.pos]
}

func (t *tokens) peekAt(n int) token {
	if t.pos+n >= len(t.toks) {
		return t.toks[len(t.toks)-1]
	}
	return t.toks[t.pos+n]
}

func (t *tokens) next() token {
	tok := t.toks[t.pos]
	if tok.kind != tokEOF {
		t.pos++
	}
	return tok
}

func (t *tokens) expect(kind tokenKind, what string) (token, error) {
	tok := t.next()
	if tok.kind != kind {
		return tok, fmt.Errorf("expected %s, got %s", what, tok)
	}
	return tok, nil
}

// keyword reports whether the next token is the case-insensitive keyword kw.
func (t *tokens) keyword(kw string) bool {
	tok := t.peek()
	return tok.kind == tokIdent && strings.EqualFold(tok.text, kw)
}

func (t *tokens) done() error {
	if tok := t.peek(); tok.kind != tokEOF {
		return fmt.Errorf("unexpected %s", tok)
	}
	return nil
}

// parsePath reads name[.name|[n]]...
func (t *tokens) parsePath() (Path, error) {
	var p Path
	first, err := t.pathName()
	if err != nil {
		return nil, err
	}
	p = append(p, PathElem{Name: first})
	for {
		switch t.peek().kind {
		case tokDot:
			t.next()
			name, err := t.pathName()
			if err != nil {
				return nil, err
			}
			p = append(p, PathElem{Name: name})
		case tokLBracket:
			t.next()
			n, err := t.expect(tokNumber, "list index")
			if err != nil {
				return nil, err
			}
			if _, err := t.expect(tokRBracket, "]"); err != nil {
				return nil, err
			}
			idx := 0
			fmt.Sscanf(n.text, "%d", &idx)
			p = append(p, PathElem{Index: idx, IsIndex: true})
		default:
			return p, nil
		}
	}
}

func (t *tokens) pathName() (string, error) {
	tok := t.next()
	switch tok.kind {
	case tokIdent:
		return tok.text, nil
	case tokName:
		return t.env.name(tok.text)
	default:
		return "", fmt.Errorf("expected attribute name, got %s", tok)
	}
}
