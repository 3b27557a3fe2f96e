package filter

import (
	"strings"
)

// ParseError is a syntax error encountered while parsing a filter expression.
type ParseError struct {
	// Position is the index of the offending token, one past the last token
	// when the input ended too early.
	Position int

	msg string
}

func (e *ParseError) Error() string {
	return e.msg
}

// Parser is a recursive descent parser for boolean filter expressions over
// tags, implementing the grammar
//
//	Or      := And ( 'OR' And )*
//	And     := Not ( 'AND' Not )*
//	Not     := 'NOT' Not | Primary
//	Primary := '(' Or ')' | TERM
//
// AND binds tighter than OR, NOT tighter than AND, parentheses override both.
// The keywords are matched case-insensitively against whole tokens, so a term
// like "Android" stays a term. Everything that is not a parenthesis or a
// keyword is a literal tag term.
//
// A Parser holds the token sequence and read cursor of one Parse call and
// must not be shared by concurrent calls. The trees it produces are immutable
// and may be shared freely.
type Parser struct {
	tokens []string
	pos    int
}

func NewParser() *Parser {
	return &Parser{}
}

// Parse parses the given expression into an expression tree.
//
// Empty and whitespace-only input successfully parses to a nil tree without
// invoking the tokenizer. All returned errors are of type *ParseError and
// report the first syntax error encountered.
func (p *Parser) Parse(expression string) (Expr, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}

	p.tokens = Tokenize(expression)
	p.pos = 0

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if !p.eof() {
		return nil, p.syntaxError("unexpected tokens after parsing")
	}

	return expr, nil
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.keywordNext("OR") {
		p.pos++

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = NewOr(left, right)
	}

	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.keywordNext("AND") {
		p.pos++

		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		left = NewAnd(left, right)
	}

	return left, nil
}

// parseNot handles chained negations, so "NOT NOT x" nests two Not nodes.
func (p *Parser) parseNot() (Expr, error) {
	if p.keywordNext("NOT") {
		p.pos++

		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return NewNot(expr), nil
	}

	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	token, ok := p.peek()
	if !ok {
		return nil, p.syntaxError("unexpected end of expression")
	}

	switch {
	case token == ")":
		return nil, p.syntaxError("unexpected closing parenthesis")
	case token == "(":
		p.pos++

		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if next, ok := p.peek(); !ok || next != ")" {
			return nil, p.syntaxError("missing closing parenthesis")
		}
		p.pos++

		return expr, nil
	case strings.EqualFold(token, "AND") || strings.EqualFold(token, "OR"):
		return nil, p.syntaxError("unexpected operator: " + token)
	}

	p.pos++

	return NewTerm(token), nil
}

// peek returns the token at the cursor without consuming it.
func (p *Parser) peek() (string, bool) {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos], true
	}

	return "", false
}

// keywordNext reports whether the token at the cursor is the given keyword,
// compared case-insensitively against the whole token.
func (p *Parser) keywordNext(keyword string) bool {
	token, ok := p.peek()

	return ok && strings.EqualFold(token, keyword)
}

func (p *Parser) eof() bool {
	return p.pos >= len(p.tokens)
}

func (p *Parser) syntaxError(msg string) error {
	return &ParseError{Position: p.pos, msg: msg}
}
