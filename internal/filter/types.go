package filter

import (
	"fmt"
	"strings"
)

// Expr is a single node of a parsed filter expression.
//
// The node set is closed: Term, Not, And, Or. A parsed tree holds no mutable
// state and is therefore safe to evaluate concurrently against different tag
// lists without locking.
type Expr interface {
	fmt.Stringer

	// Eval reports whether this expression matches the given tags.
	//
	// Tags that are empty or whitespace-only are treated as absent: they
	// never match and never cause an error.
	Eval(tags []string) bool

	// node restricts the implementations of this interface to this package.
	node()
}

// Term matches a single tag by exact, case-insensitive equality.
// "Py" does not match a "Python" tag, substrings don't count.
type Term struct {
	text string
}

func NewTerm(text string) *Term {
	return &Term{text: text}
}

// Text returns the literal tag text this term matches.
func (t *Term) Text() string {
	return t.text
}

func (t *Term) Eval(tags []string) bool {
	want := normalizeTag(t.text)
	if want == "" {
		return false
	}

	for _, tag := range tags {
		if normalizeTag(tag) == want {
			return true
		}
	}

	return false
}

func (t *Term) String() string {
	if strings.ContainsAny(t.text, " \t()") {
		return `"` + t.text + `"`
	}

	return t.text
}

// Not negates its child expression.
type Not struct {
	expr Expr
}

func NewNot(expr Expr) *Not {
	return &Not{expr: expr}
}

func (n *Not) Eval(tags []string) bool {
	return !n.expr.Eval(tags)
}

func (n *Not) String() string {
	return "NOT " + n.expr.String()
}

// And matches when both of its operands match.
type And struct {
	left, right Expr
}

func NewAnd(left, right Expr) *And {
	return &And{left: left, right: right}
}

func (a *And) Eval(tags []string) bool {
	return a.left.Eval(tags) && a.right.Eval(tags)
}

func (a *And) String() string {
	return fmt.Sprintf("(%s AND %s)", a.left, a.right)
}

// Or matches when at least one of its operands matches.
type Or struct {
	left, right Expr
}

func NewOr(left, right Expr) *Or {
	return &Or{left: left, right: right}
}

func (o *Or) Eval(tags []string) bool {
	return o.left.Eval(tags) || o.right.Eval(tags)
}

func (o *Or) String() string {
	return fmt.Sprintf("(%s OR %s)", o.left, o.right)
}

func (t *Term) node() {}
func (n *Not) node()  {}
func (a *And) node()  {}
func (o *Or) node()   {}

// normalizeTag trims and lower-cases a tag or term for comparison. Tags
// normalizing to the empty string count as absent.
func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var (
	_ Expr = (*Term)(nil)
	_ Expr = (*Not)(nil)
	_ Expr = (*And)(nil)
	_ Expr = (*Or)(nil)
)
