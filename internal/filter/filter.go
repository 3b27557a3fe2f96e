// Package filter parses and evaluates boolean filter expressions over a
// job posting's tech stack tags, e.g. `Python AND (React OR Angular)` or
// `C AND NOT "Machine Learning"`.
//
// Parsing never fails hard: malformed input degrades to a filter matching the
// raw expression string as one literal tag, with the syntax error preserved
// for display. Terms match tags by exact, case-insensitive equality only.
package filter

// Result is the outcome of parsing one filter expression.
//
// A Result is always usable. When Valid is false, Expr holds a fallback term
// matching the entire raw expression as one literal tag and ErrorMessage
// carries the syntax error to surface to the user. Empty input yields a valid
// Result with a nil Expr.
type Result struct {
	Expr         Expr
	Valid        bool
	ErrorMessage string
}

// Parse parses the given filter expression.
//
// Unlike Parser.Parse, this never returns an error: syntax errors are folded
// into the Result as described there. Callers filtering many postings should
// parse once and reuse the Result, evaluation is safe for concurrent use.
func Parse(expression string) Result {
	expr, err := NewParser().Parse(expression)
	if err != nil {
		return Result{
			Expr:         NewTerm(expression),
			ErrorMessage: err.Error(),
		}
	}

	return Result{Expr: expr, Valid: true}
}

// Matches reports whether the parsed expression matches the given tags.
// An empty filter (nil Expr) matches every tag set.
func (r Result) Matches(tags []string) bool {
	if r.Expr == nil {
		return true
	}

	return r.Expr.Eval(tags)
}

// String returns the parsed expression in its normalized textual form, or the
// empty string for an empty filter.
func (r Result) String() string {
	if r.Expr == nil {
		return ""
	}

	return r.Expr.String()
}
