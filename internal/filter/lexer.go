package filter

import (
	"strings"
)

// Tokenize splits a raw filter expression into an ordered token sequence.
//
// Double quotes group whitespace and parentheses into a single token and are
// themselves dropped, which is what keeps multi-word terms like
// "Machine Learning" together. Outside quotes, parentheses become standalone
// single-character tokens and spaces or tabs separate tokens. An unterminated
// quote is tolerated: the rest of the input is treated as still quoted.
//
// Empty and whitespace-only input yields no tokens.
func Tokenize(input string) []string {
	var tokens []string
	var buf strings.Builder

	flush := func() {
		if token := strings.TrimSpace(buf.String()); token != "" {
			tokens = append(tokens, token)
		}
		buf.Reset()
	}

	inQuotes := false
	for _, char := range input {
		switch {
		case char == '"':
			inQuotes = !inQuotes
		case inQuotes:
			buf.WriteRune(char)
		case char == '(' || char == ')':
			flush()
			tokens = append(tokens, string(char))
		case char == ' ' || char == '\t':
			flush()
		default:
			buf.WriteRune(char)
		}
	}
	flush()

	return tokens
}
