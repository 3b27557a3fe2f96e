package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser(t *testing.T) {
	t.Parallel()

	t.Run("AndBindsTighterThanOr", func(t *testing.T) {
		parser := NewParser()
		expr, err := parser.Parse("Java OR Python AND Django")

		require.NoError(t, err)

		expected := NewOr(NewTerm("Java"), NewAnd(NewTerm("Python"), NewTerm("Django")))
		assert.Equal(t, expected, expr)
	})

	t.Run("NotBindsTighterThanAnd", func(t *testing.T) {
		parser := NewParser()
		expr, err := parser.Parse("NOT Java AND Python")

		require.NoError(t, err)

		expected := NewAnd(NewNot(NewTerm("Java")), NewTerm("Python"))
		assert.Equal(t, expected, expr)
	})

	t.Run("NotChains", func(t *testing.T) {
		parser := NewParser()
		expr, err := parser.Parse("NOT NOT Go")

		require.NoError(t, err)
		assert.Equal(t, NewNot(NewNot(NewTerm("Go"))), expr)
	})

	t.Run("ParenthesesOverridePrecedence", func(t *testing.T) {
		parser := NewParser()
		expr, err := parser.Parse("(Java OR Ruby) AND Django")

		require.NoError(t, err)

		expected := NewAnd(NewOr(NewTerm("Java"), NewTerm("Ruby")), NewTerm("Django"))
		assert.Equal(t, expected, expr)
	})

	t.Run("KeywordsMatchCaseInsensitively", func(t *testing.T) {
		parser := NewParser()
		expr, err := parser.Parse("java and python or not go")

		require.NoError(t, err)

		expected := NewOr(
			NewAnd(NewTerm("java"), NewTerm("python")),
			NewNot(NewTerm("go")),
		)
		assert.Equal(t, expected, expr)
	})

	t.Run("TermsContainingKeywordLettersStayTerms", func(t *testing.T) {
		parser := NewParser()
		expr, err := parser.Parse("Android")

		require.NoError(t, err)
		assert.Equal(t, NewTerm("Android"), expr)
	})

	t.Run("QuotedTermParsesAsOneTerm", func(t *testing.T) {
		parser := NewParser()
		expr, err := parser.Parse(`"Machine Learning" AND Python`)

		require.NoError(t, err)

		expected := NewAnd(NewTerm("Machine Learning"), NewTerm("Python"))
		assert.Equal(t, expected, expr)
	})

	t.Run("EmptyInputParsesToNilTree", func(t *testing.T) {
		parser := NewParser()

		expr, err := parser.Parse("")
		require.NoError(t, err)
		assert.Nil(t, expr)

		expr, err = parser.Parse("   \t ")
		require.NoError(t, err)
		assert.Nil(t, expr)
	})

	t.Run("ReparsingYieldsEqualTree", func(t *testing.T) {
		first, err := NewParser().Parse(`NOT (Java OR "Machine Learning") AND Python`)
		require.NoError(t, err)

		second, err := NewParser().Parse(`NOT (Java OR "Machine Learning") AND Python`)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestParserErrors(t *testing.T) {
	t.Parallel()

	t.Run("SyntaxErrorsAreDetected", func(t *testing.T) {
		t.Parallel()

		testdata := []struct {
			Expression string
			Expected   string
		}{
			{")", "unexpected closing parenthesis"},
			{"()", "unexpected closing parenthesis"},
			{"Python AND )", "unexpected closing parenthesis"},
			{"Python AND", "unexpected end of expression"},
			{"NOT", "unexpected end of expression"},
			{"Python OR", "unexpected end of expression"},
			{"(Python", "missing closing parenthesis"},
			{"(Python OR (Java AND Go)", "missing closing parenthesis"},
			{"AND Python", "unexpected operator: AND"},
			{"and Python", "unexpected operator: and"},
			{"OR", "unexpected operator: OR"},
			{"Python AND OR Java", "unexpected operator: OR"},
			{"Java Python", "unexpected tokens after parsing"},
			{"(Java OR Go) Python", "unexpected tokens after parsing"},
			{"Java NOT Python", "unexpected tokens after parsing"},
		}

		for _, td := range testdata {
			expr, err := NewParser().Parse(td.Expression)
			assert.Nil(t, expr, "no tree expected for %q", td.Expression)
			assert.EqualError(t, err, td.Expected, "unexpected error for %q", td.Expression)
		}
	})

	t.Run("ErrorCarriesTokenPosition", func(t *testing.T) {
		t.Parallel()

		_, err := NewParser().Parse("Python AND")

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, 2, parseErr.Position)
	})
}
