package filter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	t.Run("MatchesAreExactAndCaseInsensitive", func(t *testing.T) {
		t.Parallel()

		testdata := []struct {
			Expression string
			Tags       []string
			Expected   bool
		}{
			{"python", []string{"Python"}, true},
			{"PYTHON", []string{"python"}, true},
			{"Python", []string{"  Python  "}, true},
			{"Post", []string{"PostgreSQL"}, false},
			{"Py", []string{"Python"}, false},
			{"C", []string{"React", "Node"}, false},
			{"C", []string{"C", "React"}, true},
			{"React", []string{"C"}, false},
		}

		for _, td := range testdata {
			result := Parse(td.Expression)
			require.True(t, result.Valid, "expression %q should parse", td.Expression)
			assert.Equal(t, td.Expected, result.Matches(td.Tags), "unexpected filter result for %q against %v", td.Expression, td.Tags)
		}
	})

	t.Run("OperatorsCombineMatches", func(t *testing.T) {
		t.Parallel()

		testdata := []struct {
			Expression string
			Tags       []string
			Expected   bool
		}{
			{"Java OR Python AND Django", []string{"Python", "Django"}, true},
			{"Java OR Python AND Django", []string{"Java"}, true},
			{"Java OR Python AND Django", []string{"Python"}, false},
			{"NOT Java AND Python", []string{"Python"}, true},
			{"NOT Java AND Python", []string{"Java", "Python"}, false},
			{"(Java OR Ruby) AND Django", []string{"Python", "Django"}, false},
			{"(Java OR Ruby) AND Django", []string{"Ruby", "Django"}, true},
			{"NOT NOT Go", []string{"Go"}, true},
			{"NOT NOT Go", []string{"Rust"}, false},
			{"C AND NOT Py", []string{"C", "Python"}, true},
		}

		for _, td := range testdata {
			result := Parse(td.Expression)
			require.True(t, result.Valid, "expression %q should parse", td.Expression)
			assert.Equal(t, td.Expected, result.Matches(td.Tags), "unexpected filter result for %q against %v", td.Expression, td.Tags)
		}
	})

	t.Run("QuotedTermsMatchWholeTags", func(t *testing.T) {
		t.Parallel()

		result := Parse(`"Machine Learning"`)
		require.True(t, result.Valid)

		assert.True(t, result.Matches([]string{"Machine Learning", "Python"}))
		assert.False(t, result.Matches([]string{"Machine", "Learning"}))
	})

	t.Run("EmptyFilterMatchesEverything", func(t *testing.T) {
		t.Parallel()

		for _, expression := range []string{"", "   ", "\t"} {
			result := Parse(expression)

			assert.True(t, result.Valid)
			assert.Nil(t, result.Expr)
			assert.Empty(t, result.ErrorMessage)
			assert.True(t, result.Matches([]string{"Python"}))
			assert.True(t, result.Matches(nil))
		}
	})

	t.Run("BlankTagsNeverMatch", func(t *testing.T) {
		t.Parallel()

		result := Parse("Python")
		require.True(t, result.Valid)

		assert.False(t, result.Matches(nil))
		assert.False(t, result.Matches([]string{}))
		assert.False(t, result.Matches([]string{"", "   "}))
		assert.True(t, result.Matches([]string{"", "Python"}))

		assert.True(t, Parse("NOT Python").Matches([]string{""}))
	})

	t.Run("SyntaxErrorsDegradeToLiteralMatch", func(t *testing.T) {
		t.Parallel()

		testdata := []struct {
			Expression string
			Error      string
		}{
			{"Python AND", "unexpected end of expression"},
			{"(Python", "missing closing parenthesis"},
			{"AND Python", "unexpected operator: AND"},
		}

		for _, td := range testdata {
			result := Parse(td.Expression)

			assert.False(t, result.Valid, "expression %q should not parse", td.Expression)
			assert.Equal(t, td.Error, result.ErrorMessage, "unexpected error for %q", td.Expression)
			require.NotNil(t, result.Expr)

			// The degraded filter matches the raw expression as one tag.
			assert.True(t, result.Matches([]string{td.Expression}), "fallback for %q should match itself", td.Expression)
			assert.False(t, result.Matches([]string{"Python"}), "fallback for %q should not match partial tags", td.Expression)
		}
	})

	t.Run("TreeIsSafeForConcurrentEvaluation", func(t *testing.T) {
		t.Parallel()

		result := Parse(`NOT Java AND (Python OR "Machine Learning")`)
		require.True(t, result.Valid)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			matching := i%2 == 0

			wg.Add(1)
			go func() {
				defer wg.Done()

				for j := 0; j < 100; j++ {
					if matching {
						assert.True(t, result.Matches([]string{"Python", "Django"}))
					} else {
						assert.False(t, result.Matches([]string{"Java", "Python"}))
					}
				}
			}()
		}
		wg.Wait()
	})
}

func TestExprString(t *testing.T) {
	t.Parallel()

	testdata := []struct {
		Expression string
		Expected   string
	}{
		{"Python", "Python"},
		{"NOT Java AND Python", "(NOT Java AND Python)"},
		{"Java OR Python AND Django", "(Java OR (Python AND Django))"},
		{`"Machine Learning" OR Go`, `("Machine Learning" OR Go)`},
	}

	for _, td := range testdata {
		assert.Equal(t, td.Expected, Parse(td.Expression).String(), "unexpected string form for %q", td.Expression)
	}

	assert.Empty(t, Parse("").String())
}
