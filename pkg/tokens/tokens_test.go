package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	estimator := NewEstimator()

	assert.Equal(t, 0, estimator.Count(""))
	assert.Equal(t, 3, estimator.Count("a b c"))
	assert.Equal(t, 4, estimator.Count("hello world"))
	assert.Equal(t, 5, estimator.Count("internationalization"))

	// Whitespace never costs anything on its own.
	assert.Equal(t, estimator.Count("hello world"), estimator.Count("hello   world"))
}

func TestCountDeterministic(t *testing.T) {
	estimator := NewEstimator()
	text := "the quick brown fox jumps over the lazy dog"

	assert.Equal(t, estimator.Count(text), estimator.Count(text))
}

func TestCountZeroRatioFallsBack(t *testing.T) {
	estimator := &Estimator{CharsPerToken: 0}

	assert.Equal(t, NewEstimator().Count("hello world"), estimator.Count("hello world"))
}

func TestTruncateWithinBudgetUnchanged(t *testing.T) {
	estimator := NewEstimator()

	// Within budget the input comes back byte-identical, internal
	// whitespace included.
	assert.Equal(t, "a  b", estimator.Truncate("a  b", 5))
}

func TestTruncateRemovesWholeUnits(t *testing.T) {
	estimator := NewEstimator()

	out := estimator.Truncate("one two three four", 3)

	assert.Equal(t, "one two", out)
	assert.LessOrEqual(t, estimator.Count(out), 3)
}

func TestTruncateZeroBudget(t *testing.T) {
	estimator := NewEstimator()

	assert.Equal(t, "", estimator.Truncate("anything at all", 0))
	assert.Equal(t, "", estimator.Truncate("anything at all", -1))
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, Split(" one  two "))
	assert.Empty(t, Split("   "))
}
