package emission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateGramsKnownModel(t *testing.T) {
	// claude-3-haiku assumes 30B params:
	// 7.594e-9 * 30 * 1000 * 1.2 = 2.73384e-4 kWh
	// 2.73384e-4 * 0.379 * 1000 = 0.103612... g
	grams, err := EstimateGrams("claude-3-haiku", 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0.10361, grams, 0.0001)
}

func TestEstimateGramsUnknownModelFallback(t *testing.T) {
	grams, err := EstimateGrams("some-future-model", 100)
	require.NoError(t, err)

	// default 500B params
	want := 7.594e-9 * 500 * 100 * 1.2 * 0.379 * 1000
	assert.InDelta(t, want, grams, 1e-12)
}

func TestEstimateGramsPrefixMatch(t *testing.T) {
	versioned, err := EstimateGrams("claude-3-haiku-20240307", 1000)
	require.NoError(t, err)

	family, err := EstimateGrams("claude-3-haiku", 1000)
	require.NoError(t, err)

	assert.Equal(t, family, versioned)
}

func TestEstimateGramsZeroTokens(t *testing.T) {
	grams, err := EstimateGrams("chatgpt", 0)
	require.NoError(t, err)
	assert.Zero(t, grams)
}

func TestEstimateGramsNegativeTokens(t *testing.T) {
	_, err := EstimateGrams("chatgpt", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEstimateGramsMonotonic(t *testing.T) {
	prev := -1.0
	for _, tokens := range []int{0, 1, 10, 100, 1000, 100000} {
		grams, err := EstimateGrams("gemini", tokens)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, grams, prev)
		prev = grams
	}
}

func TestEstimateGramsDeterministic(t *testing.T) {
	a, err := EstimateGrams("gpt-4o", 4242)
	require.NoError(t, err)
	b, err := EstimateGrams("gpt-4o", 4242)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEstimateGramsCaseInsensitive(t *testing.T) {
	a, _ := EstimateGrams("GPT-4o", 100)
	b, _ := EstimateGrams("gpt-4o", 100)
	assert.Equal(t, a, b)
}
