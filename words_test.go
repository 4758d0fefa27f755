package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawChallengeIsAPermutation(t *testing.T) {
	pool := wordPool[:8]

	for range 50 {
		challenge := drawChallenge(pool)

		require.Len(t, challenge, len(pool))
		assert.ElementsMatch(t, pool, challenge)
	}
}

func TestDrawChallengeAllocatesPerCall(t *testing.T) {
	pool := wordPool[:8]

	first := drawChallenge(pool)
	second := drawChallenge(pool)

	// Mutating one draw must not leak into another room's challenge,
	// nor into the pool itself.
	first[0] = "tampered"
	assert.NotContains(t, second, "tampered")
	assert.NotContains(t, pool, "tampered")
}

func TestWordPoolFrontMatchesDefaults(t *testing.T) {
	// The default eight-word challenge set.
	assert.Equal(t, []string{"or", "if", "in", "it", "on", "he", "as", "do"}, wordPool[:8])

	seen := make(map[string]bool, len(wordPool))
	for _, word := range wordPool {
		assert.False(t, seen[word], "duplicate word %q in pool", word)
		seen[word] = true
	}
}
