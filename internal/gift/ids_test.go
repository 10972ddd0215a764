package gift

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := NewSessionID()
		require.NoError(t, err)
		require.Len(t, id, sessionIDLength)
		for _, r := range id {
			require.True(t, strings.ContainsRune(base62Alphabet, r), "unexpected rune %q in %s", r, id)
		}
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, secretMatches("hunter2", "hunter2"))
	assert.False(t, secretMatches("hunter2", "hunter3"))
	assert.False(t, secretMatches("hunter2", "hunter22"))
	assert.False(t, secretMatches("hunter2", ""))
}
