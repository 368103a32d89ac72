package rand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequestID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id := NewRequestID(16)
		assert.Len(t, id, 16)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(charset, r))
		}
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 100)
}
