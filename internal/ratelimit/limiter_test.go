package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterIsPerClient(t *testing.T) {
	l := NewLimiter(0.001, 2)

	assert.True(t, l.Allow("ui"))
	assert.True(t, l.Allow("ui"))
	assert.False(t, l.Allow("ui"))

	assert.True(t, l.Allow("cli"))
	assert.InDelta(t, 1, l.Tokens("cli"), 0.01)
	assert.Equal(t, 2, l.Burst())
}
