package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLimiter(t *testing.T) {
	l := NewCallLimiter(2)
	assert.Equal(t, 2, l.Remaining())

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Acquire())
	assert.Equal(t, 2, l.Count())
	assert.Equal(t, 0, l.Remaining())

	err := l.Acquire()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded max agent calls per round: 2")
}

func TestCallLimiter_Unlimited(t *testing.T) {
	l := NewCallLimiter(0)
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Acquire())
	}
	assert.Equal(t, 50, l.Count())
	assert.Equal(t, -1, l.Remaining())
}
