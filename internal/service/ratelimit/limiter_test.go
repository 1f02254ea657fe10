package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowAtIsKeyed(t *testing.T) {
	l := New(1, 2)
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, l.AllowAt("600519", now))
	assert.True(t, l.AllowAt("600519", now))
	assert.False(t, l.AllowAt("600519", now))
	assert.True(t, l.AllowAt("000001", now))

	assert.True(t, l.AllowAt("600519", now.Add(time.Second)))
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("x"))
	}
	require.NoError(t, l.Wait(context.Background(), "x"))
}
