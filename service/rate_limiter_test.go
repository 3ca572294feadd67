package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRateLimiter_Burst(t *testing.T) {
	ctx := context.Background()
	// 几乎不补充令牌，只靠突发容量
	limiter := NewLocalRateLimiter(0.001, 3)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "login:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := limiter.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	// 不同key互不影响
	ok, err = limiter.Allow(ctx, "login:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)
}
