package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_RejectsWhileHeld(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- l.WithLock(ctx, "vote:23BCS01:1", time.Second, func() error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	err := l.WithLock(ctx, "vote:23BCS01:1", time.Second, func() error { return nil })
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// 其他名字不受影响
	assert.NoError(t, l.WithLock(ctx, "vote:23BCS01:2", time.Second, func() error { return nil }))

	close(release)
	require.NoError(t, <-done)

	// 释放后可以再次获取
	assert.NoError(t, l.WithLock(ctx, "vote:23BCS01:1", time.Second, func() error { return nil }))
}

func TestLocalLocker_PropagatesActionError(t *testing.T) {
	l := NewLocalLocker()
	boom := errors.New("boom")

	err := l.WithLock(context.Background(), "x", time.Second, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// 出错后锁也已释放
	assert.NoError(t, l.WithLock(context.Background(), "x", time.Second, func() error { return nil }))
}

func TestLocalLocker_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewLocalLocker().WithLock(ctx, "x", time.Second, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
