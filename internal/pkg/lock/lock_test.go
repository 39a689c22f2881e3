package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockWithTimeout_AcquiresFreeLock(t *testing.T) {
	kl := NewKeyLock()

	ok := kl.LockWithTimeout(context.Background(), "k", 50*time.Millisecond)
	require.True(t, ok)
	kl.Unlock("k")
}

func TestLockWithTimeout_ExpiresOnHeldLock(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("k")
	defer kl.Unlock("k")

	ok := kl.LockWithTimeout(context.Background(), "k", 20*time.Millisecond)
	assert.False(t, ok)
}

func TestWithLockContext_TimeoutReturnsSentinel(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("k")
	defer kl.Unlock("k")

	err := kl.WithLockContext(context.Background(), "k", 20*time.Millisecond, func() error {
		t.Fatal("must not run while the lock is held elsewhere")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestWithLockContext_CancelledContext(t *testing.T) {
	kl := NewKeyLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := kl.WithLockContext(ctx, "k", time.Second, func() error {
		t.Fatal("must not run under a cancelled context")
		return nil
	})
	assert.Error(t, err)

	// The key must be usable again afterwards.
	require.NoError(t, kl.WithLock("k", func() error { return nil }))
}
