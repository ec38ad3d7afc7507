package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

func TestMemoryPutGet(t *testing.T) {
	c := NewMemory()
	defer c.Close()
	ctx := context.Background()

	res := &domain.ScanResult{Status: domain.StatusCompleted}
	c.Put(ctx, "scan-1", res, time.Minute)

	got, ok := c.Get(ctx, "scan-1")
	require.True(t, ok)
	assert.Same(t, res, got)

	_, ok = c.Get(ctx, "scan-2")
	assert.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory()
	defer c.Close()
	ctx := context.Background()

	c.Put(ctx, "scan-1", &domain.ScanResult{Status: domain.StatusCompleted}, 10*time.Millisecond)
	_, ok := c.Get(ctx, "scan-1")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "scan-1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryIgnoresUncacheableWrites(t *testing.T) {
	c := NewMemory()
	defer c.Close()
	ctx := context.Background()

	c.Put(ctx, "nil-result", nil, time.Minute)
	_, ok := c.Get(ctx, "nil-result")
	assert.False(t, ok)

	c.Put(ctx, "zero-ttl", &domain.ScanResult{}, 0)
	_, ok = c.Get(ctx, "zero-ttl")
	assert.False(t, ok)
}

func TestMemoryCloseIdempotent(t *testing.T) {
	c := NewMemory()
	c.Close()
	c.Close()

	// cache keeps serving after the sweeper stops
	c.Put(context.Background(), "scan-1", &domain.ScanResult{}, time.Minute)
	_, ok := c.Get(context.Background(), "scan-1")
	assert.True(t, ok)
}
