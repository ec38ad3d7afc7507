package cache

import (
	"context"
	"sync"
	"time"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// sweepInterval is how often expired entries are collected. Lookups also
// drop expired entries lazily, so the sweep only bounds memory.
const sweepInterval = time.Minute

type memoryItem struct {
	res       *domain.ScanResult
	expiresAt time.Time
}

// Memory is a process-local ResultCache with TTL eviction.
type Memory struct {
	mu    sync.RWMutex
	items map[domain.ScanID]memoryItem
	stop  chan struct{}
	once  sync.Once
}

func NewMemory() *Memory {
	c := &Memory{
		items: make(map[domain.ScanID]memoryItem),
		stop:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *Memory) Put(ctx context.Context, id domain.ScanID, res *domain.ScanResult, ttl time.Duration) {
	if res == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[id] = memoryItem{res: res, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *Memory) Get(ctx context.Context, id domain.ScanID) (*domain.ScanResult, bool) {
	c.mu.RLock()
	it, ok := c.items[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		c.mu.Lock()
		delete(c.items, id)
		c.mu.Unlock()
		return nil, false
	}
	return it.res, true
}

func (c *Memory) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for id, it := range c.items {
				if now.After(it.expiresAt) {
					delete(c.items, id)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Memory) Close() {
	c.once.Do(func() { close(c.stop) })
}
