// Package cache holds short-lived derived values (unread notification counts)
// in either process memory or Redis behind one interface.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Counter stores integer values by key. A miss is (0, false, nil).
type Counter interface {
	GetInt(ctx context.Context, key string) (int64, bool, error)
	SetInt(ctx context.Context, key string, val int64) error
	Delete(ctx context.Context, keys ...string) error
}

// DefaultMaxEntries bounds Memory when no explicit size is given: roughly
// one entry per recently active user.
const DefaultMaxEntries = 50_000

// Memory is the in-process Counter used when Redis is not configured. Entries
// expire after ttl; once full, expired entries are dropped and, if that is
// not enough, the entry closest to expiry goes.
type Memory struct {
	mu  sync.Mutex
	ttl time.Duration
	max int
	now func() time.Time
	m   map[string]counterEntry
}

type counterEntry struct {
	n   int64
	exp time.Time
}

func New(ttl time.Duration) *Memory {
	return NewWithLimit(ttl, DefaultMaxEntries)
}

func NewWithLimit(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Memory{
		ttl: ttl,
		max: maxEntries,
		now: time.Now,
		m:   make(map[string]counterEntry),
	}
}

func (c *Memory) GetInt(_ context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return 0, false, nil
	}
	if !c.now().Before(e.exp) {
		delete(c.m, key)
		return 0, false, nil
	}

	return e.n, true, nil
}

func (c *Memory) SetInt(_ context.Context, key string, val int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.m[key]; !exists && len(c.m) >= c.max {
		c.evict(now)
	}

	c.m[key] = counterEntry{n: val, exp: now.Add(c.ttl)}
	return nil
}

func (c *Memory) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.m, k)
	}
	c.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (c *Memory) Clear() {
	c.mu.Lock()
	c.m = make(map[string]counterEntry)
	c.mu.Unlock()
}

func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// caller holds c.mu
func (c *Memory) evict(now time.Time) {
	var (
		oldestKey string
		oldestExp time.Time
	)

	for k, e := range c.m {
		if !now.Before(e.exp) {
			delete(c.m, k)
			continue
		}
		if oldestKey == "" || e.exp.Before(oldestExp) {
			oldestKey, oldestExp = k, e.exp
		}
	}

	if len(c.m) >= c.max && oldestKey != "" {
		delete(c.m, oldestKey)
	}
}

func UnreadCountKey(userID string) string {
	return "unread:" + userID
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
