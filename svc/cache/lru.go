package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"clipd/pkg/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

type LRU struct {
	c  *lru.Cache[string, item]
	mu sync.Mutex
}

type item struct {
	clip *domain.Clip
	exp  time.Time // zero = entry never expires
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Get(ctx context.Context, code domain.ShortCode) *domain.Clip {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Get(code.String())
	if !ok {
		return nil
	}
	if !it.exp.IsZero() && time.Now().After(it.exp) {
		l.c.Remove(code.String())
		return nil
	}
	return it.clip
}

// Set caches a clip. A non-positive ttl means the entry has no expiry of
// its own and lives until evicted.
func (l *LRU) Set(ctx context.Context, c *domain.Clip, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	l.c.Add(c.ShortCode.String(), item{
		clip: c,
		exp:  exp,
	})
}

func (l *LRU) Delete(code domain.ShortCode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(code.String())
}
