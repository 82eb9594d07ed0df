package svc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"clipd/metrics"
	"clipd/pkg/domain"
	"clipd/svc/db"
	"clipd/svc/util"

	"github.com/pkg/errors"
)

const viewFlushTimeout = 5 * time.Second

// Views decouples read latency from hit persistence. Record is a
// non-blocking enqueue onto an unbounded pending map; a single consumer
// goroutine drains it and applies the coalesced deltas through the store.
// Increments are commutative so coalescing per code loses nothing.
type Views struct {
	db       *db.SQLite
	mu       sync.Mutex
	pending  map[domain.ShortCode]int64
	wake     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopped  atomic.Bool
	stopOnce sync.Once
}

func NewViews(sqlDB *db.SQLite) *Views {
	if sqlDB == nil {
		panic("view counter: nil store")
	}
	v := &Views{
		db:      sqlDB,
		pending: make(map[domain.ShortCode]int64),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go v.run()
	return v
}

// Record enqueues n views for code. Never blocks; after Stop it is a no-op.
func (v *Views) Record(code domain.ShortCode, n int64) {
	if n <= 0 || v.stopped.Load() {
		return
	}
	v.mu.Lock()
	v.pending[code] += n
	v.mu.Unlock()
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

// Stop drains whatever is pending and shuts the consumer down.
func (v *Views) Stop() {
	v.stopOnce.Do(func() {
		v.stopped.Store(true)
		close(v.quit)
		<-v.done
	})
}

func (v *Views) run() {
	defer close(v.done)
	defer func() {
		if r := recover(); r != nil {
			util.Error().Interface("panic", r).Msg("view counter panicked")
		}
	}()
	for {
		select {
		case <-v.wake:
			v.flush()
		case <-v.quit:
			v.flush()
			return
		}
	}
}

func (v *Views) flush() {
	v.mu.Lock()
	if len(v.pending) == 0 {
		v.mu.Unlock()
		return
	}
	batch := v.pending
	v.pending = make(map[domain.ShortCode]int64)
	v.mu.Unlock()

	for code, n := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), viewFlushTimeout)
		err := v.db.AddHits(ctx, code, n)
		cancel()
		if err != nil && !errors.Is(err, domain.ErrClipNotFound) {
			// Store errors are non-fatal: log, discard, self-heal on the
			// next flush.
			util.Warn().Err(err).Str("code", code.String()).Msg("failed to flush views")
		}
	}
	metrics.ViewFlushes.Inc()
}
