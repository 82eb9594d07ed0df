package svc

import (
	"context"
	"time"

	"clipd/metrics"
	"clipd/svc/db"
	"clipd/svc/util"
)

// Sweeper is the handle of the background expiration loop. It lives for
// the lifetime of the process unless the owning context is cancelled or
// Stop is called.
type Sweeper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// SpawnSweeper starts a loop that deletes expired clips from the store
// every interval. A failed sweep is logged and the next tick retries.
func SpawnSweeper(ctx context.Context, sqlDB *db.SQLite, interval time.Duration) *Sweeper {
	if sqlDB == nil {
		panic("sweeper: nil store")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Sweeper{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, sqlDB, interval)
	return s
}

// Stop cancels the loop and waits for the in-flight sweep, if any, to
// return.
func (s *Sweeper) Stop() {
	s.cancel()
	<-s.done
}

func (s *Sweeper) run(ctx context.Context, sqlDB *db.SQLite, interval time.Duration) {
	defer close(s.done)
	sweepID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, sweepID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", sweepID).
		Dur("interval", interval).
		Msg("expiration sweeper started")
	for {
		select {
		case <-ctx.Done():
			util.Info().
				Str("request_id", sweepID).
				Msg("expiration sweeper shutting down")
			return
		case <-ticker.C:
			deleted, err := sqlDB.DeleteExpired(ctx, time.Now())
			metrics.SweepCycles.Inc()
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				util.Error().
					Err(err).
					Str("request_id", sweepID).
					Msg("sweep failed")
				continue
			}
			if deleted > 0 {
				metrics.SweptClips.Add(float64(deleted))
				util.Info().
					Int("deleted", deleted).
					Str("request_id", sweepID).
					Msg("sweep completed")
			}
		}
	}
}
