package lim

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	limiterTTL      = 30 * time.Minute
)

// Limiter applies a per-IP token bucket. Entries for idle IPs are evicted
// by a janitor goroutine so the map cannot grow without bound.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	quit    chan struct{}
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func New(rpm, burst int) *Limiter {
	l := &Limiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(rpm) / 60.0),
		burst:   burst,
		quit:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ip]
	if !ok {
		if len(l.entries) >= maxLimiters {
			l.evictOldestLocked()
		}
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastAccess = time.Now()
	return e.limiter.Allow()
}

func (l *Limiter) Stop() {
	close(l.quit)
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterTTL)
			l.mu.Lock()
			for ip, e := range l.entries {
				if e.lastAccess.Before(cutoff) {
					delete(l.entries, ip)
				}
			}
			l.mu.Unlock()
		case <-l.quit:
			return
		}
	}
}

func (l *Limiter) evictOldestLocked() {
	var oldestIP string
	var oldest time.Time
	for ip, e := range l.entries {
		if oldestIP == "" || e.lastAccess.Before(oldest) {
			oldestIP = ip
			oldest = e.lastAccess
		}
	}
	if oldestIP != "" {
		delete(l.entries, oldestIP)
	}
}
