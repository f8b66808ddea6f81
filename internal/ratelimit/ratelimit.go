// Package ratelimit implements the two-level (per-IP + global) token
// bucket limiter the broker applies to connection accepts and REST tool
// calls, grounded on ws/internal/shared/limits/connection_rate_limiter.go.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Limiter's per-key and global buckets.
type Config struct {
	KeyBurst    int
	KeyRate     float64
	KeyTTL      time.Duration
	GlobalBurst int
	GlobalRate  float64
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter bounds the rate of some repeated action (connection accepts,
// outbound REST calls) both per key (e.g. remote IP, tool name) and in
// aggregate, so one noisy key cannot starve the others and the system as a
// whole stays within a safe ceiling.
type Limiter struct {
	cfg Config

	mu       sync.Mutex
	perKey   map[string]*entry
	global   *rate.Limiter

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New constructs a Limiter and starts its background cleanup of idle keys.
func New(cfg Config) *Limiter {
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = 5 * time.Minute
	}

	l := &Limiter{
		cfg:         cfg,
		perKey:      make(map[string]*entry),
		global:      rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		stopCleanup: make(chan struct{}),
	}

	go l.cleanupLoop()
	return l
}

// Allow reports whether an action keyed by key is permitted right now,
// consuming one token from both the per-key and the global bucket. The
// global bucket is only charged if the per-key bucket also allows the
// action, so a blocked key never drains shared capacity.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	e, ok := l.perKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.cfg.KeyRate), l.cfg.KeyBurst)}
		l.perKey[key] = e
	}
	e.lastAccess = time.Now()
	keyLimiter := e.limiter
	l.mu.Unlock()

	if !keyLimiter.Allow() {
		return false
	}
	return l.global.Allow()
}

// Stop halts the background cleanup goroutine.
func (l *Limiter) Stop() {
	l.closeOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.KeyTTL)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCleanup:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-l.cfg.KeyTTL)
			l.mu.Lock()
			for k, e := range l.perKey {
				if e.lastAccess.Before(cutoff) {
					delete(l.perKey, k)
				}
			}
			l.mu.Unlock()
		}
	}
}
