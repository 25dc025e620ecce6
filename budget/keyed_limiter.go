// Package budget paces calls per invocation identity with token buckets.
package budget

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultIdleTTL = 10 * time.Minute
	evictEvery     = 512
)

// KeyedLimiter applies a token bucket per key and periodically evicts idle
// entries.
type KeyedLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*entry
	hits    uint64
	idleTTL time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter returns nil if perSecond or burst is not positive. A nil
// limiter admits everything.
func NewKeyedLimiter(perSecond float64, burst int, idleTTL time.Duration) *KeyedLimiter {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &KeyedLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		byKey:   make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

// Allow reports whether a token for key is available at now, consuming it
// if so.
func (l *KeyedLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	return l.limiterFor(key, now).AllowN(now, 1)
}

// Reserve takes a token for key at now. The caller must wait
// Reservation.DelayFrom(now) before acting, or cancel the reservation.
func (l *KeyedLimiter) Reserve(key string, now time.Time) *rate.Reservation {
	if l == nil {
		return rate.NewLimiter(rate.Inf, 0).ReserveN(now, 1)
	}
	return l.limiterFor(key, now).ReserveN(now, 1)
}

// Len reports how many keys currently hold a bucket.
func (l *KeyedLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func (l *KeyedLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	key = strings.TrimSpace(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now

	l.hits++
	if l.hits%evictEvery == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return e.limiter
}
