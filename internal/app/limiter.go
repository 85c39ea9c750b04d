package app

import (
	"sync"
	"time"

	"github.com/dkeye/Duet/internal/core"
)

// MalformedLimiter counts malformed frames per session over a sliding window.
// A nil limiter allows everything.
type MalformedLimiter struct {
	mu       sync.Mutex
	history  map[core.SessionID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewMalformedLimiter returns nil when limit is not positive.
func NewMalformedLimiter(limit int, interval time.Duration) *MalformedLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &MalformedLimiter{
		history:  make(map[core.SessionID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Strike records one malformed frame and reports whether sid is still under the limit.
func (l *MalformedLimiter) Strike(sid core.SessionID) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.interval)

	attempts := l.history[sid]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	fresh = append(fresh, now)
	l.history[sid] = fresh

	return len(fresh) <= l.limit
}

func (l *MalformedLimiter) Forget(sid core.SessionID) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.history, sid)
}
