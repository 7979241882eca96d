package websocket

import (
	"sync"

	"golang.org/x/time/rate"
)

// messageLimiter rate-limits inbound messages per connection. A non-positive
// limit disables limiting. Entries are removed on disconnect, so the map
// cannot outgrow the set of live connections.
type messageLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newMessageLimiter(perSecond float64, burst int) *messageLimiter {
	return &messageLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *messageLimiter) allow(connectionID string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[connectionID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[connectionID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *messageLimiter) forget(connectionID string) {
	l.mu.Lock()
	delete(l.limiters, connectionID)
	l.mu.Unlock()
}
