package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-identity sliding-window admission gate. An identity may
// pass at most maxEvents times within any trailing window; a denied call
// records no timestamp, so refused traffic does not extend the lockout.
type Limiter struct {
	maxEvents int
	window    time.Duration

	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

func NewLimiter(maxEvents int, window time.Duration) *Limiter {
	if maxEvents <= 0 {
		maxEvents = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		maxEvents: maxEvents,
		window:    window,
		events:    make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Allow reports whether identity may proceed and, if so, counts the event.
// An identity never seen before is always admitted.
func (l *Limiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	times := l.events[identity]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.maxEvents {
		l.events[identity] = kept
		return false
	}

	l.events[identity] = append(kept, now)
	return true
}

// Purge drops identities with no events inside the window, bounding memory
// across long uptimes. Called opportunistically by the session sweep.
func (l *Limiter) Purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for id, times := range l.events {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.events, id)
			removed++
		}
	}
	return removed
}

// Tracked reports the number of identities currently holding state.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
