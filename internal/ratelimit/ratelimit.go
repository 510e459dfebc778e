package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether an actor may perform another action right now.
// Implementations must be safe for concurrent use. The in-memory limiter is
// per-process; swap in the Redis-backed one for multi-instance deployments
// without touching callers.
type Limiter interface {
	Allow(ctx context.Context, actorID string) (bool, error)
}

// SlidingWindow admits at most max actions per window per actor, tracked as an
// ordered slice of admission timestamps.
type SlidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	actors map[string][]time.Time
	now    func() time.Time
	swept  time.Time
}

// NewSlidingWindow builds an in-memory sliding-window limiter.
func NewSlidingWindow(max int, window time.Duration) *SlidingWindow {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Second
	}
	return &SlidingWindow{
		max:    max,
		window: window,
		actors: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an admission and returns true when the actor is under the
// limit; timestamps older than the window are discarded first.
func (l *SlidingWindow) Allow(_ context.Context, actorID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.actors[actorID][:0]
	for _, ts := range l.actors[actorID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.max {
		l.actors[actorID] = recent
		l.sweep(now)
		return false, nil
	}

	l.actors[actorID] = append(recent, now)
	l.sweep(now)
	return true, nil
}

// sweep drops actors whose newest timestamp is older than twice the window.
// Called under l.mu; at most once per window so steady traffic doesn't pay for
// a full map scan on every admission.
func (l *SlidingWindow) sweep(now time.Time) {
	if now.Sub(l.swept) < l.window {
		return
	}
	l.swept = now
	stale := now.Add(-2 * l.window)
	for actor, stamps := range l.actors {
		if len(stamps) == 0 || stamps[len(stamps)-1].Before(stale) {
			delete(l.actors, actor)
		}
	}
}
