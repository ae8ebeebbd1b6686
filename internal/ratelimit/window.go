package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry is the admitted history for one key, oldest first.
type entry struct {
	stamps []time.Time
	// logged tracks whether OnFirstDenied fired since the key was last admitted
	logged bool
}

// SlidingWindow is an in-memory sliding-window limiter. Safe for concurrent use.
type SlidingWindow struct {
	mu      sync.Mutex
	entries map[string]*entry

	window time.Duration
	max    int
	now    Clock

	// sweepEvery controls how often keys with no live timestamps are evicted
	sweepEvery time.Duration

	// maxKeys caps tracked keys; 0 disables the cap
	maxKeys int

	// OnFirstDenied is called once per key when it first hits its quota.
	// It fires again after the key is admitted or evicted.
	OnFirstDenied func(key string)

	// OnDenied is called on every rejected request.
	OnDenied func(key string)

	// OnCapacity is called when a key is evicted to make room for a new one.
	OnCapacity func()
}

type Option func(*SlidingWindow)

// WithWindow sets the trailing window length. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(l *SlidingWindow) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithQuota sets how many requests a key may make per window. Non-positive values are ignored.
func WithQuota(max int) Option {
	return func(l *SlidingWindow) {
		if max > 0 {
			l.max = max
		}
	}
}

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(l *SlidingWindow) {
		if c != nil {
			l.now = c
		}
	}
}

// WithSweepInterval sets how often idle keys are evicted. Defaults to window/2.
func WithSweepInterval(d time.Duration) Option {
	return func(l *SlidingWindow) {
		if d > 0 {
			l.sweepEvery = d
		}
	}
}

// WithMaxKeys caps the number of tracked keys. At the cap a new key evicts
// the key whose newest admission is oldest, so a flood of fresh keys cannot
// lock out legitimate callers.
func WithMaxKeys(n int) Option {
	return func(l *SlidingWindow) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

// WithOnFirstDenied sets a callback for the first denial per key, used for logging.
func WithOnFirstDenied(fn func(key string)) Option {
	return func(l *SlidingWindow) {
		l.OnFirstDenied = fn
	}
}

// WithOnDenied sets a callback for every denial, used for counters.
func WithOnDenied(fn func(key string)) Option {
	return func(l *SlidingWindow) {
		l.OnDenied = fn
	}
}

// WithOnCapacity sets a callback for evictions caused by the key cap.
func WithOnCapacity(fn func()) Option {
	return func(l *SlidingWindow) {
		l.OnCapacity = fn
	}
}

// NewSlidingWindow creates a limiter and starts the eviction goroutine, which
// stops when ctx is cancelled. Defaults: 2 requests per hour.
func NewSlidingWindow(ctx context.Context, opts ...Option) *SlidingWindow {
	l := &SlidingWindow{
		entries: make(map[string]*entry),
		window:  time.Hour,
		max:     2,
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.sweepEvery <= 0 {
		l.sweepEvery = l.window / 2
	}
	go l.sweepLoop(ctx)
	return l
}

// prune drops timestamps that are no longer live. Timestamps are ordered,
// so the live ones are a suffix.
func (l *SlidingWindow) prune(e *entry, now time.Time) {
	i := 0
	for i < len(e.stamps) && now.Sub(e.stamps[i]) >= l.window {
		i++
	}
	if i > 0 {
		e.stamps = append(e.stamps[:0], e.stamps[i:]...)
	}
}

// Allow records and admits the request when key has fewer than max live
// timestamps inside the window, and rejects it otherwise.
func (l *SlidingWindow) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	e, ok := l.entries[key]
	evicted := false
	if !ok {
		if l.maxKeys > 0 && len(l.entries) >= l.maxKeys {
			l.evictStalest()
			evicted = true
		}
		e = &entry{}
		l.entries[key] = e
	}
	if evicted && l.OnCapacity != nil {
		// runs on return, after the lock is released
		defer l.OnCapacity()
	}

	l.prune(e, now)

	if len(e.stamps) >= l.max {
		first := !e.logged
		e.logged = true
		// release before hooks, they may do slow work
		l.mu.Unlock()
		if first && l.OnFirstDenied != nil {
			l.OnFirstDenied(key)
		}
		if l.OnDenied != nil {
			l.OnDenied(key)
		}
		return false
	}

	e.stamps = append(e.stamps, now)
	e.logged = false
	l.mu.Unlock()
	return true
}

// evictStalest drops the key whose newest timestamp is oldest. Keys with no
// timestamps at all go first. Callers hold l.mu.
func (l *SlidingWindow) evictStalest() {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for k, e := range l.entries {
		if len(e.stamps) == 0 {
			victim, found = k, true
			break
		}
		newest := e.stamps[len(e.stamps)-1]
		if !found || newest.Before(oldest) {
			victim, oldest, found = k, newest, true
		}
	}
	if found {
		delete(l.entries, victim)
	}
}

// Admit implements Limiter. The in-memory limiter never fails.
func (l *SlidingWindow) Admit(_ context.Context, key string) (bool, error) {
	return l.Allow(key), nil
}

// Live implements Limiter.
func (l *SlidingWindow) Live(_ context.Context, key string) ([]time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return nil, nil
	}
	l.prune(e, l.now())
	out := make([]time.Time, len(e.stamps))
	copy(out, e.stamps)
	return out, nil
}

// RetryAfter implements Limiter.
func (l *SlidingWindow) RetryAfter(_ context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return 0, nil
	}
	now := l.now()
	l.prune(e, now)
	return untilRoom(e.stamps, l.max, l.window, now), nil
}

// Reset implements Limiter.
func (l *SlidingWindow) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

// Limits implements Limiter.
func (l *SlidingWindow) Limits() (int, time.Duration) {
	return l.max, l.window
}

// Len returns the number of tracked keys.
func (l *SlidingWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep evicts keys whose newest timestamp is outside the window and returns
// how many were removed. An evicted key behaves exactly like an empty one.
func (l *SlidingWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, e := range l.entries {
		if len(e.stamps) == 0 || now.Sub(e.stamps[len(e.stamps)-1]) >= l.window {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

func (l *SlidingWindow) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
