package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock safe for concurrent reads.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// newTestWindow creates a limiter on a fake clock with a long sweep interval so
// the background sweeper never races the assertions.
func newTestWindow(t *testing.T, window time.Duration, max int, opts ...Option) (*SlidingWindow, *fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clk := newFakeClock()
	all := append([]Option{
		WithWindow(window),
		WithQuota(max),
		WithClock(clk.Now),
		WithSweepInterval(time.Hour),
	}, opts...)
	return NewSlidingWindow(ctx, all...), clk
}

func TestAllow_QuotaRespected(t *testing.T) {
	for _, max := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			l, clk := newTestWindow(t, time.Hour, max)
			for i := 0; i < max; i++ {
				if !l.Allow("sbt-0xabc") {
					t.Fatalf("request %d should be admitted", i+1)
				}
				clk.Advance(time.Second)
			}
			if l.Allow("sbt-0xabc") {
				t.Fatalf("request %d should be rejected", max+1)
			}
		})
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	const w = time.Hour
	l, clk := newTestWindow(t, w, 1)

	if !l.Allow("k") {
		t.Fatal("t=0 should be admitted")
	}
	clk.Advance(w - time.Millisecond)
	if l.Allow("k") {
		t.Fatal("t=W-1 should be rejected")
	}
	clk.Advance(2 * time.Millisecond)
	if !l.Allow("k") {
		t.Fatal("t=W+1 should be admitted")
	}
}

func TestAllow_ExpiresExactlyAtWindow(t *testing.T) {
	// live means now - t < window, so a stamp exactly one window old is gone
	l, clk := newTestWindow(t, time.Minute, 1)
	l.Allow("k")
	clk.Advance(time.Minute)
	if !l.Allow("k") {
		t.Fatal("stamp exactly one window old should no longer count")
	}
}

func TestAllow_HourlyScenario(t *testing.T) {
	l, clk := newTestWindow(t, 3600000*time.Millisecond, 2)
	start := clk.Now()

	steps := []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{1000 * time.Millisecond, true},
		{2000 * time.Millisecond, false},
		{3600001 * time.Millisecond, true},
	}
	for _, s := range steps {
		clk.Advance(start.Add(s.at).Sub(clk.Now()))
		if got := l.Allow("pnt-0x1111111111111111111111111111111111111111"); got != s.want {
			t.Fatalf("t=%v: got %v, want %v", s.at, got, s.want)
		}
	}
}

func TestAllow_KeyIsolation(t *testing.T) {
	l, _ := newTestWindow(t, time.Hour, 1)

	if !l.Allow(Key("sbt", "0xabc")) {
		t.Fatal("first sbt request should be admitted")
	}
	if l.Allow(Key("sbt", "0xabc")) {
		t.Fatal("second sbt request should be rejected")
	}
	if !l.Allow(Key("pnt", "0xabc")) {
		t.Fatal("pnt key is independent of sbt key")
	}
	if !l.Allow(Key("sbt", "0xABC")) {
		t.Fatal("keys are case-sensitive, 0xABC is a different subject")
	}
}

func TestAllow_PruningStoresBack(t *testing.T) {
	l, clk := newTestWindow(t, time.Minute, 3)
	for i := 0; i < 3; i++ {
		l.Allow("k")
	}
	clk.Advance(2 * time.Minute)

	live, err := l.Live(context.Background(), "k")
	if err != nil {
		t.Fatalf("Live: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("live = %d, want 0", len(live))
	}

	l.mu.Lock()
	stored := len(l.entries["k"].stamps)
	l.mu.Unlock()
	if stored != 0 {
		t.Fatalf("stored stamps = %d, want 0 after prune", stored)
	}
}

func TestAllow_RejectionDoesNotExtendWindow(t *testing.T) {
	l, clk := newTestWindow(t, time.Minute, 1)

	l.Allow("k")
	for i := 0; i < 10; i++ {
		clk.Advance(5 * time.Second)
		if l.Allow("k") {
			t.Fatalf("attempt %d should be rejected", i)
		}
	}
	live, _ := l.Live(context.Background(), "k")
	if len(live) != 1 {
		t.Fatalf("live = %d, want 1; rejections must not be recorded", len(live))
	}

	clk.Advance(10 * time.Second) // 60s after the only admit
	if !l.Allow("k") {
		t.Fatal("should be admitted once the original stamp expires")
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l, _ := newTestWindow(t, time.Hour, 5)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("account-0xabc") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 5 {
		t.Fatalf("admitted %d, want exactly 5", got)
	}
}

func TestHooks_FirstDeniedOncePerEpisode(t *testing.T) {
	var first, denied atomic.Int32
	l, clk := newTestWindow(t, time.Minute, 1,
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { denied.Add(1) }),
	)

	l.Allow("k")
	for i := 0; i < 4; i++ {
		l.Allow("k")
	}
	if first.Load() != 1 || denied.Load() != 4 {
		t.Fatalf("first=%d denied=%d, want 1 and 4", first.Load(), denied.Load())
	}

	clk.Advance(time.Minute)
	l.Allow("k") // admitted, resets the episode
	l.Allow("k")
	if first.Load() != 2 {
		t.Fatalf("first=%d, want 2 after a fresh episode", first.Load())
	}
}

func TestMaxKeys_EvictsStalestKey(t *testing.T) {
	var capacity atomic.Int32
	l, clk := newTestWindow(t, time.Hour, 1,
		WithMaxKeys(2),
		WithOnCapacity(func() { capacity.Add(1) }),
	)

	l.Allow("sbt-0xaaa")
	clk.Advance(time.Minute)
	l.Allow("sbt-0xbbb")
	clk.Advance(time.Minute)

	if !l.Allow("sbt-0xccc") {
		t.Fatal("new key at capacity should be admitted")
	}
	if capacity.Load() != 1 {
		t.Fatalf("OnCapacity = %d, want 1", capacity.Load())
	}
	if l.Len() != 2 {
		t.Fatalf("Len = %d, want 2", l.Len())
	}

	// the oldest key lost its history; the newer one kept it
	if live, _ := l.Live(context.Background(), "sbt-0xaaa"); len(live) != 0 {
		t.Fatalf("evicted key still has %d stamps", len(live))
	}
	if l.Allow("sbt-0xbbb") {
		t.Fatal("surviving key should still be at quota")
	}
}

func TestMaxKeys_PrefersEmptyKeys(t *testing.T) {
	l, _ := newTestWindow(t, time.Hour, 1, WithMaxKeys(2))

	l.Allow("old")
	// tracked but never admitted
	l.entries["idle"] = &entry{}
	l.Allow("new")

	if _, ok := l.entries["idle"]; ok {
		t.Fatal("key with no stamps should be evicted first")
	}
	if _, ok := l.entries["old"]; !ok {
		t.Fatal("key with live stamps evicted while an empty one existed")
	}
}

func TestRetryAfter_UsesLimiterClock(t *testing.T) {
	l, clk := newTestWindow(t, time.Hour, 2)
	ctx := context.Background()

	if d, _ := l.RetryAfter(ctx, "usdt-0xabc"); d != 0 {
		t.Fatalf("unknown key = %v, want 0", d)
	}
	l.Allow("usdt-0xabc")
	clk.Advance(10 * time.Minute)
	if d, _ := l.RetryAfter(ctx, "usdt-0xabc"); d != 0 {
		t.Fatalf("under quota = %v, want 0", d)
	}
	l.Allow("usdt-0xabc")
	clk.Advance(5 * time.Minute)

	// the fake clock is far from the wall clock, so only the limiter's own
	// clock yields 45m
	d, err := l.RetryAfter(ctx, "usdt-0xabc")
	if err != nil || d != 45*time.Minute {
		t.Fatalf("RetryAfter = %v, %v, want 45m", d, err)
	}

	clk.Advance(45 * time.Minute)
	if d, _ := l.RetryAfter(ctx, "usdt-0xabc"); d != 0 {
		t.Fatalf("after oldest expires = %v, want 0", d)
	}
}

func TestSweep_KeepsLiveKeys(t *testing.T) {
	l, clk := newTestWindow(t, time.Minute, 5)

	l.Allow("old")
	clk.Advance(50 * time.Second)
	l.Allow("fresh")
	clk.Advance(20 * time.Second)

	if n := l.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
	live, _ := l.Live(context.Background(), "fresh")
	if len(live) != 1 {
		t.Fatalf("fresh key lost its stamp")
	}
}

func TestSweepLoop_Evicts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := newFakeClock()
	l := NewSlidingWindow(ctx,
		WithWindow(time.Minute),
		WithClock(clk.Now),
		WithSweepInterval(10*time.Millisecond),
	)
	l.Allow("k")
	clk.Advance(2 * time.Minute)

	deadline := time.Now().Add(time.Second)
	for l.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not evict expired key")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReset_ForgetsHistory(t *testing.T) {
	l, _ := newTestWindow(t, time.Hour, 1)
	l.Allow("k")
	if err := l.Reset(context.Background(), "k"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !l.Allow("k") {
		t.Fatal("should be admitted after reset")
	}
}

func TestDefaultsAndIgnoredOptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewSlidingWindow(ctx, WithWindow(-time.Second), WithQuota(0))
	max, window := l.Limits()
	if max != 2 {
		t.Errorf("default max = %d, want 2", max)
	}
	if window != time.Hour {
		t.Errorf("default window = %v, want 1h", window)
	}
	if l.sweepEvery != 30*time.Minute {
		t.Errorf("default sweep = %v, want 30m", l.sweepEvery)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		max    int
		window time.Duration
		want   string
	}{
		{2, time.Hour, "max 2 requests per hour"},
		{5, time.Minute, "max 5 requests per minute"},
		{3, 6 * time.Hour, "max 3 requests per 6 hours"},
		{1, 90 * time.Second, "max 1 requests per 1m30s"},
	}
	for _, tt := range tests {
		if got := Describe(tt.max, tt.window); got != tt.want {
			t.Errorf("Describe(%d, %v) = %q, want %q", tt.max, tt.window, got, tt.want)
		}
	}
}
