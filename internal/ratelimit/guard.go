package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aastar/faucet/internal/httpmw"
)

// client tracks a single client IP's bucket and last activity
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged resets when the entry is evicted and re-created
	logged bool
}

// ClientGuard is a per-client-IP token bucket applied in front of the API.
// In-memory and per instance; it limits request floods, not faucet payouts.
type ClientGuard struct {
	mu      sync.Mutex
	clients map[string]*client

	perSecond rate.Limit
	burst     int

	// ttl controls how long an idle IP stays in the map before eviction
	ttl time.Duration

	// maxClients caps the map; 0 disables the cap
	maxClients int

	OnFirstDenied func(ip string)
	OnDenied      func(ip string)
	OnCapacity    func()
}

type GuardOption func(*ClientGuard)

// WithRate sets the refill rate and bucket size.
// WithRate(1, 10) allows 10 requests at once, then refills at 1 per second.
func WithRate(perSecond float64, burst int) GuardOption {
	return func(g *ClientGuard) {
		g.perSecond = rate.Limit(perSecond)
		g.burst = burst
	}
}

// WithTTL controls how long an idle IP stays in the map before cleanup
func WithTTL(d time.Duration) GuardOption {
	return func(g *ClientGuard) {
		if d > 0 {
			g.ttl = d
		}
	}
}

// WithMaxClients caps tracked IPs. Unknown IPs are rejected while at capacity.
func WithMaxClients(n int) GuardOption {
	return func(g *ClientGuard) { g.maxClients = n }
}

// WithGuardOnFirstDenied is called once per IP until it is evicted.
func WithGuardOnFirstDenied(fn func(ip string)) GuardOption {
	return func(g *ClientGuard) { g.OnFirstDenied = fn }
}

// WithGuardOnDenied is called on every denied request.
func WithGuardOnDenied(fn func(ip string)) GuardOption {
	return func(g *ClientGuard) { g.OnDenied = fn }
}

// WithGuardOnCapacity is called when an unknown IP is rejected at capacity.
func WithGuardOnCapacity(fn func()) GuardOption {
	return func(g *ClientGuard) { g.OnCapacity = fn }
}

// NewClientGuard creates a guard and starts eviction until ctx is cancelled.
func NewClientGuard(ctx context.Context, opts ...GuardOption) *ClientGuard {
	g := &ClientGuard{
		clients:    make(map[string]*client),
		perSecond:  1,
		burst:      10,
		ttl:        10 * time.Minute,
		maxClients: 50000,
	}
	for _, o := range opts {
		o(g)
	}
	go g.cleanup(ctx)
	return g
}

func (g *ClientGuard) allow(ip string) bool {
	g.mu.Lock()
	c, exists := g.clients[ip]
	if !exists {
		if g.maxClients > 0 && len(g.clients) >= g.maxClients {
			g.mu.Unlock()
			if g.OnCapacity != nil {
				g.OnCapacity()
			}
			return false
		}
		c = &client{limiter: rate.NewLimiter(g.perSecond, g.burst)}
		g.clients[ip] = c
	}
	c.lastSeen = time.Now()
	allowed := c.limiter.Allow()
	first := !allowed && !c.logged
	if first {
		c.logged = true
	}
	g.mu.Unlock()

	if first && g.OnFirstDenied != nil {
		g.OnFirstDenied(ip)
	}
	if !allowed && g.OnDenied != nil {
		g.OnDenied(ip)
	}
	return allowed
}

func (g *ClientGuard) cleanup(ctx context.Context) {
	ticker := time.NewTicker(g.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.mu.Lock()
			for ip, c := range g.clients {
				if now.Sub(c.lastSeen) > g.ttl {
					delete(g.clients, ip)
				}
			}
			g.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the per-IP rate with 429.
// OPTIONS preflights pass through untouched.
func (g *ClientGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ip := httpmw.ClientIPFromContext(r.Context())
		if !g.allow(ip) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			// no detail about limits or refill timing
			_, _ = w.Write([]byte(`{"success":false,"error":"Too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
