package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	return rec
}

// readiness mirrors the server: the drain gate first, then the cached RPC check.
func readiness(gate *ShutdownGate, rpc CheckFunc, clk *fakeClock) Probe {
	return All(gate.Probe(), remote("rpc", rpc, time.Second, 10*time.Second, clk.now))
}

func TestReadyzHandler_FollowsRPC(t *testing.T) {
	var gate ShutdownGate
	clk := &fakeClock{t: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
	var rpcErr error
	calls := 0
	h := ReadyzHandler(readiness(&gate, func(context.Context) error {
		calls++
		return rpcErr
	}, clk))

	rec := serve(h)
	if rec.Code != http.StatusOK || rec.Body.String() != "ready\n" {
		t.Fatalf("ready: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}

	// a burst of scrapes inside the ttl costs one RPC round trip
	for i := 0; i < 5; i++ {
		serve(h)
	}
	if calls != 1 {
		t.Fatalf("rpc calls = %d, want 1", calls)
	}

	rpcErr = errors.New("chain id mismatch: got 1, want 11155111")
	clk.advance(10 * time.Second)
	rec = serve(h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rpc: chain id mismatch") {
		t.Fatalf("body = %q, want rpc reason", rec.Body.String())
	}
}

func TestReadyzHandler_RPCTimeout(t *testing.T) {
	var gate ShutdownGate
	clk := &fakeClock{t: time.Now()}
	p := All(gate.Probe(), remote("rpc", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond, time.Minute, clk.now))

	rec := serve(ReadyzHandler(p))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "deadline exceeded") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestReadyzHandler_DrainSkipsRPC(t *testing.T) {
	var gate ShutdownGate
	clk := &fakeClock{t: time.Now()}
	calls := 0
	h := ReadyzHandler(readiness(&gate, func(context.Context) error {
		calls++
		return nil
	}, clk))

	gate.Set("shutting down")
	rec := serve(h)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "shutting down") {
		t.Fatalf("draining: %d %q", rec.Code, rec.Body.String())
	}
	if calls != 0 {
		t.Fatalf("rpc checked %d times while draining", calls)
	}
}

func TestReadyzHandler_PassesRequestContext(t *testing.T) {
	type key struct{}
	var seen any
	h := ReadyzHandler(CheckFunc(func(ctx context.Context) error {
		seen = ctx.Value(key{})
		return nil
	}))
	req := httptest.NewRequest(http.MethodGet, "/-/ready", nil)
	req = req.WithContext(context.WithValue(req.Context(), key{}, "req-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req-1" {
		t.Fatalf("probe context value = %v", seen)
	}
}

func TestHealthzHandler(t *testing.T) {
	tests := []struct {
		name     string
		p        Probe
		wantCode int
		wantBody string
	}{
		{"nil probe is live", nil, http.StatusOK, "ok\n"},
		{"passing", Fixed(true, ""), http.StatusOK, "ok\n"},
		{"failing", Fixed(false, "signer key unavailable"), http.StatusServiceUnavailable, "signer key unavailable\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(HealthzHandler(tt.p))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.HasPrefix(rec.Body.String(), strings.TrimSuffix(tt.wantBody, "\n")) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
