package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aastar/faucet/internal/contracts"
	"github.com/aastar/faucet/internal/faucethttp"
	"github.com/aastar/faucet/internal/health"
	"github.com/aastar/faucet/internal/httpserver"
	"github.com/aastar/faucet/internal/log"
)

// TestIntegration_FullStack wires httpserver.NewHandler with the real faucet
// API routes and checks the paths that never reach the chain: the catalog,
// input validation, CORS preflight and the health endpoints.
func TestIntegration_FullStack(t *testing.T) {
	t.Parallel()

	catalog, err := contracts.Load()
	if err != nil {
		t.Fatalf("contracts.Load: %v", err)
	}
	api := faucethttp.NewAPI(faucethttp.Options{
		Logger:  log.Nop(),
		Catalog: catalog,
	})

	var gate health.ShutdownGate
	handler := httpserver.NewHandler(httpserver.Options{
		Logger:       log.Nop(),
		UseRecoverMW: true,
		Health:       health.Fixed(true, ""),
		Readiness:    gate.Probe(),
		APIRoutes:    api.RegisterRoutes,
	})

	t.Run("serves contract catalog with security headers", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contracts", http.NoBody))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var view struct {
			Network string `json:"network"`
			ChainID int64  `json:"chainId"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if view.ChainID != 11155111 {
			t.Errorf("chainId = %d, want 11155111", view.ChainID)
		}
		for _, hdr := range []string{
			"Strict-Transport-Security",
			"Content-Security-Policy",
			"X-Content-Type-Options",
			"Access-Control-Allow-Origin",
			"X-Request-Id",
		} {
			if rec.Header().Get(hdr) == "" {
				t.Errorf("missing header: %s", hdr)
			}
		}
	})

	t.Run("rejects malformed mint before touching the chain", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/mint", strings.NewReader(`{"address":"0x123","type":"sbt"}`))
		req.Header.Set("Content-Type", "application/json")
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Invalid Ethereum address") {
			t.Fatalf("body = %q", rec.Body.String())
		}
	})

	t.Run("answers preflight with empty 200", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/mint", http.NoBody))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("body = %q, want empty", rec.Body.String())
		}
	})

	t.Run("wrong method on api route is JSON 405", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/mint", http.NoBody))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Method not allowed") {
			t.Fatalf("body = %q", rec.Body.String())
		}
	})

	t.Run("unknown path is JSON 404", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", http.NoBody))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("HSTS missing on 404 response")
		}
	})

	t.Run("health and readiness probes", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", http.NoBody))
		if rec.Code != http.StatusOK {
			t.Fatalf("healthy status = %d, want 200", rec.Code)
		}
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody))
		if rec.Code != http.StatusOK {
			t.Fatalf("ready status = %d, want 200", rec.Code)
		}
	})
}
