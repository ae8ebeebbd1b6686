package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aastar/faucet/internal/health"
	"github.com/aastar/faucet/internal/httpmw"
	"github.com/aastar/faucet/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	// RateLimitMW runs after client IP resolution, typically a per-IP guard.
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	// CORS, when set, adds CORS headers to every response, including those
	// RateLimitMW writes itself.
	CORS      *httpmw.CORSOptions
	Health    health.Probe
	Readiness health.Probe
	APIRoutes func(chi.Router)
	// WriteTimeout overrides DefaultWriteTimeout. Mint handlers wait for
	// transactions to be mined, so this should exceed the confirm timeout.
	WriteTimeout time.Duration
}
