package opshttp

import (
	"net/http"

	"github.com/aastar/faucet/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// AllowPublic skips the private-network check, for setups where the ops
	// port is already firewalled off.
	AllowPublic bool
}
