package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aastar/faucet/internal/cfg"
	"github.com/aastar/faucet/internal/faucethttp"
	"github.com/aastar/faucet/internal/health"
	"github.com/aastar/faucet/internal/httpmw"
	"github.com/aastar/faucet/internal/httpserver"
	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/metrics"
	"github.com/aastar/faucet/internal/opshttp"
	"github.com/aastar/faucet/internal/otelx"
	"github.com/aastar/faucet/internal/prof"
	"github.com/aastar/faucet/internal/ratelimit"
	v "github.com/aastar/faucet/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	logf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	// FAUCET_* wins over the legacy names used by the original deployment scripts
	cfg.FillFromEnv(flag.CommandLine, "FAUCET_", logf)
	cfg.FillFromLegacyEnv(flag.CommandLine, logf)

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Network:           conf.Network,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	// key references only; literal keys are logged as "literal"
	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"chain_id", conf.ChainID,
		"signer_key_ref", describeRef(conf.SignerKey),
		"owner_key_ref", describeRef(conf.OwnerKey),
		"admin_key_ref", describeRef(conf.AdminKey),
		"rate_limit_backend", conf.RateLimitBackend,
		"rate_window", conf.RateWindow,
		"mint_rate_limit", conf.MintRateLimit,
		"usdt_rate_limit", conf.USDTRateLimit,
		"account_rate_limit", conf.AccountRateLimit,
		"trusted_proxy_hops", conf.TrustedProxyHops,
	)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"network":   conf.Network,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Component: "server",
		Version:   vi.Version,
		Network:   conf.Network,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope)

	// chain, signer, contracts and the faucet service
	fs, err := setupFaucet(ctx, L, &conf, m)
	if err != nil {
		L.Error(ctx, err, "faucet setup failed")
		os.Exit(1)
	}
	defer fs.close()

	limiters, closeLimiters, err := buildLimiters(ctx, L, &conf, m)
	if err != nil {
		L.Error(ctx, err, "rate limiter setup failed")
		os.Exit(1)
	}
	defer closeLimiters()

	api := faucethttp.NewAPI(faucethttp.Options{
		Faucet:         fs.service,
		Limiters:       limiters,
		Catalog:        fs.catalog,
		Logger:         L,
		AdminKey:       fs.adminKey,
		PoolTimeout:    conf.PoolWriteTimeout,
		OnRateLimited:  m.IncRateLimited,
		OnLimiterError: m.IncLimiterError,
	})

	var rateLimitMW func(http.Handler) http.Handler
	if conf.IPRate > 0 {
		guard := ratelimit.NewClientGuard(ctx,
			ratelimit.WithRate(conf.IPRate, conf.IPBurst),
			ratelimit.WithGuardOnDenied(func(string) { m.IncRateLimitDenied() }),
			// only log the first denial per IP until it is evicted
			ratelimit.WithGuardOnFirstDenied(func(ip string) {
				L.Warn(ctx, "per-ip rate limit triggered", "ip", ip)
			}),
			ratelimit.WithGuardOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "per-ip guard at capacity, rejecting new clients until some are evicted")
			}),
		)
		rateLimitMW = guard.Middleware
	}

	var gate health.ShutdownGate

	// RPC reachability is cached so probes from several load balancers
	// collapse into one call per interval
	rpcProbe := health.Remote("rpc", func(ctx context.Context) error {
		err := fs.client.Check(ctx)
		m.SetRPCUp(err == nil)
		return err
	}, 3*time.Second, 10*time.Second)
	readiness := health.All(gate.Probe(), rpcProbe)

	go monitorSigner(ctx, L, fs, m, limiters, time.Minute)

	writeTimeout := conf.ConfirmTimeout + 30*time.Second
	if conf.PoolWriteTimeout > writeTimeout {
		writeTimeout = conf.PoolWriteTimeout
	}

	apiHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    api.RegisterRoutes,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		CORS:         &httpmw.CORSOptions{},
		Logger:       L,
		WriteTimeout: writeTimeout,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start faucet http listener")
		os.Exit(1)
	}
	defer func() { _ = apiHTTPStop(context.Background()) }()

	// ops listener serves metrics, probes and pprof to internal monitoring only;
	// public peers are rejected in case the port is ever exposed
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining for 30s")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	// in-flight mints may still be waiting on a receipt
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ConfirmTimeout)
	defer cancel()

	if err := apiHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "faucet http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when the unit is Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	_, _ = conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
