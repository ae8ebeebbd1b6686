package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aastar/faucet/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// faucet metrics
	faucetLimitedTotal  *prometheus.CounterVec
	faucetLimiterErrors *prometheus.CounterVec
	faucetLimitKeys     *prometheus.GaugeVec
	txTotal             *prometheus.CounterVec
	txDuration          *prometheus.HistogramVec
	rpcUp               prometheus.Gauge
	signerBalance       prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		faucetLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_rate_limited_total",
			Help: "Faucet requests rejected by a per-address quota, by limiter",
		}, []string{"limiter"}),
		faucetLimiterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_rate_limiter_errors_total",
			Help: "Faucet requests failed because the quota store was unavailable, by limiter",
		}, []string{"limiter"}),
		faucetLimitKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "faucet_rate_limit_keys",
			Help: "Keys currently tracked by an in-memory limiter",
		}, []string{"limiter"}),
		txTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faucet_transactions_total",
			Help: "Faucet actions by action and result (ok, rejected, or failure kind)",
		}, []string{"action", "result"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faucet_transaction_duration_seconds",
			Help:    "Time from request to mined receipt by action",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 30, 60, 120, 300},
		}, []string{"action"}),
		rpcUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "faucet_rpc_up",
			Help: "Whether the last RPC probe succeeded (1) or failed (0)",
		}),
		signerBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "faucet_signer_balance_ether",
			Help: "Native balance of the faucet signer at the last probe",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.errorsTotal,
		m.profilingActive,
		m.faucetLimitedTotal,
		m.faucetLimiterErrors,
		m.faucetLimitKeys,
		m.txTotal,
		m.txDuration,
		m.rpcUp,
		m.signerBalance,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// IncRateLimited counts a per-address quota rejection.
func (m *ServerMetrics) IncRateLimited(limiter string) {
	m.faucetLimitedTotal.WithLabelValues(limiter).Inc()
}

// IncLimiterError counts a request failed by an unavailable quota store.
func (m *ServerMetrics) IncLimiterError(limiter string) {
	m.faucetLimiterErrors.WithLabelValues(limiter).Inc()
}

func (m *ServerMetrics) SetRateLimitKeys(limiter string, n int) {
	m.faucetLimitKeys.WithLabelValues(limiter).Set(float64(n))
}

// ObserveTransaction records one faucet action outcome.
func (m *ServerMetrics) ObserveTransaction(action, result string, d time.Duration) {
	m.txTotal.WithLabelValues(action, result).Inc()
	m.txDuration.WithLabelValues(action).Observe(d.Seconds())
}

func (m *ServerMetrics) SetRPCUp(up bool) {
	if up {
		m.rpcUp.Set(1)
	} else {
		m.rpcUp.Set(0)
	}
}

func (m *ServerMetrics) SetSignerBalance(ether float64) {
	m.signerBalance.Set(ether)
}
