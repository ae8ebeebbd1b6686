package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aastar/faucet/internal/log"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// chain
	RPCURL         string
	ChainID        int64
	Network        string
	SignerKey      string
	OwnerKey       string
	ConfirmTimeout time.Duration
	CatalogFile    string

	// contract overrides; empty uses the catalog
	SBTAddress         string
	PNTAddress         string
	USDTAddress        string
	FactoryAddress     string
	PoolFactoryAddress string

	PNTAmount string

	// per-key quotas
	RateWindow       time.Duration
	MintRateLimit    int
	USDTRateLimit    int
	AccountRateLimit int
	RateLimitMaxKeys int
	RateLimitBackend string
	RedisAddr        string
	RedisPrefix      string

	// per-IP guard
	IPRate           float64
	IPBurst          int
	TrustedProxyHops int

	AdminKey         string
	PoolDefaultSize  int
	PoolMaxSize      int
	PoolInterval     time.Duration
	PoolWriteTimeout time.Duration
	ReportS3Bucket   string
	ReportS3Prefix   string
	ReportDir        string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.RPCURL, "rpc-url", "", "Ethereum JSON-RPC endpoint (http(s) or ws(s))")
	fs.Int64Var(&c.ChainID, "chain-id", 11155111, "expected chain id; startup fails on mismatch")
	fs.StringVar(&c.Network, "network", "Sepolia", "network name reported in responses")
	fs.StringVar(&c.SignerKey, "signer-key", "", "faucet signer key reference (env:NAME, file:PATH, ssm:PARAM, kms:KEY-ID)")
	fs.StringVar(&c.OwnerKey, "owner-key", "", "key reference whose address is the default smart account owner")
	fs.DurationVar(&c.ConfirmTimeout, "confirm-timeout", 2*time.Minute, "how long to wait for a transaction to be mined")
	fs.StringVar(&c.CatalogFile, "catalog-file", "", "contract catalog JSON (default: embedded Sepolia catalog)")

	fs.StringVar(&c.SBTAddress, "sbt-address", "", "SBT contract (default: catalog SBT)")
	fs.StringVar(&c.PNTAddress, "pnt-address", "", "PNT token contract (default: catalog PNT)")
	fs.StringVar(&c.USDTAddress, "usdt-address", "", "mock USDT contract (default: catalog USDT)")
	fs.StringVar(&c.FactoryAddress, "factory-address", "", "SimpleAccountFactory (default: catalog SIMPLE_ACCOUNT_FACTORY)")
	fs.StringVar(&c.PoolFactoryAddress, "pool-factory-address", "", "factory used by init-pool (default: catalog POOL_ACCOUNT_FACTORY)")
	fs.StringVar(&c.PNTAmount, "pnt-amount", "100", "PNT minted per request, whole tokens")

	fs.DurationVar(&c.RateWindow, "rate-window", time.Hour, "sliding window for per-address quotas")
	fs.IntVar(&c.MintRateLimit, "mint-rate-limit", 2, "SBT/PNT mints per address per window")
	fs.IntVar(&c.USDTRateLimit, "usdt-rate-limit", 5, "USDT mints per address per window")
	fs.IntVar(&c.AccountRateLimit, "account-rate-limit", 3, "account creations per owner per window")
	fs.IntVar(&c.RateLimitMaxKeys, "rate-limit-max-keys", 0, "cap on tracked keys per in-memory limiter (0 = no cap)")
	fs.StringVar(&c.RateLimitBackend, "rate-limit-backend", "memory", "memory|redis")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis URL or host:port for the redis backend")
	fs.StringVar(&c.RedisPrefix, "redis-prefix", "faucet:rl:", "key prefix in redis")

	fs.Float64Var(&c.IPRate, "ip-rate", 1, "per-IP requests per second (0 disables the guard)")
	fs.IntVar(&c.IPBurst, "ip-burst", 10, "per-IP burst")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "X-Forwarded-For hops to trust (0 = use remote addr)")

	fs.StringVar(&c.AdminKey, "admin-key", "", "key reference for the init-pool admin key (empty disables init-pool)")
	fs.IntVar(&c.PoolDefaultSize, "pool-default-size", 20, "accounts per init-pool run when none is requested")
	fs.IntVar(&c.PoolMaxSize, "pool-max-size", 50, "upper bound on init-pool size")
	fs.DurationVar(&c.PoolInterval, "pool-interval", 2*time.Second, "minimum gap between pool accounts")
	fs.DurationVar(&c.PoolWriteTimeout, "pool-write-timeout", 10*time.Minute, "write deadline for init-pool responses")
	fs.StringVar(&c.ReportS3Bucket, "report-s3-bucket", "", "archive pool reports to this bucket")
	fs.StringVar(&c.ReportS3Prefix, "report-s3-prefix", "faucet/pool-reports", "s3 prefix for pool reports")
	fs.StringVar(&c.ReportDir, "report-dir", "", "also write pool reports to this directory")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// legacy maps flags to the variable names of earlier deployments, in order of
// preference. Secrets become env: references so their values never sit in a
// flag or a log line.
var legacy = []struct {
	flag   string
	envs   []string
	secret bool
}{
	{"rpc-url", []string{"SEPOLIA_RPC_URL"}, false},
	{"signer-key", []string{"SEPOLIA_PRIVATE_KEY_NEW", "SEPOLIA_PRIVATE_KEY"}, true},
	{"owner-key", []string{"OWNER2_PRIVATE_KEY"}, true},
	{"sbt-address", []string{"SBT_CONTRACT_ADDRESS"}, false},
	{"pnt-address", []string{"PNT_TOKEN_ADDRESS"}, false},
	{"usdt-address", []string{"USDT_CONTRACT_ADDRESS"}, false},
	{"factory-address", []string{"SIMPLE_ACCOUNT_FACTORY_ADDRESS"}, false},
	{"admin-key", []string{"INIT_POOL_ADMIN_KEY"}, true},
}

// FillFromLegacyEnv fills flags still at their defaults from legacy variable
// names. Run it after FillFromEnv so prefixed variables win.
func FillFromLegacyEnv(fs *flag.FlagSet, logf func(string, ...any)) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	for _, l := range legacy {
		f := fs.Lookup(l.flag)
		if f == nil || set[l.flag] || f.Value.String() != f.DefValue {
			continue
		}
		for _, name := range l.envs {
			v, ok := os.LookupEnv(name)
			if !ok || v == "" {
				continue
			}
			if l.secret {
				v = "env:" + name
			}
			if err := fs.Set(l.flag, v); err != nil {
				if logf != nil {
					logf("flag -%s: ignoring invalid legacy env %s: %v", l.flag, name, err)
				}
				continue
			}
			if logf != nil {
				logf("flag -%s: using legacy env %s", l.flag, name)
			}
			break
		}
	}
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Chain
	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("RPC_URL is required"))
	} else if u, err := url.Parse(c.RPCURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("RPC_URL must be a URL (got %q)", c.RPCURL))
	} else {
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			errs = append(errs, fmt.Errorf("RPC_URL scheme must be http(s) or ws(s) (got %q)", u.Scheme))
		}
	}
	if c.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("invalid CHAIN_ID %d", c.ChainID))
	}
	if c.SignerKey == "" {
		errs = append(errs, fmt.Errorf("SIGNER_KEY is required"))
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CONFIRM_TIMEOUT must be positive"))
	}
	for name, v := range map[string]string{
		"SBT_ADDRESS":          c.SBTAddress,
		"PNT_ADDRESS":          c.PNTAddress,
		"USDT_ADDRESS":         c.USDTAddress,
		"FACTORY_ADDRESS":      c.FactoryAddress,
		"POOL_FACTORY_ADDRESS": c.PoolFactoryAddress,
	} {
		if v != "" && !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("%s is not an address (got %q)", name, v))
		}
	}

	// Rate limits
	if c.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_WINDOW must be positive"))
	}
	for name, v := range map[string]int{
		"MINT_RATE_LIMIT":    c.MintRateLimit,
		"USDT_RATE_LIMIT":    c.USDTRateLimit,
		"ACCOUNT_RATE_LIMIT": c.AccountRateLimit,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be >= 1 (got %d)", name, v))
		}
	}
	if c.RateLimitMaxKeys < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX_KEYS must be >= 0"))
	}
	switch c.RateLimitBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR required when RATE_LIMIT_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis (got %q)", c.RateLimitBackend))
	}
	if c.IPRate < 0 || c.IPBurst < 0 {
		errs = append(errs, fmt.Errorf("IP_RATE and IP_BURST must be >= 0"))
	}
	if c.IPRate > 0 && c.IPBurst < 1 {
		errs = append(errs, fmt.Errorf("IP_BURST must be >= 1 when IP_RATE is set"))
	}
	if c.TrustedProxyHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be >= 0"))
	}

	// Pool
	if c.PoolMaxSize < 1 || c.PoolDefaultSize < 1 || c.PoolDefaultSize > c.PoolMaxSize {
		errs = append(errs, fmt.Errorf("pool sizes must satisfy 1 <= POOL_DEFAULT_SIZE <= POOL_MAX_SIZE (got %d, %d)", c.PoolDefaultSize, c.PoolMaxSize))
	}
	if c.PoolInterval < 0 {
		errs = append(errs, fmt.Errorf("POOL_INTERVAL must be >= 0"))
	}
	if c.ReportS3Bucket != "" && strings.Trim(c.ReportS3Prefix, "/") == "" {
		errs = append(errs, fmt.Errorf("REPORT_S3_PREFIX is required when REPORT_S3_BUCKET is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
