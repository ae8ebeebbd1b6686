// Package cli implements faucetctl, the operator tool for the Sepolia faucet:
// catalog export, community onboarding, MySBT mints, pool seeding and
// inspection of the shared rate limit store.
package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/ratelimit"
	"github.com/aastar/faucet/internal/version"
)

// LimiterFactory opens the shared limiter store for one quota.
type LimiterFactory func(ctx context.Context, addr, prefix string, window time.Duration, max int) (ratelimit.Limiter, func() error, error)

// App holds state shared by every faucetctl command.
type App struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time

	newLimiter LimiterFactory
	logger     log.Logger
}

// AppOption customizes an App.
type AppOption func(*App)

// WithOutput redirects command output.
func WithOutput(stdout, stderr io.Writer) AppOption {
	return func(a *App) { a.stdout, a.stderr = stdout, stderr }
}

// WithGetenv replaces os.Getenv for env: key references.
func WithGetenv(fn func(string) string) AppOption {
	return func(a *App) { a.getenv = fn }
}

// WithLimiterFactory replaces the redis-backed limiter used by ratelimit commands.
func WithLimiterFactory(f LimiterFactory) AppOption {
	return func(a *App) { a.newLimiter = f }
}

// WithClock sets the time source for generated files.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) { a.now = now }
}

func NewApp(opts ...AppOption) *App {
	a := &App{
		v:          viper.New(),
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		getenv:     os.Getenv,
		now:        time.Now,
		newLimiter: redisLimiter,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// envBindings maps config keys to environment variables, first match wins.
// The unprefixed names are the ones the deployment scripts already export.
var envBindings = map[string][]string{
	"rpc-url":      {"FAUCETCTL_RPC_URL", "SEPOLIA_RPC_URL"},
	"chain-id":     {"FAUCETCTL_CHAIN_ID"},
	"signer-key":   {"FAUCETCTL_SIGNER_KEY", "SEPOLIA_PRIVATE_KEY_NEW", "SEPOLIA_PRIVATE_KEY"},
	"owner-key":    {"FAUCETCTL_OWNER_KEY", "OWNER_PRIVATE_KEY"},
	"source-key":   {"FAUCETCTL_SOURCE_KEY", "SOURCE_PRIVATE_KEY"},
	"test-key":     {"FAUCETCTL_TEST_KEY", "TEST_PRIVATE_KEY"},
	"catalog-file": {"FAUCETCTL_CATALOG_FILE"},
	"redis-addr":   {"FAUCETCTL_REDIS_ADDR", "FAUCET_REDIS_ADDR"},
	"redis-prefix": {"FAUCETCTL_REDIS_PREFIX", "FAUCET_REDIS_PREFIX"},
}

// NewRootCmd builds the command tree bound to a.
func (a *App) NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "faucetctl",
		Short:         "Operate the AAStar Sepolia faucet",
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.String("rpc-url", "", "Ethereum JSON-RPC endpoint")
	pf.Int64("chain-id", 11155111, "expected chain id")
	pf.String("signer-key", "", "faucet deployer key reference (env:, file:, ssm:, kms:)")
	pf.String("owner-key", "", "token owner key reference")
	pf.String("source-key", "", "GToken source wallet key reference")
	pf.String("test-key", "", "test user key reference")
	pf.String("catalog-file", "", "contract catalog JSON (default: embedded Sepolia catalog)")
	pf.Duration("confirm-timeout", 2*time.Minute, "how long to wait for a transaction to be mined")
	pf.String("redis-addr", "", "redis address or redis:// URL of the shared rate limit store")
	pf.String("redis-prefix", "faucet:rl:", "rate limit key prefix in redis")
	pf.StringP("output", "o", "table", "output format: table|json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("verbose", "v", false, "log debug output to stderr")

	_ = a.v.BindPFlags(pf)
	for key, envs := range envBindings {
		_ = a.v.BindEnv(append([]string{key}, envs...)...)
	}

	root.AddCommand(
		a.contractsCmd(),
		a.gtokenCmd(),
		a.communityCmd(),
		a.mysbtCmd(),
		a.poolCmd(),
		a.ratelimitCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *App) setup() error {
	if a.v.GetBool("no-color") {
		color.NoColor = true
	}
	if _, err := a.format(); err != nil {
		return err
	}
	lvl := "warn"
	if a.v.GetBool("verbose") {
		lvl = "debug"
	}
	level, _ := log.ParseLevel(lvl)
	vi := version.Get()
	lg, err := log.New(log.Options{
		App:     version.AppName,
		Version: vi.Version,
		Commit:  vi.Commit,
		Level:   level,
		Writer:  a.stderr,
	})
	if err != nil {
		return err
	}
	a.logger = lg.With("component", "faucetctl")
	return nil
}

func (a *App) lg() log.Logger {
	return log.OrNop(a.logger)
}

// ref reads a key reference, resolving bare env values through getenv when
// viper did not see them (tests inject getenv).
func (a *App) ref(key string) string {
	if v := strings.TrimSpace(a.v.GetString(key)); v != "" {
		return v
	}
	for _, env := range envBindings[key] {
		if v := strings.TrimSpace(a.getenv(env)); v != "" {
			return v
		}
	}
	return ""
}

// Execute runs faucetctl with os.Args.
func Execute(ctx context.Context) error {
	return NewApp().NewRootCmd().ExecuteContext(ctx)
}
