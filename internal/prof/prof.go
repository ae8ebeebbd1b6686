package prof

import (
	"context"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/version"
	"github.com/aastar/faucet/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string // default version.AppName
	ServerAddress string
	TenantID      string
	// Tags are merged over the default version tag.
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int
}

// signers serialize on a nonce mutex, so mutex and block profiles are on by
// default alongside CPU and heap.
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// startProfiler is swapped in tests.
var startProfiler = pyroscope.Start

func (o Options) config() pyroscope.Config {
	app := o.AppName
	if app == "" {
		app = version.AppName
	}
	tags := map[string]string{"version": version.Get().Version}
	for k, v := range o.Tags {
		tags[k] = v
	}
	return pyroscope.Config{
		ApplicationName: app,
		ServerAddress:   o.ServerAddress,
		TenantID:        o.TenantID,
		Tags:            tags,
		ProfileTypes:    profileTypes,
	}
}

// Start begins continuous profiling. The returned stop func is always safe
// to call, also when err is non-nil.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return func() {}, nil
	}
	if opts.ServerAddress == "" {
		err := xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
		L.Error(ctx, err, "pyroscope options")
		return func() {}, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	cfg := opts.config()
	profiler, err := startProfiler(cfg)
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", cfg.ServerAddress,
			"app_name", cfg.ApplicationName,
		)
		return func() {}, xerrors.Wrap(err, "start pyroscope")
	}

	L.Info(ctx, "pyroscope started",
		"server_address", cfg.ServerAddress,
		"app_name", cfg.ApplicationName,
		"version", cfg.Tags["version"],
	)

	return func() {
		profiler.Stop()
		L.Info(context.Background(), "pyroscope stopped", "app_name", cfg.ApplicationName)
	}, nil
}
