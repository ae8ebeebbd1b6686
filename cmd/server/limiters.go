package main

import (
	"context"

	"github.com/aastar/faucet/internal/cfg"
	"github.com/aastar/faucet/internal/faucethttp"
	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/metrics"
	"github.com/aastar/faucet/internal/ratelimit"
)

// buildLimiters creates the per-key quota limiters. The memory backend is per
// replica; redis shares quotas across replicas.
func buildLimiters(ctx context.Context, L log.Logger, conf *cfg.App, m *metrics.ServerMetrics) (faucethttp.Limiters, func(), error) {
	if conf.RateLimitBackend == "redis" {
		rc, err := ratelimit.DialRedis(ctx, conf.RedisAddr)
		if err != nil {
			return faucethttp.Limiters{}, nil, err
		}
		L.Info(ctx, "rate limits stored in redis", "prefix", conf.RedisPrefix)
		prefix := ratelimit.WithRedisPrefix(conf.RedisPrefix)
		return faucethttp.Limiters{
			Mint:    ratelimit.NewRedisWindow(rc, conf.RateWindow, conf.MintRateLimit, prefix),
			USDT:    ratelimit.NewRedisWindow(rc, conf.RateWindow, conf.USDTRateLimit, prefix),
			Account: ratelimit.NewRedisWindow(rc, conf.RateWindow, conf.AccountRateLimit, prefix),
		}, func() { _ = rc.Close() }, nil
	}

	mk := func(name string, quota int) *ratelimit.SlidingWindow {
		return ratelimit.NewSlidingWindow(ctx,
			ratelimit.WithWindow(conf.RateWindow),
			ratelimit.WithQuota(quota),
			ratelimit.WithMaxKeys(conf.RateLimitMaxKeys),
			ratelimit.WithOnFirstDenied(func(key string) {
				L.Info(ctx, "quota exhausted", "limiter", name, "key", key)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limiter at key capacity", "limiter", name)
			}),
		)
	}
	L.Info(ctx, "rate limits held in memory",
		"mint", ratelimit.Describe(conf.MintRateLimit, conf.RateWindow),
		"usdt", ratelimit.Describe(conf.USDTRateLimit, conf.RateWindow),
		"account", ratelimit.Describe(conf.AccountRateLimit, conf.RateWindow),
	)
	return faucethttp.Limiters{
		Mint:    mk("mint", conf.MintRateLimit),
		USDT:    mk("usdt", conf.USDTRateLimit),
		Account: mk("account", conf.AccountRateLimit),
	}, func() {}, nil
}
