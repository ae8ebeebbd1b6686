package main

import (
	"context"
	"math/big"
	"time"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/faucethttp"
	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/metrics"
)

// lowBalance is the signer balance below which a warning is logged.
var lowBalance = new(big.Int).Div(chain.Ether, big.NewInt(10))

// monitorSigner publishes the signer balance and limiter key counts until ctx ends.
func monitorSigner(ctx context.Context, L log.Logger, fs *faucetSetup, m *metrics.ServerMetrics, lim faucethttp.Limiters, every time.Duration) {
	tick := func() {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		bal, err := fs.transactor.Balance(cctx)
		if err != nil {
			L.Warn(ctx, "signer balance check failed", "error", err)
		} else {
			f, _ := new(big.Float).Quo(new(big.Float).SetInt(bal), new(big.Float).SetInt(chain.Ether)).Float64()
			m.SetSignerBalance(f)
			if bal.Cmp(lowBalance) < 0 {
				L.Warn(ctx, "faucet signer balance is low",
					"address", fs.transactor.From().Hex(),
					"balance_eth", chain.FormatEther(bal),
				)
			}
		}
		for name, l := range map[string]any{"mint": lim.Mint, "usdt": lim.USDT, "account": lim.Account} {
			if c, ok := l.(interface{ Len() int }); ok {
				m.SetRateLimitKeys(name, c.Len())
			}
		}
	}

	tick()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}
