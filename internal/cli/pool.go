package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aastar/faucet/internal/faucet"
	"github.com/aastar/faucet/internal/poolreport"
	"github.com/aastar/faucet/internal/xerrors"
)

func (a *App) poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Seed deterministic test accounts",
	}
	cmd.AddCommand(a.poolInitCmd())
	return cmd
}

func (a *App) poolInitCmd() *cobra.Command {
	var (
		size   int
		outDir string
		pnt    string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create and fund the test account pool",
		Long: `Derives test accounts from keccak256("test-account-{i}"), creates each
one's smart account and funds it with an SBT, PNT and USDT. The run is the
same as the server's init-pool endpoint, signed by --signer-key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			signerRef := a.ref("signer-key")
			s, err := a.openSession(ctx, signerRef)
			if err != nil {
				return err
			}
			defer s.close()
			t, err := s.transactor(ctx, signerRef, "signer-key")
			if err != nil {
				return err
			}

			addrs := faucet.Addresses{
				SBT:         s.optional("SBT"),
				PNT:         s.optional("PNT"),
				USDT:        s.optional("USDT"),
				Factory:     s.optional("SIMPLE_ACCOUNT_FACTORY"),
				PoolFactory: s.optional("POOL_ACCOUNT_FACTORY"),
			}
			backends, err := faucet.BindChain(s.client, t, addrs)
			if err != nil {
				return xerrors.Wrap(err, "bind contracts")
			}

			pool := faucet.PoolOptions{}
			if outDir != "" {
				pool.Sink = poolreport.NewDirSink(outDir)
			}
			svc := faucet.New(backends,
				faucet.WithNetwork(s.catalog.Network),
				faucet.WithPNTAmount(pnt),
				faucet.WithPool(pool),
				faucet.WithLogger(a.lg().With("component", "pool")),
			)

			p := a.printer()
			p.infof("initializing %d pool accounts from %s", svc.PoolSize(size), t.From().Hex())
			rep, err := svc.InitPool(ctx, size)
			if err != nil {
				return err
			}

			if err := p.emit(rep, func(w io.Writer) {
				tw := newTable(w, table.Row{"#", "Owner", "Account", "SBT", "PNT", "USDT", "Error"})
				tw.SetTitle("pool run %s", rep.RunID)
				for _, acct := range rep.Accounts {
					tok := faucet.TokenResults{}
					if acct.Tokens != nil {
						tok = *acct.Tokens
					}
					tw.AppendRow(table.Row{acct.Index, acct.Owner, acct.AAAccount,
						tok.SBT.Success, tok.PNT.Success, tok.USDT.Success, acct.Error})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "ok/failed",
					fmt.Sprintf("%d/%d", rep.Statistics.SuccessfulAccounts, rep.Statistics.FailedAccounts)})
				tw.Render()
			}); err != nil {
				return err
			}
			if rep.ArchivedTo != "" {
				p.okf("report written to %s", rep.ArchivedTo)
			}
			if rep.Statistics.FailedAccounts > 0 {
				p.warnf("%d of %d accounts failed", rep.Statistics.FailedAccounts, rep.Statistics.TotalAccounts)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "number of accounts (default 20, max 50)")
	cmd.Flags().StringVar(&outDir, "out", "", "directory for the JSON pool report")
	cmd.Flags().StringVar(&pnt, "pnt-amount", "100", "whole PNT minted to each account")
	return cmd
}
