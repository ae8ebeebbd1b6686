package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aastar/faucet/internal/chain"
)

type ownerReport struct {
	Token    string `json:"token"`
	Owner    string `json:"owner"`
	Expected string `json:"expected,omitempty"`
	Match    *bool  `json:"match,omitempty"`
}

func (a *App) gtokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gtoken",
		Short: "GToken administration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "owner",
		Short: "Show the GToken owner and compare it with --owner-key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ownerRef := a.ref("owner-key")
			s, err := a.openSession(ctx, ownerRef)
			if err != nil {
				return err
			}
			defer s.close()

			addr, err := s.address("GTOKEN")
			if err != nil {
				return err
			}
			gt, err := chain.NewToken("gtoken", addr, s.client)
			if err != nil {
				return err
			}
			owner, err := gt.Owner(ctx)
			if err != nil {
				return err
			}

			rep := ownerReport{Token: addr.Hex(), Owner: owner.Hex()}
			if ownerRef != "" {
				signer, err := s.resolver.Signer(ctx, ownerRef)
				if err != nil {
					return err
				}
				match := signer.Address() == owner
				rep.Expected, rep.Match = signer.Address().Hex(), &match
			}

			p := a.printer()
			if err := p.emit(rep, func(w io.Writer) {
				t := newTable(w, table.Row{"GToken", "Owner"})
				t.AppendRow(table.Row{rep.Token, rep.Owner})
				t.Render()
			}); err != nil {
				return err
			}
			switch {
			case rep.Match == nil:
			case *rep.Match:
				p.okf("--owner-key controls the GToken owner")
			default:
				p.failf("--owner-key is %s, not the GToken owner", rep.Expected)
			}
			return nil
		},
	})
	return cmd
}
