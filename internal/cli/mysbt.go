package cli

import (
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/xerrors"
)

type membershipRow struct {
	Community string `json:"community"`
	JoinedAt  string `json:"joinedAt"`
	Active    bool   `json:"isActive"`
	Metadata  string `json:"metadata"`
}

type mintReport struct {
	Holder        string          `json:"holder"`
	TokenID       string          `json:"tokenId"`
	AlreadyHolder bool            `json:"alreadyHolder"`
	Community     string          `json:"community,omitempty"`
	TxHashes      []string        `json:"txHashes,omitempty"`
	BlockNumber   uint64          `json:"blockNumber,omitempty"`
	Memberships   []membershipRow `json:"memberships"`
}

func unixTime(v interface{ Int64() int64 }) string {
	return time.Unix(v.Int64(), 0).UTC().Format(time.RFC3339)
}

func newMembershipRows(ms []chain.Membership) []membershipRow {
	out := make([]membershipRow, 0, len(ms))
	for _, m := range ms {
		row := membershipRow{Community: m.Community.Hex(), Active: m.IsActive, Metadata: m.Metadata}
		if m.JoinedAt != nil {
			row.JoinedAt = unixTime(m.JoinedAt)
		}
		out = append(out, row)
	}
	return out
}

func (a *App) mysbtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mysbt",
		Short: "MySBT membership tokens",
	}
	cmd.AddCommand(a.mysbtMintCmd())
	return cmd
}

func (a *App) mysbtMintCmd() *cobra.Command {
	var communityAddr, metadata string
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a MySBT for the --test-key wallet into a community",
		Long: `Permissionless user mint. A wallet that already holds a MySBT gets its
memberships listed and nothing is sent. Otherwise the community must be
active with permissionless mint enabled; 1 GT is approved to MySBT and
userMint is called.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			testRef := a.ref("test-key")
			s, err := a.openSession(ctx, testRef)
			if err != nil {
				return err
			}
			defer s.close()

			var target common.Address
			switch {
			case communityAddr == "":
				if target, err = s.address("DEFAULT_COMMUNITY"); err != nil {
					return xerrors.Wrap(err, "--community not set")
				}
			case common.IsHexAddress(communityAddr):
				target = common.HexToAddress(communityAddr)
			default:
				return xerrors.Newf("invalid --community address %q", communityAddr)
			}

			t, err := s.transactor(ctx, testRef, "test-key")
			if err != nil {
				return err
			}
			m, err := s.manager(nil, a)
			if err != nil {
				return err
			}

			res, err := m.MintMembership(ctx, t, target, metadata)
			if err != nil {
				return err
			}
			rep := mintReport{
				Holder:        res.Holder.Hex(),
				AlreadyHolder: res.AlreadyHolder,
				Community:     res.Community,
				TxHashes:      res.TxHashes,
				BlockNumber:   res.BlockNumber,
				Memberships:   newMembershipRows(res.Memberships),
			}
			if res.TokenID != nil {
				rep.TokenID = res.TokenID.String()
			}

			p := a.printer()
			if rep.AlreadyHolder {
				p.warnf("%s already holds MySBT #%s, nothing minted", rep.Holder, rep.TokenID)
			} else {
				p.okf("minted MySBT #%s for %s into %s (block %d)", rep.TokenID, rep.Holder, rep.Community, rep.BlockNumber)
			}
			return p.emit(rep, func(w io.Writer) {
				t := newTable(w, table.Row{"Community", "Joined", "Active", "Metadata"})
				t.SetTitle("MySBT #%s memberships", rep.TokenID)
				for _, m := range rep.Memberships {
					t.AppendRow(table.Row{m.Community, m.JoinedAt, m.Active, m.Metadata})
				}
				t.Render()
			})
		},
	}
	cmd.Flags().StringVar(&communityAddr, "community", "", "community address (default: catalog DEFAULT_COMMUNITY)")
	cmd.Flags().StringVar(&metadata, "metadata", "", "membership metadata JSON (default: generated test metadata)")
	return cmd
}
