package cli

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/community"
	"github.com/aastar/faucet/internal/xerrors"
)

func (a *App) communityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "community",
		Short: "Stake for, register and inspect communities",
	}
	cmd.AddCommand(
		a.communityStakeCmd(),
		a.communityRegisterCmd(),
		a.communityRegisterFreshCmd(),
		a.communityInspectCmd(),
	)
	return cmd
}

// loadDefinitions reads the community file and resolves the stake amount,
// preferring an explicit --amount.
func loadDefinitions(path, amount string) (*community.File, *big.Int, error) {
	if path == "" {
		return nil, nil, xerrors.New("--file is required")
	}
	f, err := community.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if amount != "" {
		f.Stake = amount
	}
	stake, err := f.StakeAmount()
	if err != nil {
		return nil, nil, err
	}
	return f, stake, nil
}

func definitionRefs(f *community.File, extra ...string) []string {
	refs := append([]string(nil), extra...)
	for _, d := range f.Communities {
		refs = append(refs, d.Key)
	}
	return refs
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func ether(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return chain.FormatEther(v)
}

type stakeRow struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Before      string   `json:"stakedBefore"`
	After       string   `json:"stakedAfter"`
	Transferred string   `json:"transferred,omitempty"`
	Staked      string   `json:"staked,omitempty"`
	Skipped     bool     `json:"skipped"`
	TxHashes    []string `json:"txHashes,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (a *App) communityStakeCmd() *cobra.Command {
	var file, amount string
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Top each community up to the stake amount of stGToken",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, stake, err := loadDefinitions(file, amount)
			if err != nil {
				return err
			}
			sourceRef := a.ref("source-key")
			s, err := a.openSession(ctx, definitionRefs(f, sourceRef)...)
			if err != nil {
				return err
			}
			defer s.close()

			var source *chain.Transactor
			if sourceRef != "" {
				if source, err = s.transactor(ctx, sourceRef, "source-key"); err != nil {
					return err
				}
			}
			m, err := s.manager(source, a)
			if err != nil {
				return err
			}

			results := m.Stake(ctx, f.Communities, stake)
			rows := make([]stakeRow, 0, len(results))
			failed := 0
			for _, r := range results {
				row := stakeRow{
					Name:     r.Name,
					Address:  r.Address.Hex(),
					Before:   ether(r.Before),
					After:    ether(r.After),
					Skipped:  r.Skipped,
					TxHashes: r.TxHashes,
					Error:    errString(r.Err),
				}
				if r.Transferred != nil {
					row.Transferred = chain.FormatEther(r.Transferred)
				}
				if r.Staked != nil {
					row.Staked = chain.FormatEther(r.Staked)
				}
				if r.Err != nil {
					failed++
				}
				rows = append(rows, row)
			}

			p := a.printer()
			if err := p.emit(rows, func(w io.Writer) {
				t := newTable(w, table.Row{"Community", "Address", "Before", "After", "Status"})
				for _, r := range rows {
					status := "staked " + r.Staked
					switch {
					case r.Error != "":
						status = r.Error
					case r.Skipped:
						status = "already staked"
					}
					t.AppendRow(table.Row{r.Name, r.Address, r.Before, r.After, status})
				}
				t.Render()
			}); err != nil {
				return err
			}
			if failed > 0 {
				return xerrors.Newf("%d of %d communities failed to stake", failed, len(rows))
			}
			p.okf("%d communities hold at least %s stGT", len(rows), chain.FormatEther(stake))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "community definitions YAML")
	cmd.Flags().StringVar(&amount, "amount", "", "stake per community in GT (default: file stake or "+community.DefaultStake+")")
	return cmd
}

type registerRow struct {
	Name              string `json:"name"`
	Address           string `json:"address"`
	Available         string `json:"availableStake"`
	AlreadyRegistered bool   `json:"alreadyRegistered"`
	EnabledMint       bool   `json:"enabledPermissionlessMint,omitempty"`
	TxHash            string `json:"txHash,omitempty"`
	BlockNumber       uint64 `json:"blockNumber,omitempty"`
	Error             string `json:"error,omitempty"`
}

func (a *App) communityRegisterCmd() *cobra.Command {
	var file, amount string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register each community in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, stake, err := loadDefinitions(file, amount)
			if err != nil {
				return err
			}
			s, err := a.openSession(ctx, definitionRefs(f)...)
			if err != nil {
				return err
			}
			defer s.close()
			m, err := s.manager(nil, a)
			if err != nil {
				return err
			}

			results := m.Register(ctx, f.Communities, stake)
			rows := make([]registerRow, 0, len(results))
			failed := 0
			for _, r := range results {
				rows = append(rows, registerRow{
					Name:              r.Name,
					Address:           r.Address.Hex(),
					Available:         ether(r.Available),
					AlreadyRegistered: r.AlreadyRegistered,
					EnabledMint:       r.EnabledMint,
					TxHash:            r.TxHash,
					BlockNumber:       r.BlockNumber,
					Error:             errString(r.Err),
				})
				if r.Err != nil {
					failed++
				}
			}

			p := a.printer()
			if err := p.emit(rows, func(w io.Writer) {
				t := newTable(w, table.Row{"Community", "Address", "Available", "Status", "Tx"})
				for _, r := range rows {
					status := "registered"
					switch {
					case r.Error != "":
						status = r.Error
					case r.EnabledMint:
						status = "already registered, permissionless mint enabled"
					case r.AlreadyRegistered:
						status = "already registered"
					}
					t.AppendRow(table.Row{r.Name, r.Address, r.Available, status, r.TxHash})
				}
				t.Render()
			}); err != nil {
				return err
			}
			if failed > 0 {
				return xerrors.Newf("%d of %d communities failed to register", failed, len(rows))
			}
			p.okf("%d communities registered", len(rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "community definitions YAML")
	cmd.Flags().StringVar(&amount, "amount", "", "registration stake in GT (default: file stake or "+community.DefaultStake+")")
	return cmd
}

type freshReport struct {
	Address    string   `json:"address"`
	Name       string   `json:"name"`
	Active     bool     `json:"isActive"`
	Mint       bool     `json:"allowPermissionlessMint"`
	KeyFile    string   `json:"keyFile,omitempty"`
	TxHashes   []string `json:"txHashes"`
	Incomplete string   `json:"error,omitempty"`
}

func (a *App) communityRegisterFreshCmd() *cobra.Command {
	var (
		def      community.Definition
		gas      string
		stake    string
		keyOut   string
		printKey bool
	)
	cmd := &cobra.Command{
		Use:   "register-fresh",
		Short: "Create a new community wallet, fund it, stake and register it",
		Long: `Creates a random wallet, sends it gas and stake GT from --source-key,
approves and stakes the GT and registers the community profile.

The new private key is written to --key-out (mode 0600). Without --key-out
it is printed only when --print-key is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(def.Name) == "" {
				return xerrors.New("--name is required")
			}
			if keyOut == "" && !printKey {
				return xerrors.New("--key-out is required (or pass --print-key to show the key on stdout)")
			}
			gasWei, err := chain.ParseUnits(gas, 18)
			if err != nil {
				return xerrors.Wrap(err, "--gas")
			}
			stakeWei, err := chain.ParseUnits(stake, 18)
			if err != nil {
				return xerrors.Wrap(err, "--stake")
			}

			sourceRef := a.ref("source-key")
			s, err := a.openSession(ctx, sourceRef)
			if err != nil {
				return err
			}
			defer s.close()
			source, err := s.transactor(ctx, sourceRef, "source-key")
			if err != nil {
				return err
			}
			m, err := s.manager(source, a)
			if err != nil {
				return err
			}

			p := a.printer()
			res, runErr := m.RegisterFresh(ctx, def, gasWei, stakeWei)
			if res == nil {
				return runErr
			}
			// the key is saved even on failure so funds already sent are recoverable
			rep := freshReport{
				Address:    res.Address.Hex(),
				Name:       res.Profile.Name,
				Active:     res.Profile.IsActive,
				Mint:       res.Profile.AllowPermissionlessMint,
				TxHashes:   res.TxHashes,
				Incomplete: errString(runErr),
			}
			if keyOut != "" {
				if err := os.WriteFile(keyOut, []byte("0x"+res.PrivateKey+"\n"), 0o600); err != nil {
					p.failf("could not save key for %s: %v", rep.Address, err)
					return xerrors.Wrapf(err, "write %s", keyOut)
				}
				rep.KeyFile = keyOut
			}

			if err := p.emit(rep, func(w io.Writer) {
				t := newTable(w, table.Row{"Field", "Value"})
				t.AppendRow(table.Row{"Address", rep.Address})
				t.AppendRow(table.Row{"Name", rep.Name})
				t.AppendRow(table.Row{"Active", rep.Active})
				t.AppendRow(table.Row{"Permissionless mint", rep.Mint})
				for i, h := range rep.TxHashes {
					t.AppendRow(table.Row{fmt.Sprintf("Tx %d", i+1), h})
				}
				t.Render()
			}); err != nil {
				return err
			}
			if keyOut != "" {
				p.okf("private key saved to %s", keyOut)
			} else {
				p.warnf("store this key now, it is not saved anywhere: 0x%s", res.PrivateKey)
			}
			if runErr != nil {
				return runErr
			}
			p.okf("community %s registered at %s", rep.Name, rep.Address)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&def.Name, "name", "", "community name")
	f.StringVar(&def.ENS, "ens", "", "ENS name")
	f.StringVar(&def.Description, "description", "", "profile description")
	f.StringVar(&def.Website, "website", "", "website URL")
	f.StringVar(&def.Logo, "logo", "", "logo URI")
	f.StringVar(&def.Twitter, "twitter", "", "twitter handle")
	f.StringVar(&def.GitHub, "github", "", "github organization")
	f.StringVar(&def.Telegram, "telegram", "", "telegram group")
	f.StringVar(&gas, "gas", "0.01", "ETH sent to the new wallet for gas")
	f.StringVar(&stake, "stake", community.DefaultStake, "GT transferred, staked and locked on registration")
	f.StringVar(&keyOut, "key-out", "", "file to write the new private key to (mode 0600)")
	f.BoolVar(&printKey, "print-key", false, "print the new private key instead of writing it to a file")
	return cmd
}

type inspectReport struct {
	Address    string         `json:"address"`
	Registered bool           `json:"registered"`
	Profile    *profileReport `json:"profile,omitempty"`
}

type profileReport struct {
	Name                    string   `json:"name"`
	ENSName                 string   `json:"ensName,omitempty"`
	Description             string   `json:"description,omitempty"`
	Website                 string   `json:"website,omitempty"`
	Logo                    string   `json:"logoURI,omitempty"`
	Twitter                 string   `json:"twitterHandle,omitempty"`
	GitHub                  string   `json:"githubOrg,omitempty"`
	Telegram                string   `json:"telegramGroup,omitempty"`
	SupportedSBTs           []string `json:"supportedSBTs"`
	RegisteredAt            string   `json:"registeredAt"`
	IsActive                bool     `json:"isActive"`
	MemberCount             string   `json:"memberCount"`
	AllowPermissionlessMint bool     `json:"allowPermissionlessMint"`
}

func newProfileReport(p *chain.CommunityProfile) *profileReport {
	r := &profileReport{
		Name:                    p.Name,
		ENSName:                 p.EnsName,
		Description:             p.Description,
		Website:                 p.Website,
		Logo:                    p.LogoURI,
		Twitter:                 p.TwitterHandle,
		GitHub:                  p.GithubOrg,
		Telegram:                p.TelegramGroup,
		SupportedSBTs:           make([]string, 0, len(p.SupportedSBTs)),
		IsActive:                p.IsActive,
		AllowPermissionlessMint: p.AllowPermissionlessMint,
		MemberCount:             "0",
	}
	for _, a := range p.SupportedSBTs {
		r.SupportedSBTs = append(r.SupportedSBTs, a.Hex())
	}
	if p.RegisteredAt != nil && p.RegisteredAt.IsInt64() {
		r.RegisteredAt = time.Unix(p.RegisteredAt.Int64(), 0).UTC().Format(time.RFC3339)
	}
	if p.MemberCount != nil {
		r.MemberCount = p.MemberCount.String()
	}
	return r
}

func (a *App) communityInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <address>",
		Short: "Show whether an address is a registered community and its profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !common.IsHexAddress(args[0]) {
				return xerrors.Newf("invalid address %q", args[0])
			}
			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()
			m, err := s.manager(nil, a)
			if err != nil {
				return err
			}

			in, err := m.Inspect(ctx, common.HexToAddress(args[0]))
			if err != nil {
				return err
			}
			rep := inspectReport{Address: in.Address.Hex(), Registered: in.Registered}
			if in.Profile != nil {
				rep.Profile = newProfileReport(in.Profile)
			}

			p := a.printer()
			return p.emit(rep, func(w io.Writer) {
				if rep.Profile == nil {
					p.warnf("%s is not a registered community", rep.Address)
					return
				}
				pr := rep.Profile
				t := newTable(w, table.Row{"Field", "Value"})
				t.SetTitle("%s", rep.Address)
				t.AppendRows([]table.Row{
					{"Name", pr.Name},
					{"ENS", pr.ENSName},
					{"Description", pr.Description},
					{"Website", pr.Website},
					{"Logo", pr.Logo},
					{"Twitter", pr.Twitter},
					{"GitHub", pr.GitHub},
					{"Telegram", pr.Telegram},
					{"Supported SBTs", strings.Join(pr.SupportedSBTs, "\n")},
					{"Registered at", pr.RegisteredAt},
					{"Active", pr.IsActive},
					{"Members", pr.MemberCount},
					{"Permissionless mint", pr.AllowPermissionlessMint},
				})
				t.Render()
			})
		},
	}
}
