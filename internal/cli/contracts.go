package cli

import (
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aastar/faucet/internal/contracts"
	"github.com/aastar/faucet/internal/xerrors"
)

func (a *App) contractsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Inspect and export the contract catalog",
	}
	cmd.AddCommand(a.contractsListCmd(), a.contractsGenerateCmd())
	return cmd
}

func (a *App) contractsListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog addresses and deployment metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if category != "" && !slices.Contains(contracts.Categories, category) {
				return xerrors.Newf("unknown category %q (valid: %v)", category, contracts.Categories)
			}
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			meta := cat.Metadata(category)

			p := a.printer()
			if category == "" {
				return p.emit(cat.View(), func(w io.Writer) {
					renderAddresses(w, cat)
					renderMetadata(w, meta)
				})
			}
			return p.emit(meta, func(w io.Writer) { renderMetadata(w, meta) })
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only show one category: core|tokens|testTokens|other")
	return cmd
}

func renderAddresses(w io.Writer, cat *contracts.Catalog) {
	t := newTable(w, table.Row{"Name", "Address", "Group"})
	t.SetTitle("%s (chain %d) v%s", cat.DisplayName, cat.ChainID, cat.Version)
	for _, e := range cat.Published() {
		t.AppendRow(table.Row{e.Name, e.Address, e.Group})
	}
	t.Render()
}

func renderMetadata(w io.Writer, meta []contracts.Metadata) {
	t := newTable(w, table.Row{"Name", "Version", "Category", "Deployed", "Address"})
	for _, m := range meta {
		t.AppendRow(table.Row{m.Name, m.Version, m.Category, m.DeployedAt, m.Address})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(meta)})
	t.Render()
}

func (a *App) contractsGenerateCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the browser contracts.js module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			sink, err := openSink(a.stdout, out)
			if err != nil {
				return err
			}
			defer func() { _ = sink.close() }()

			if err := cat.Render(sink.writer, a.now()); err != nil {
				return err
			}
			if out != "" {
				p := a.printer()
				p.okf("wrote %s (%d contracts, catalog v%s)", out, len(cat.Published()), cat.Version)
			}
			return sink.close()
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to a file (default stdout)")
	return cmd
}
