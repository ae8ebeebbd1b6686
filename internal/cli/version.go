package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aastar/faucet/internal/version"
)

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vi := version.Get()
			return a.printer().emit(vi, func(w io.Writer) {
				fmt.Fprintln(w, vi.String())
			})
		},
	}
}
