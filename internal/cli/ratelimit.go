package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aastar/faucet/internal/ratelimit"
)

type rateLimitShow struct {
	Key       string      `json:"key"`
	Limit     string      `json:"limit"`
	Used      int         `json:"used"`
	Remaining int         `json:"remaining"`
	Stamps    []time.Time `json:"admitted"`
	// ResetsAt is when the oldest live stamp leaves the window.
	ResetsAt *time.Time `json:"resetsAt,omitempty"`
}

func (a *App) ratelimitCmd() *cobra.Command {
	var (
		window time.Duration
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "ratelimit",
		Aliases: []string{"rate-limit"},
		Short:   "Inspect and reset quotas in the shared redis store",
		Long: `Keys are "<purpose>-<address>" exactly as the server builds them,
for example sbt-0xAbC..., pnt-0x..., usdt-0x..., account-0x.... Addresses are
case-sensitive.`,
	}
	cmd.PersistentFlags().DurationVar(&window, "window", time.Hour, "quota window the server uses")
	cmd.PersistentFlags().IntVar(&limit, "limit", 2, "quota the server uses for this key")

	open := func(ctx context.Context) (ratelimit.Limiter, func() error, error) {
		return a.newLimiter(ctx, a.ref("redis-addr"), a.v.GetString("redis-prefix"), window, limit)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Show admitted requests still inside the window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			live, err := l.Live(ctx, args[0])
			if err != nil {
				return err
			}
			max, win := l.Limits()
			rep := rateLimitShow{
				Key:       args[0],
				Limit:     ratelimit.Describe(max, win),
				Used:      len(live),
				Remaining: max - len(live),
				Stamps:    live,
			}
			if rep.Remaining < 0 {
				rep.Remaining = 0
			}
			if rep.Stamps == nil {
				rep.Stamps = []time.Time{}
			}
			if len(live) > 0 {
				at := live[0].Add(win).UTC()
				rep.ResetsAt = &at
			}

			return a.printer().emit(rep, func(w io.Writer) {
				t := newTable(w, table.Row{"#", "Admitted at", "Expires at"})
				t.SetTitle("%s: %d/%d used (%s)", rep.Key, rep.Used, max, rep.Limit)
				for i, ts := range live {
					t.AppendRow(table.Row{i + 1, ts.UTC().Format(time.RFC3339), ts.Add(win).UTC().Format(time.RFC3339)})
				}
				t.Render()
			})
		},
	})

	var yes bool
	reset := &cobra.Command{
		Use:   "reset <key>",
		Short: "Forget all admitted requests for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset requires --yes")
			}
			ctx := cmd.Context()
			l, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			live, err := l.Live(ctx, args[0])
			if err != nil {
				return err
			}
			if err := l.Reset(ctx, args[0]); err != nil {
				return err
			}
			a.lg().Info(ctx, "rate limit reset", "key", args[0], "cleared", len(live))

			p := a.printer()
			if p.format == formatJSON {
				return writeJSON(p.out, map[string]any{"key": args[0], "cleared": len(live)})
			}
			p.okf("cleared %d admitted request(s) for %s", len(live), args[0])
			return nil
		},
	}
	reset.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	cmd.AddCommand(reset)
	return cmd
}
