package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/stock"
)

// NewStockCommand creates the stock command.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "stock <site-id>",
		Short: "Show the stock summary of a site",
		Long: `Show the per-flow totals and current stock of a site.

Transfers towards the site count only once confirmed; unconfirmed ones
are shown separately as pending inbound. With --watch the summary is
reprinted whenever the ledger changes, until interrupted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			site := ledger.SiteID(args[0])
			if watch {
				ctx, stop, err := a.watchLedger(cmd)
				if err != nil {
					return err
				}
				defer stop()
				for sum := range a.aggregator.Watch(ctx, site) {
					if err := a.out.Emit(sum, func(w io.Writer) { writeSummary(w, sum) }); err != nil {
						return err
					}
				}
				return nil
			}

			sum, err := a.aggregator.Summarize(commandContext(cmd), site)
			if err != nil {
				return a.out.LedgerError(err)
			}
			return a.out.Emit(sum, func(w io.Writer) { writeSummary(w, sum) })
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "reprint on every change until interrupted")
	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <site-id>",
		Short:         "List every entry recorded at a site",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.store.ListSiteEntries(commandContext(cmd), ledger.SiteID(args[0]))
			if err != nil {
				return a.out.LedgerError(err)
			}
			return a.out.Emit(entries, func(w io.Writer) { writeEntries(w, entries) })
		},
	}
}

// watchContext is the command context, cancelled on SIGINT or SIGTERM.
func watchContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
}

func writeSummary(w io.Writer, s stock.Summary) {
	fmt.Fprintf(w, "Stock at %s (%d entries)\n", s.Site, s.Entries)
	rows := []struct {
		label string
		value fmt.Stringer
	}{
		{"Bought", s.Bought},
		{"Transferred in", s.TransferredIn},
		{"Sold", s.Sold},
		{"Transferred out", s.TransferredOut},
		{"Exported", s.Exported},
		{"Processed", s.Processed},
		{"Lost", s.Lost},
		{"Current", s.Current},
		{"Pending outbound", s.PendingOutbound},
		{"Pending inbound", s.PendingInbound},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-17s %12s\n", r.label, r.value)
	}
	if s.Negative() {
		fmt.Fprintln(w, "  warning: current stock is negative")
	}
}
