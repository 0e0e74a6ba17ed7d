package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/transfer"
)

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "pending <site-id>",
		Short: "List transfers awaiting confirmation at a site",
		Long: `List the unconfirmed transfers addressed to a site, oldest first.

With --watch the list is reprinted whenever the ledger changes, until
interrupted.`,
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
				for entries := range a.reconciler.WatchPending(ctx, site) {
					if err := a.out.Emit(entries, func(w io.Writer) { writeEntries(w, entries) }); err != nil {
						return err
					}
				}
				return nil
			}

			entries, err := a.reconciler.Pending(commandContext(cmd), site)
			if err != nil {
				return a.out.LedgerError(err)
			}
			return a.out.Emit(entries, func(w io.Writer) { writeEntries(w, entries) })
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "reprint on every change until interrupted")
	return cmd
}

// ConfirmResult is the JSON payload of a successful confirm.
type ConfirmResult struct {
	EntryID  ledger.EntryID `json:"entry_id"`
	MirrorID ledger.EntryID `json:"mirror_id"`
}

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "confirm <entry-id>",
		Short: "Confirm receipt of one pending transfer",
		Long: `Confirm receipt of a pending transfer at its destination.

The transfer is marked confirmed and the matching inbound entry is
written in one transaction. Confirming an already confirmed transfer
reports a notice and exits 0.

Example:
  stockledger confirm <entry-id> --provider p-2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			id := ledger.EntryID(args[0])
			mirrorID, err := a.reconciler.Confirm(commandContext(cmd), id, provider)
			if err != nil {
				return a.out.LedgerError(err)
			}
			return a.out.Emit(ConfirmResult{EntryID: id, MirrorID: mirrorID}, func(w io.Writer) {
				fmt.Fprintf(w, "Confirmed %s (inbound entry %s)\n", id, mirrorID)
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "info provider attesting receipt")
	return cmd
}

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	File     string
	Site     string
	Provider string
	Accept   []string
	Decline  []string
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Accept or decline a batch of pending transfers",
		Long: `Apply a batch of decisions to the pending transfers of one site.

Each accepted transfer is confirmed on its own; an item that was
already confirmed elsewhere or is not visible yet is reported and the
batch continues. Declined transfers stay pending.

The batch comes from flags or from a YAML file:

  destination: <site-id>
  info_provider_id: p-2
  decisions:
    - { entry_id: <id>, accept: true }
    - { entry_id: <id>, accept: false }

Examples:
  stockledger reconcile --site <id> --provider p-2 --accept <id> --decline <id>
  stockledger reconcile --file batch.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML batch file")
	cmd.Flags().StringVar(&opts.Site, "site", "", "destination site id")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "info provider attesting receipt")
	cmd.Flags().StringArrayVar(&opts.Accept, "accept", nil, "entry id to confirm (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Decline, "decline", nil, "entry id to leave pending (repeatable)")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	batch, err := opts.batch()
	if err != nil {
		return err
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if batch.CreatedBy == "" {
		batch.CreatedBy = a.operator()
	}

	report, err := a.reconciler.Reconcile(commandContext(cmd), batch)
	if err != nil {
		// Items before the failure are committed; show them before the error.
		if a.out.Format != "json" && len(report.Items) > 0 {
			writeReport(a.out.Writer, report)
		}
		return a.out.LedgerError(err)
	}

	return a.out.Emit(report, func(w io.Writer) { writeReport(w, report) })
}

// batch builds the batch from --file, or from the decision flags.
func (o *ReconcileOptions) batch() (transfer.Batch, error) {
	if o.File != "" {
		data, err := os.ReadFile(o.File)
		if err != nil {
			return transfer.Batch{}, WrapExitError(ExitCommandError, "failed to read batch file", err)
		}
		var b transfer.Batch
		if err := yaml.Unmarshal(data, &b); err != nil {
			return transfer.Batch{}, WrapExitError(ExitCommandError, "failed to parse batch file", err)
		}
		if o.Site != "" {
			b.Destination = ledger.SiteID(o.Site)
		}
		if o.Provider != "" {
			b.InfoProviderID = o.Provider
		}
		return b, nil
	}

	if len(o.Accept)+len(o.Decline) == 0 {
		return transfer.Batch{}, NewExitError(ExitCommandError, "no decisions: use --accept, --decline or --file")
	}

	b := transfer.Batch{
		Destination:    ledger.SiteID(o.Site),
		InfoProviderID: o.Provider,
	}
	for _, id := range o.Accept {
		b.Decisions = append(b.Decisions, transfer.Decision{EntryID: ledger.EntryID(id), Accept: true})
	}
	for _, id := range o.Decline {
		b.Decisions = append(b.Decisions, transfer.Decision{EntryID: ledger.EntryID(id)})
	}
	return b, nil
}

func writeReport(w io.Writer, r transfer.Report) {
	fmt.Fprintf(w, "Reconciliation at %s:\n", r.Destination)
	for _, item := range r.Items {
		fmt.Fprintf(w, "  %s  %s", item.EntryID, item.Outcome)
		if item.MirrorID != "" {
			fmt.Fprintf(w, "  inbound %s", item.MirrorID)
		}
		if item.Notice != "" {
			fmt.Fprintf(w, "  (%s)", item.Notice)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d confirmed, %d declined, %d need attention\n",
		r.Count(transfer.OutcomeConfirmed),
		r.Count(transfer.OutcomeDeclined),
		len(r.Items)-r.Count(transfer.OutcomeConfirmed)-r.Count(transfer.OutcomeDeclined))
}
