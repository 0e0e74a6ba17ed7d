package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/transfer"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Site        string
	Flow        string
	Quantity    string
	UnitPrice   string
	To          string
	Destination string
	Provider    string
	Period      periodFlags
}

// RecordResult is the JSON payload of a successful record.
type RecordResult struct {
	EntryID ledger.EntryID `json:"entry_id"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a single stock movement",
		Long: `Record one stock movement at a site.

Purchases are written directly. Outbound flows are recorded as a
one-leg movement. Inbound transfers cannot be recorded by hand; they
are created when the destination confirms.

Examples:
  stockledger record --site <id> --flow BOUGHT --quantity 1000 --price 12.5 --provider p-1
  stockledger record --site <id> --flow TRANSFERRED_OUT --quantity 400 --to <site-id> --provider p-1
  stockledger record --site <id> --flow EXPORTED --quantity 50 --destination "Togo" --provider p-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Site, "site", "", "site id recording the movement (required)")
	cmd.Flags().StringVar(&opts.Flow, "flow", "", "flow: BOUGHT, SOLD, TRANSFERRED_OUT, EXPORTED, PROCESSED, LOST (required)")
	cmd.Flags().StringVar(&opts.Quantity, "quantity", "", "quantity moved (required)")
	cmd.Flags().StringVar(&opts.UnitPrice, "price", "", "unit price (default 0)")
	cmd.Flags().StringVar(&opts.To, "to", "", "counterparty site id")
	cmd.Flags().StringVar(&opts.Destination, "destination", "", "free-text destination")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "info provider attesting the movement")
	opts.Period.register(cmd)
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("flow")
	_ = cmd.MarkFlagRequired("quantity")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	leg, period, err := opts.parse(time.Now())
	if err != nil {
		return out.LedgerError(err)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.initiator.Record(commandContext(cmd), ledger.SiteID(opts.Site), opts.Provider, a.operator(), period, leg)
	if err != nil {
		return a.out.LedgerError(err)
	}

	return a.out.Emit(RecordResult{EntryID: id}, func(w io.Writer) {
		fmt.Fprintf(w, "Recorded %s %s at %s: %s\n", leg.Flow, leg.Quantity, opts.Site, id)
	})
}

func (o *RecordOptions) parse(now time.Time) (transfer.Leg, ledger.Period, error) {
	verr := &ledger.ValidationError{}
	leg := transfer.Leg{
		ReferenceStoreID: ledger.SiteID(o.To),
		Destination:      o.Destination,
	}

	var err error
	if leg.Flow, err = parseFlow("flow", o.Flow); err != nil {
		verr.Merge("", asValidation(err))
	}
	if leg.Quantity, err = parseDecimal("quantity", o.Quantity, true); err != nil {
		verr.Merge("", asValidation(err))
	}
	if leg.UnitPrice, err = parseDecimal("unit_price", o.UnitPrice, false); err != nil {
		verr.Merge("", asValidation(err))
	}
	period, err := o.Period.resolve(now)
	if err != nil {
		verr.Merge("", asValidation(err))
	}

	if err := verr.OrNil(); err != nil {
		return transfer.Leg{}, ledger.Period{}, err
	}
	return leg, period, nil
}
