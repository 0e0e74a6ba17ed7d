package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/transfer"
)

// MoveOptions holds flags for the move command.
type MoveOptions struct {
	*RootOptions
	Site     string
	Legs     []string
	Provider string
	Period   periodFlags
}

// MoveResult is the JSON payload of a successful move.
type MoveResult struct {
	EntryIDs []ledger.EntryID `json:"entry_ids"`
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "move",
		Short: "Record a multi-leg outbound movement",
		Long: `Record one outbound movement split across several legs.

Each --leg is FLOW:QUANTITY[:TARGET]. For TRANSFERRED_OUT the target is
the destination site id. For EXPORTED and PROCESSED it is a free-text
destination such as a country or a mill.

Every leg is validated before anything is written; one bad leg rejects
the whole movement. Each transfer leg is confirmed separately at its
destination.

Example:
  stockledger move --site <id> --provider p-1 \
    --leg TRANSFERRED_OUT:300:<north-id> \
    --leg TRANSFERRED_OUT:200:<south-id> \
    --leg EXPORTED:100:Togo`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Site, "site", "", "source site id (required)")
	cmd.Flags().StringArrayVar(&opts.Legs, "leg", nil, "leg as FLOW:QUANTITY[:TARGET] (repeatable, required)")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "info provider attesting the movement")
	opts.Period.register(cmd)
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("leg")

	return cmd
}

func runMove(opts *MoveOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	m, err := opts.movement(time.Now())
	if err != nil {
		return out.LedgerError(err)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	m.CreatedBy = a.operator()

	ids, err := a.initiator.Initiate(commandContext(cmd), m)
	if err != nil {
		return a.out.LedgerError(err)
	}

	return a.out.Emit(MoveResult{EntryIDs: ids}, func(w io.Writer) {
		fmt.Fprintf(w, "Recorded movement from %s with %d leg(s):\n", opts.Site, len(ids))
		for i, id := range ids {
			fmt.Fprintf(w, "  %s  %s\n", id, opts.Legs[i])
		}
	})
}

func (o *MoveOptions) movement(now time.Time) (transfer.Movement, error) {
	verr := &ledger.ValidationError{}
	m := transfer.Movement{
		SiteID:         ledger.SiteID(o.Site),
		InfoProviderID: o.Provider,
	}

	for i, raw := range o.Legs {
		leg, err := parseLeg(raw)
		if err != nil {
			verr.Merge(fmt.Sprintf("legs[%d]", i), asValidation(err))
			continue
		}
		m.Legs = append(m.Legs, leg)
	}

	period, err := o.Period.resolve(now)
	if err != nil {
		verr.Merge("", asValidation(err))
	}
	m.Period = period

	if err := verr.OrNil(); err != nil {
		return transfer.Movement{}, err
	}
	return m, nil
}

// parseLeg parses FLOW:QUANTITY[:TARGET].
func parseLeg(raw string) (transfer.Leg, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return transfer.Leg{}, ledger.NewValidationError("leg", fmt.Sprintf("leg %q must be FLOW:QUANTITY[:TARGET]", raw))
	}

	verr := &ledger.ValidationError{}
	var leg transfer.Leg
	var err error
	if leg.Flow, err = parseFlow("flow", parts[0]); err != nil {
		verr.Merge("", asValidation(err))
	}
	if leg.Quantity, err = parseDecimal("quantity", parts[1], true); err != nil {
		verr.Merge("", asValidation(err))
	}

	if len(parts) == 3 {
		target := strings.TrimSpace(parts[2])
		if leg.Flow == ledger.TransferredOut {
			leg.ReferenceStoreID = ledger.SiteID(target)
		} else {
			leg.Destination = target
		}
	}

	if err := verr.OrNil(); err != nil {
		return transfer.Leg{}, err
	}
	return leg, nil
}
