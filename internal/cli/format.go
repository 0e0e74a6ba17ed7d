package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/stockledger/internal/ledger"
)

// dateLayout is the format of --period-start and --period-end.
const dateLayout = "2006-01-02"

// periodFlags are shared by the commands that write entries.
type periodFlags struct {
	Start string
	End   string
}

func (p *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.Start, "period-start", "", "first day covered, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&p.End, "period-end", "", "last day covered, YYYY-MM-DD (default period-start)")
}

// resolve parses the flags. Unset start means the UTC day of now; unset end
// means start.
func (p periodFlags) resolve(now time.Time) (ledger.Period, error) {
	verr := &ledger.ValidationError{}

	start := now.UTC().Truncate(24 * time.Hour)
	if p.Start != "" {
		t, err := time.Parse(dateLayout, p.Start)
		if err != nil {
			verr.Add("period.start", "period start must be a YYYY-MM-DD date")
		}
		start = t
	}

	end := start
	if p.End != "" {
		t, err := time.Parse(dateLayout, p.End)
		if err != nil {
			verr.Add("period.end", "period end must be a YYYY-MM-DD date")
		}
		end = t
	}

	if err := verr.OrNil(); err != nil {
		return ledger.Period{}, err
	}
	return ledger.Period{Start: start, End: end}, nil
}

// parseDecimal parses a decimal flag value. An empty optional value is zero.
func parseDecimal(field, value string, required bool) (decimal.Decimal, error) {
	if value == "" && !required {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, ledger.NewValidationError(field, fmt.Sprintf("%s must be a decimal number", field))
	}
	return d, nil
}

// parseFlow parses a flow flag value, case-insensitively.
func parseFlow(field, value string) (ledger.Flow, error) {
	f, err := ledger.ParseFlow(strings.ToUpper(strings.TrimSpace(value)))
	if err != nil {
		return f, ledger.NewValidationError(field, err.Error())
	}
	return f, nil
}

// asValidation returns err as a ValidationError, wrapping foreign errors
// as a form-level problem.
func asValidation(err error) *ledger.ValidationError {
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return ledger.NewValidationError("", err.Error())
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// writeEntries renders entries one per line, oldest first.
func writeEntries(w io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-15s %12s  %s\n", e.ID, e.Flow, e.Quantity.String(), describe(e))
	}
}

// describe summarises where an entry's quantity went or came from.
func describe(e ledger.Entry) string {
	var parts []string
	switch {
	case e.Flow == ledger.TransferredOut:
		parts = append(parts, "to "+string(e.ReferenceStoreID))
		if e.Confirmed {
			parts = append(parts, "confirmed")
		} else {
			parts = append(parts, "pending")
		}
	case e.Flow == ledger.TransferredIn:
		parts = append(parts, "from "+string(e.ReferenceStoreID), "resolves "+string(e.ResolvesEntryID))
	case e.ReferenceStoreID != "":
		parts = append(parts, "to "+string(e.ReferenceStoreID))
	}
	if e.Destination != "" {
		parts = append(parts, "destination "+e.Destination)
	}
	parts = append(parts, e.Period.Start.Format(dateLayout))
	return strings.Join(parts, ", ")
}
