package harness

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockledger/internal/ledger"
)

// evaluateAssertions runs every assertion against the final ledger and
// returns one message per failure.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return failures
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertStock:
		return h.assertStock(ctx, a)
	case AssertConfirmed:
		return h.assertConfirmed(ctx, a)
	case AssertPending:
		return h.assertPending(ctx, a)
	case AssertEntryCount:
		return h.assertEntryCount(ctx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertStock(ctx context.Context, a Assertion) error {
	sum, err := h.aggregator.Summarize(ctx, h.siteID(a.Site))
	if err != nil {
		return err
	}

	if err := compareDecimal("current", a.Current, sum.Current); err != nil {
		return fmt.Errorf("site %s: %w", a.Site, err)
	}
	if a.PendingInbound != "" {
		if err := compareDecimal("pending_inbound", a.PendingInbound, sum.PendingInbound); err != nil {
			return fmt.Errorf("site %s: %w", a.Site, err)
		}
	}
	return nil
}

func (h *Harness) assertConfirmed(ctx context.Context, a Assertion) error {
	e, err := h.store.ReadEntry(ctx, h.entryID(a.Entry))
	if err != nil {
		return err
	}
	if e.Confirmed != *a.Confirmed {
		return fmt.Errorf("entry %s: expected confirmed=%t, got %t", a.Entry, *a.Confirmed, e.Confirmed)
	}
	return nil
}

func (h *Harness) assertPending(ctx context.Context, a Assertion) error {
	pending, err := h.reconciler.Pending(ctx, h.siteID(a.Site))
	if err != nil {
		return err
	}
	if len(pending) != *a.Count {
		return fmt.Errorf("site %s: expected %d pending, got %d", a.Site, *a.Count, len(pending))
	}
	return nil
}

func (h *Harness) assertEntryCount(ctx context.Context, a Assertion) error {
	entries, err := h.store.ListAll(ctx)
	if err != nil {
		return err
	}

	var flow ledger.Flow
	if a.Flow != "" {
		if flow, err = ledger.ParseFlow(a.Flow); err != nil {
			return err
		}
	}

	n := 0
	for _, e := range entries {
		if a.Flow == "" || e.Flow == flow {
			n++
		}
	}
	if n != *a.Count {
		label := "entries"
		if a.Flow != "" {
			label = a.Flow + " entries"
		}
		return fmt.Errorf("expected %d %s, got %d", *a.Count, label, n)
	}
	return nil
}

func compareDecimal(field, want string, got decimal.Decimal) error {
	w, err := decimal.NewFromString(want)
	if err != nil {
		return fmt.Errorf("%s: bad expected value %q: %w", field, want, err)
	}
	if !w.Equal(got) {
		return fmt.Errorf("expected %s=%s, got %s", field, w, got)
	}
	return nil
}
