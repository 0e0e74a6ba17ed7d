// Package stock derives current stock per site from the ledger.
//
// Stock is never stored. Every figure here is recomputed from the site's
// full entry history, on demand or after each change notice, so there is no
// running total to drift out of step with the rows.
package stock

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockledger/internal/ledger"
)

// Summary is the per-flow breakdown of a site's ledger.
//
//	Current = Bought + TransferredIn - Sold - TransferredOut - Exported - Processed - Lost
//
// PendingOutbound and PendingInbound are informational. PendingOutbound is
// already inside TransferredOut; PendingInbound is never counted until the
// destination confirms it.
type Summary struct {
	Site            ledger.SiteID   `json:"site"`
	Bought          decimal.Decimal `json:"bought"`
	Sold            decimal.Decimal `json:"sold"`
	TransferredOut  decimal.Decimal `json:"transferred_out"`
	TransferredIn   decimal.Decimal `json:"transferred_in"`
	Exported        decimal.Decimal `json:"exported"`
	Processed       decimal.Decimal `json:"processed"`
	Lost            decimal.Decimal `json:"lost"`
	PendingOutbound decimal.Decimal `json:"pending_outbound"`
	PendingInbound  decimal.Decimal `json:"pending_inbound"`
	Current         decimal.Decimal `json:"current"`
	Entries         int             `json:"entries"`
}

// Negative reports whether the site shows more goods leaving than arriving.
// Out-of-order sync makes this possible, so it is flagged rather than rejected.
func (s Summary) Negative() bool {
	return s.Current.IsNegative()
}

// Compute folds entries into a Summary for site.
//
// Entries recorded at site contribute to the flow totals. Unconfirmed
// TRANSFERRED_OUT entries recorded elsewhere and addressed to site count as
// PendingInbound. Everything else is ignored, so callers may pass a superset.
func Compute(site ledger.SiteID, entries []ledger.Entry) Summary {
	sum := Summary{Site: site}

	for _, e := range entries {
		if e.StoreID != site {
			if e.Pending() && e.ReferenceStoreID == site {
				sum.PendingInbound = sum.PendingInbound.Add(e.Quantity)
			}
			continue
		}

		sum.Entries++
		switch e.Flow {
		case ledger.Bought:
			sum.Bought = sum.Bought.Add(e.Quantity)
		case ledger.Sold:
			sum.Sold = sum.Sold.Add(e.Quantity)
		case ledger.TransferredOut:
			sum.TransferredOut = sum.TransferredOut.Add(e.Quantity)
			if !e.Confirmed {
				sum.PendingOutbound = sum.PendingOutbound.Add(e.Quantity)
			}
		case ledger.TransferredIn:
			sum.TransferredIn = sum.TransferredIn.Add(e.Quantity)
		case ledger.Exported:
			sum.Exported = sum.Exported.Add(e.Quantity)
		case ledger.Processed:
			sum.Processed = sum.Processed.Add(e.Quantity)
		case ledger.Lost:
			sum.Lost = sum.Lost.Add(e.Quantity)
		default:
			panic(fmt.Sprintf("stock: entry %s has invalid flow %d", e.ID, uint8(e.Flow)))
		}
	}

	sum.Current = sum.Bought.Add(sum.TransferredIn).
		Sub(sum.Sold).
		Sub(sum.TransferredOut).
		Sub(sum.Exported).
		Sub(sum.Processed).
		Sub(sum.Lost)

	return sum
}

// Equal reports whether two summaries carry the same figures.
// decimal.Decimal values with different exponents compare equal here.
func (s Summary) Equal(o Summary) bool {
	return s.Site == o.Site &&
		s.Entries == o.Entries &&
		s.Bought.Equal(o.Bought) &&
		s.Sold.Equal(o.Sold) &&
		s.TransferredOut.Equal(o.TransferredOut) &&
		s.TransferredIn.Equal(o.TransferredIn) &&
		s.Exported.Equal(o.Exported) &&
		s.Processed.Equal(o.Processed) &&
		s.Lost.Equal(o.Lost) &&
		s.PendingOutbound.Equal(o.PendingOutbound) &&
		s.PendingInbound.Equal(o.PendingInbound) &&
		s.Current.Equal(o.Current)
}
