package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/store"
	"github.com/roach88/stockledger/internal/watch"
)

// Outcome is the result of one reconciliation decision.
type Outcome string

const (
	// OutcomeConfirmed means the mirror entry was written and the source
	// entry confirmed.
	OutcomeConfirmed Outcome = "CONFIRMED"
	// OutcomeDeclined means the operator declined; the entry stays pending.
	OutcomeDeclined Outcome = "DECLINED"
	// OutcomeAlreadyConfirmed means another device confirmed first.
	OutcomeAlreadyConfirmed Outcome = "ALREADY_CONFIRMED"
	// OutcomeNotFound means the entry is not visible here yet. Try again after sync.
	OutcomeNotFound Outcome = "NOT_FOUND"
	// OutcomeRejected means the entry cannot be confirmed by this destination.
	OutcomeRejected Outcome = "REJECTED"
)

// Decision is the operator's choice for one pending entry.
type Decision struct {
	EntryID ledger.EntryID `json:"entry_id" yaml:"entry_id"`
	Accept  bool           `json:"accept" yaml:"accept"`
}

// Batch is one reconciliation session at a destination site. All accepted
// items are attested by the same info provider.
type Batch struct {
	Destination    ledger.SiteID `json:"destination" yaml:"destination"`
	InfoProviderID string        `json:"info_provider_id" yaml:"info_provider_id"`
	CreatedBy      string        `json:"created_by" yaml:"created_by"`
	Decisions      []Decision    `json:"decisions" yaml:"decisions"`
}

// ItemResult reports what happened to one decision.
type ItemResult struct {
	EntryID  ledger.EntryID `json:"entry_id"`
	Outcome  Outcome        `json:"outcome"`
	MirrorID ledger.EntryID `json:"mirror_id,omitempty"`
	Notice   string         `json:"notice,omitempty"`
}

// Report summarises a reconciliation batch. Items are in decision order and
// stop at the item that aborted the batch, if any.
type Report struct {
	Destination ledger.SiteID `json:"destination"`
	Items       []ItemResult  `json:"items"`
}

// Count returns how many items ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == o {
			n++
		}
	}
	return n
}

// Reconciler confirms inbound transfers at a destination site.
type Reconciler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewReconciler creates a Reconciler over s.
func NewReconciler(s *store.Store, opts ...Option) *Reconciler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Reconciler{store: s, logger: o.logger}
}

// Pending lists the unconfirmed TRANSFERRED_OUT entries addressed to
// destination, oldest first.
func (r *Reconciler) Pending(ctx context.Context, destination ledger.SiteID) ([]ledger.Entry, error) {
	return r.store.ListPendingInbound(ctx, destination)
}

// WatchPending emits the destination's full pending list now and after
// every change that touches the destination.
func (r *Reconciler) WatchPending(ctx context.Context, destination ledger.SiteID) <-chan []ledger.Entry {
	sub := r.store.Hub().Subscribe(watch.TouchesSite(destination))
	return watch.Stream(ctx, sub,
		func(ctx context.Context) ([]ledger.Entry, error) { return r.Pending(ctx, destination) },
		func(err error) {
			r.logger.Error("pending list refresh failed",
				zap.String("site_id", string(destination)),
				zap.Error(err))
		})
}

// Confirm confirms one pending transfer on behalf of its destination
// and returns the id of the mirrored TRANSFERRED_IN entry.
//
// The destination is the transfer's own reference site. Errors:
//   - ValidationError: no info provider, or the entry is not a TRANSFERRED_OUT
//   - ErrNotFound: the entry is not visible locally yet
//   - ErrAlreadyConfirmed: confirmed earlier, no entry written
//   - PersistenceError: storage failed, nothing written
func (r *Reconciler) Confirm(ctx context.Context, entryID ledger.EntryID, infoProviderID string) (ledger.EntryID, error) {
	return r.confirm(ctx, entryID, "", infoProviderID, "")
}

// confirm runs the mirror insert and the compare-and-set in one transaction.
// An empty destination accepts whatever site the transfer is addressed to.
func (r *Reconciler) confirm(ctx context.Context, entryID ledger.EntryID, destination ledger.SiteID, infoProviderID, createdBy string) (ledger.EntryID, error) {
	infoProviderID = strings.TrimSpace(infoProviderID)
	if infoProviderID == "" {
		return "", ledger.NewValidationError("info_provider_id", "info_provider_id is required")
	}

	var mirrorID ledger.EntryID
	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		out, err := tx.Entry(ctx, entryID)
		if err != nil {
			return err
		}
		if destination != "" && out.Flow == ledger.TransferredOut && out.ReferenceStoreID != destination {
			return ledger.NewValidationError("entry_id",
				fmt.Sprintf("entry %s is addressed to %s, not %s", entryID, out.ReferenceStoreID, destination))
		}

		if _, err := tx.MarkConfirmed(ctx, entryID); err != nil {
			return err
		}

		mirror, err := tx.Insert(ctx, ledger.Entry{
			StoreID:          out.ReferenceStoreID,
			Flow:             ledger.TransferredIn,
			Quantity:         out.Quantity,
			UnitPrice:        decimal.Zero,
			Period:           out.Period,
			ReferenceStoreID: out.StoreID,
			InfoProviderID:   infoProviderID,
			ResolvesEntryID:  out.ID,
			CreatedBy:        createdBy,
		})
		if err != nil {
			return err
		}
		mirrorID = mirror.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	r.logger.Info("transfer confirmed",
		zap.String("entry_id", string(entryID)),
		zap.String("mirror_id", string(mirrorID)),
		zap.String("info_provider_id", infoProviderID))
	return mirrorID, nil
}

// Reconcile applies the operator's decisions for one destination.
//
// Each accepted item is confirmed in its own transaction. Items that were
// already confirmed, are not visible yet, or do not belong to the
// destination are reported and skipped. A storage failure stops the batch
// and is returned together with the report so far; running the same batch
// again is safe because confirmed items come back as ALREADY_CONFIRMED.
func (r *Reconciler) Reconcile(ctx context.Context, b Batch) (Report, error) {
	report := Report{Destination: b.Destination, Items: []ItemResult{}}

	verr := &ledger.ValidationError{}
	if b.Destination == "" {
		verr.Add("destination", "destination is required")
	}
	if strings.TrimSpace(b.InfoProviderID) == "" {
		verr.Add("info_provider_id", "info_provider_id is required")
	}
	if err := verr.OrNil(); err != nil {
		return report, err
	}

	for _, d := range b.Decisions {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if !d.Accept {
			report.Items = append(report.Items, ItemResult{
				EntryID: d.EntryID,
				Outcome: OutcomeDeclined,
				Notice:  "left pending",
			})
			continue
		}

		mirrorID, err := r.confirm(ctx, d.EntryID, b.Destination, b.InfoProviderID, b.CreatedBy)
		item := ItemResult{EntryID: d.EntryID}
		switch {
		case err == nil:
			item.Outcome = OutcomeConfirmed
			item.MirrorID = mirrorID
		case ledger.IsAlreadyConfirmed(err):
			item.Outcome = OutcomeAlreadyConfirmed
			item.Notice = "already confirmed on another device"
		case ledger.IsNotFound(err):
			item.Outcome = OutcomeNotFound
			item.Notice = "not visible yet, try again after sync"
		case ledger.IsValidation(err):
			item.Outcome = OutcomeRejected
			item.Notice = err.Error()
		default:
			r.logger.Error("reconciliation aborted",
				zap.String("site_id", string(b.Destination)),
				zap.String("entry_id", string(d.EntryID)),
				zap.Int("completed", len(report.Items)),
				zap.Error(err))
			return report, err
		}

		if item.Outcome != OutcomeConfirmed {
			r.logger.Info("reconciliation notice",
				zap.String("entry_id", string(d.EntryID)),
				zap.String("outcome", string(item.Outcome)),
				zap.String("notice", item.Notice))
		}
		report.Items = append(report.Items, item)
	}

	return report, nil
}
