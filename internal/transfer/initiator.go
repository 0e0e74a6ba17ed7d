package transfer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/store"
)

// Option configures an Initiator or a Reconciler.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

func defaultOptions() options {
	return options{logger: zap.NewNop()}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Initiator records stock movements at a site.
type Initiator struct {
	store  *store.Store
	logger *zap.Logger
}

// NewInitiator creates an Initiator writing to s.
func NewInitiator(s *store.Store, opts ...Option) *Initiator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Initiator{store: s, logger: o.logger}
}

// Initiate validates m and appends one entry per leg as one atomic batch.
// It returns the new entry ids in leg order.
//
// Nothing is written unless every leg is valid. TRANSFERRED_OUT legs must
// name a registered site other than the source. A missing site is reported
// as a validation error on that leg.
func (i *Initiator) Initiate(ctx context.Context, m Movement) ([]ledger.EntryID, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := i.checkSites(ctx, m); err != nil {
		return nil, err
	}

	ids, err := i.store.AppendBatch(ctx, m.entries())
	if err != nil {
		i.logger.Warn("movement rejected",
			zap.String("site_id", string(m.SiteID)),
			zap.Int("legs", len(m.Legs)),
			zap.Error(err))
		return nil, err
	}

	i.logger.Info("movement recorded",
		zap.String("site_id", string(m.SiteID)),
		zap.String("info_provider_id", m.InfoProviderID),
		zap.Int("legs", len(ids)))
	return ids, nil
}

// Record appends a single entry of any flow except TRANSFERRED_IN. It is how
// purchases (BOUGHT) enter the ledger.
func (i *Initiator) Record(ctx context.Context, site ledger.SiteID, infoProviderID, createdBy string, period ledger.Period, leg Leg) (ledger.EntryID, error) {
	if leg.Flow == ledger.TransferredIn {
		return "", ledger.NewValidationError("flow", "TRANSFERRED_IN entries are only written by reconciliation")
	}
	if leg.Flow != ledger.Bought {
		ids, err := i.Initiate(ctx, Movement{
			SiteID:         site,
			InfoProviderID: infoProviderID,
			CreatedBy:      createdBy,
			Period:         period,
			Legs:           []Leg{leg},
		})
		if err != nil {
			return "", err
		}
		return ids[0], nil
	}

	if _, err := i.store.ReadSite(ctx, site); err != nil {
		if ledger.IsNotFound(err) {
			return "", ledger.NewValidationError("site_id", fmt.Sprintf("site %s is not registered", site))
		}
		return "", err
	}

	id, err := i.store.Append(ctx, ledger.Entry{
		StoreID:        site,
		Flow:           ledger.Bought,
		Quantity:       leg.Quantity,
		UnitPrice:      leg.UnitPrice,
		Period:         period,
		Destination:    leg.Destination,
		InfoProviderID: strings.TrimSpace(infoProviderID),
		CreatedBy:      createdBy,
	})
	if err != nil {
		return "", err
	}

	i.logger.Info("purchase recorded",
		zap.String("site_id", string(site)),
		zap.String("entry_id", string(id)),
		zap.String("quantity", leg.Quantity.String()))
	return id, nil
}

// checkSites verifies the source site and every transfer destination exist
// in the local registry.
func (i *Initiator) checkSites(ctx context.Context, m Movement) error {
	verr := &ledger.ValidationError{}

	known := func(id ledger.SiteID) (bool, error) {
		_, err := i.store.ReadSite(ctx, id)
		switch {
		case err == nil:
			return true, nil
		case ledger.IsNotFound(err):
			return false, nil
		default:
			return false, err
		}
	}

	ok, err := known(m.SiteID)
	if err != nil {
		return err
	}
	if !ok {
		verr.Add("site_id", fmt.Sprintf("site %s is not registered", m.SiteID))
	}

	for idx, leg := range m.Legs {
		if leg.ReferenceStoreID == "" {
			continue
		}
		ok, err := known(leg.ReferenceStoreID)
		if err != nil {
			return err
		}
		if !ok {
			verr.Add(fmt.Sprintf("legs[%d].reference_store_id", idx),
				fmt.Sprintf("site %s is not registered", leg.ReferenceStoreID))
		}
	}

	return verr.OrNil()
}
