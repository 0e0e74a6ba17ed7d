package stock

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/watch"
)

// Source is the read side of the ledger store the aggregator needs.
type Source interface {
	ListSiteEntries(ctx context.Context, site ledger.SiteID) ([]ledger.Entry, error)
	ListPendingInbound(ctx context.Context, destination ledger.SiteID) ([]ledger.Entry, error)
}

// Aggregator computes stock summaries from a Source and keeps watchers
// current through a watch.Hub.
type Aggregator struct {
	src    Source
	hub    *watch.Hub
	logger *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an Aggregator reading from src and listening on hub.
func New(src Source, hub *watch.Hub, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:    src,
		hub:    hub,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summarize reads the site's history and any transfers pending towards it,
// then computes its Summary.
func (a *Aggregator) Summarize(ctx context.Context, site ledger.SiteID) (Summary, error) {
	own, err := a.src.ListSiteEntries(ctx, site)
	if err != nil {
		return Summary{}, err
	}
	inbound, err := a.src.ListPendingInbound(ctx, site)
	if err != nil {
		return Summary{}, err
	}

	sum := Compute(site, append(own, inbound...))
	if sum.Negative() {
		a.logger.Warn("negative stock",
			zap.String("site_id", string(site)),
			zap.String("current", sum.Current.String()))
	}
	return sum, nil
}

// CurrentStock returns the quantity on hand at site.
func (a *Aggregator) CurrentStock(ctx context.Context, site ledger.SiteID) (decimal.Decimal, error) {
	sum, err := a.Summarize(ctx, site)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return sum.Current, nil
}

// Watch emits the site's Summary now and again after every committed change
// that touches the site. Each emission is a full recomputation.
//
// The channel is closed when ctx is done or the hub closes. Read errors are
// logged and the watcher waits for the next change.
func (a *Aggregator) Watch(ctx context.Context, site ledger.SiteID) <-chan Summary {
	sub := a.hub.Subscribe(watch.TouchesSite(site))
	return watch.Stream(ctx, sub,
		func(ctx context.Context) (Summary, error) { return a.Summarize(ctx, site) },
		func(err error) {
			a.logger.Error("stock recompute failed",
				zap.String("site_id", string(site)),
				zap.Error(err))
		})
}
