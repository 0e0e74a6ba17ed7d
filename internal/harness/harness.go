package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/stock"
	"github.com/roach88/stockledger/internal/store"
	"github.com/roach88/stockledger/internal/testutil"
	"github.com/roach88/stockledger/internal/transfer"
)

// ScenarioDay is the reporting period of every entry a scenario writes and
// the start of the harness clock.
var ScenarioDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

const defaultProvider = "provider-default"

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and id sequence.
type Harness struct {
	store      *store.Store
	initiator  *transfer.Initiator
	reconciler *transfer.Reconciler
	aggregator *stock.Aggregator
	logger     *zap.Logger

	scenario *Scenario
	sites    map[string]ledger.SiteID  // alias -> id
	entries  map[string]ledger.EntryID // alias -> id
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Register the scenario's sites
// 3. Execute steps, checking each outcome against its expect code
// 4. Evaluate assertions and capture the final ledger
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, zap.NewNop())
}

// RunWithLogger is Run with the services logging to logger.
func RunWithLogger(scenario *Scenario, logger *zap.Logger) (*Result, error) {
	st, err := store.Open(":memory:",
		store.WithIDGenerator(testutil.NewSequentialIDs("id")),
		store.WithClock(testutil.NewStepClock(ScenarioDay, time.Second).Now),
		store.WithSyncID("harness"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:      st,
		initiator:  transfer.NewInitiator(st, transfer.WithLogger(logger)),
		reconciler: transfer.NewReconciler(st, transfer.WithLogger(logger)),
		aggregator: stock.New(st, st.Hub(), stock.WithLogger(logger)),
		logger:     logger,
		scenario:   scenario,
		sites:      make(map[string]ledger.SiteID),
		entries:    make(map[string]ledger.EntryID),
	}

	ctx := context.Background()

	for _, alias := range scenario.Sites {
		site, err := st.RegisterSite(ctx, alias)
		if err != nil {
			return nil, fmt.Errorf("failed to register site %q: %w", alias, err)
		}
		h.sites[alias] = site.ID
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}

	if err := h.capture(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}

	return result, nil
}

// executeStep runs one step and records its outcome. Step failures that the
// scenario did not expect are result errors; only malformed steps return an
// error.
func (h *Harness) executeStep(ctx context.Context, index int, st Step, result *Result) error {
	var (
		refs []string
		err  error
	)

	switch st.Action {
	case ActionRecord:
		refs, err = h.record(ctx, st)
	case ActionMove:
		refs, err = h.move(ctx, st)
	case ActionConfirm:
		refs, err = h.confirm(ctx, st)
	case ActionReconcile:
		refs, err = h.reconcile(ctx, index, st, result)
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}

	var stepErr *stepError
	if errors.As(err, &stepErr) {
		return stepErr.err
	}

	code := ledger.Code(err)
	want := st.Expect
	if want == "" {
		want = ledger.CodeOK
	}
	if code != want {
		msg := fmt.Sprintf("steps[%d] %s: expected %s, got %s", index, st.Action, want, code)
		if err != nil {
			msg += ": " + err.Error()
		}
		result.AddError(msg)
	}

	h.logger.Debug("scenario step",
		zap.Int("step", index),
		zap.String("action", st.Action),
		zap.String("outcome", code))
	result.AddTrace(index, st.Action, code, refs...)
	return nil
}

func (h *Harness) provider(st Step) string {
	if st.Provider != nil {
		return *st.Provider
	}
	if h.scenario.Provider != "" {
		return h.scenario.Provider
	}
	return defaultProvider
}

func (h *Harness) siteID(alias string) ledger.SiteID {
	if id, ok := h.sites[alias]; ok {
		return id
	}
	return ledger.SiteID(alias)
}

func (h *Harness) entryID(alias string) ledger.EntryID {
	if id, ok := h.entries[alias]; ok {
		return id
	}
	return ledger.EntryID(alias)
}

func (h *Harness) period() ledger.Period {
	return ledger.Period{Start: ScenarioDay, End: ScenarioDay}
}

func (h *Harness) record(ctx context.Context, st Step) ([]string, error) {
	leg, err := buildLeg(st.Flow, st.Quantity, st.UnitPrice, st.Destination)
	if err != nil {
		return nil, err
	}

	id, err := h.initiator.Record(ctx, h.siteID(st.Site), h.provider(st), "harness", h.period(), leg)
	if err != nil {
		return nil, err
	}
	return []string{h.bind(st.As, id)}, nil
}

func (h *Harness) move(ctx context.Context, st Step) ([]string, error) {
	m := transfer.Movement{
		SiteID:         h.siteID(st.Site),
		InfoProviderID: h.provider(st),
		CreatedBy:      "harness",
		Period:         h.period(),
	}
	for _, ls := range st.Legs {
		leg, err := buildLeg(ls.Flow, ls.Quantity, ls.UnitPrice, ls.Destination)
		if err != nil {
			return nil, err
		}
		if ls.To != "" {
			leg.ReferenceStoreID = h.siteID(ls.To)
		}
		m.Legs = append(m.Legs, leg)
	}

	ids, err := h.initiator.Initiate(ctx, m)
	if err != nil {
		return nil, err
	}

	refs := make([]string, len(ids))
	for i, id := range ids {
		refs[i] = h.bind(st.Legs[i].As, id)
	}
	return refs, nil
}

func (h *Harness) confirm(ctx context.Context, st Step) ([]string, error) {
	mirrorID, err := h.reconciler.Confirm(ctx, h.entryID(st.Entry), h.provider(st))
	if err != nil {
		return nil, err
	}
	return []string{h.bind(st.Entry+".in", mirrorID)}, nil
}

func (h *Harness) reconcile(ctx context.Context, index int, st Step, result *Result) ([]string, error) {
	batch := transfer.Batch{
		Destination:    h.siteID(st.Site),
		InfoProviderID: h.provider(st),
		CreatedBy:      "harness",
	}
	for _, d := range st.Decisions {
		batch.Decisions = append(batch.Decisions, transfer.Decision{EntryID: h.entryID(d.Entry), Accept: d.Accept})
	}

	report, err := h.reconciler.Reconcile(ctx, batch)

	refs := make([]string, len(report.Items))
	for i, item := range report.Items {
		alias := st.Decisions[i].Entry
		if item.MirrorID != "" {
			h.bind(alias+".in", item.MirrorID)
		}
		refs[i] = fmt.Sprintf("%s=%s", alias, item.Outcome)
		if i < len(st.Outcomes) && string(item.Outcome) != st.Outcomes[i] {
			result.AddError(fmt.Sprintf("steps[%d] reconcile: decision %d (%s): expected %s, got %s",
				index, i, alias, st.Outcomes[i], item.Outcome))
		}
	}
	if err == nil && len(st.Outcomes) > 0 && len(report.Items) != len(st.Outcomes) {
		result.AddError(fmt.Sprintf("steps[%d] reconcile: expected %d outcomes, got %d",
			index, len(st.Outcomes), len(report.Items)))
	}
	return refs, err
}

// bind records alias for id and returns the name to show in traces.
func (h *Harness) bind(alias string, id ledger.EntryID) string {
	if alias == "" {
		return string(id)
	}
	h.entries[alias] = id
	return alias
}

// stepError marks a malformed step, as opposed to a ledger outcome.
type stepError struct{ err error }

func (e *stepError) Error() string { return e.err.Error() }

// buildLeg parses the textual fields of a step. Parse failures are scenario
// bugs, not ledger outcomes.
func buildLeg(flow, quantity, unitPrice, destination string) (transfer.Leg, error) {
	f, err := ledger.ParseFlow(flow)
	if err != nil {
		return transfer.Leg{}, &stepError{err: err}
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return transfer.Leg{}, &stepError{err: fmt.Errorf("quantity: %w", err)}
	}
	leg := transfer.Leg{Flow: f, Quantity: q, Destination: destination}
	if unitPrice != "" {
		if leg.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return transfer.Leg{}, &stepError{err: fmt.Errorf("unit_price: %w", err)}
		}
	}
	return leg, nil
}

// capture fills the result with the final ledger, aliases in place of ids.
func (h *Harness) capture(ctx context.Context, result *Result) error {
	entries, err := h.store.ListAll(ctx)
	if err != nil {
		return err
	}

	siteAlias := make(map[ledger.SiteID]string, len(h.sites))
	for alias, id := range h.sites {
		siteAlias[id] = alias
	}
	entryAlias := make(map[ledger.EntryID]string, len(h.entries))
	for alias, id := range h.entries {
		entryAlias[id] = alias
	}
	name := func(id ledger.EntryID) string {
		if alias, ok := entryAlias[id]; ok {
			return alias
		}
		return string(id)
	}

	for _, e := range entries {
		result.Entries = append(result.Entries, EntryState{
			Ref:         name(e.ID),
			Site:        siteAlias[e.StoreID],
			Flow:        e.Flow.String(),
			Quantity:    e.Quantity.String(),
			Reference:   siteAlias[e.ReferenceStoreID],
			Destination: e.Destination,
			Confirmed:   e.Confirmed,
			Resolves:    nameIf(e.ResolvesEntryID, name),
		})
	}

	for alias, id := range h.sites {
		current, err := h.aggregator.CurrentStock(ctx, id)
		if err != nil {
			return err
		}
		result.Stock[alias] = current.String()
	}
	return nil
}

func nameIf(id ledger.EntryID, name func(ledger.EntryID) string) string {
	if id == "" {
		return ""
	}
	return name(id)
}
