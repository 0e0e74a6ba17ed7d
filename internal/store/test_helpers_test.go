package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/testutil"
)

var testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory with deterministic
// ids and timestamps.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	clock := testutil.NewStepClock(testDay, time.Second)
	s, err := Open(path,
		WithIDGenerator(testutil.NewSequentialIDs("id")),
		WithClock(clock.Now),
		WithSyncID("device-1"),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// registerTestSite registers a site or fails the test.
func registerTestSite(t *testing.T, s *Store, name string) ledger.SiteID {
	t.Helper()
	site, err := s.RegisterSite(context.Background(), name)
	if err != nil {
		t.Fatalf("RegisterSite(%q) failed: %v", name, err)
	}
	return site.ID
}

// createTestEntry builds a valid entry with minimal required fields.
func createTestEntry(site ledger.SiteID, flow ledger.Flow, qty int64) ledger.Entry {
	return ledger.Entry{
		StoreID:        site,
		Flow:           flow,
		Quantity:       decimal.NewFromInt(qty),
		Period:         ledger.Period{Start: testDay, End: testDay},
		InfoProviderID: "provider-1",
		CreatedBy:      "operator-1",
	}
}

// createTestTransfer builds a valid TRANSFERRED_OUT entry from -> to.
func createTestTransfer(from, to ledger.SiteID, qty int64) ledger.Entry {
	e := createTestEntry(from, ledger.TransferredOut, qty)
	e.ReferenceStoreID = to
	return e
}

// createTestMirror builds the TRANSFERRED_IN entry resolving out.
func createTestMirror(out ledger.Entry) ledger.Entry {
	return ledger.Entry{
		StoreID:          out.ReferenceStoreID,
		Flow:             ledger.TransferredIn,
		Quantity:         out.Quantity,
		Period:           out.Period,
		ReferenceStoreID: out.StoreID,
		InfoProviderID:   "provider-2",
		ResolvesEntryID:  out.ID,
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}
