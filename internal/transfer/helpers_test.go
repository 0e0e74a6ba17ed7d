package transfer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/store"
)

var testPeriod = ledger.Period{
	Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "transfer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func registerSite(t *testing.T, s *store.Store, name string) ledger.SiteID {
	t.Helper()
	site, err := s.RegisterSite(context.Background(), name)
	require.NoError(t, err)
	return site.ID
}

func qty(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func transferLeg(to ledger.SiteID, n int64) Leg {
	return Leg{Flow: ledger.TransferredOut, Quantity: qty(n), ReferenceStoreID: to}
}

func movement(site ledger.SiteID, legs ...Leg) Movement {
	return Movement{
		SiteID:         site,
		InfoProviderID: "provider-1",
		CreatedBy:      "operator-1",
		Period:         testPeriod,
		Legs:           legs,
	}
}

func allEntries(t *testing.T, s *store.Store) []ledger.Entry {
	t.Helper()
	entries, err := s.ListAll(context.Background())
	require.NoError(t, err)
	return entries
}

// sendOut records one pending transfer from -> to and returns its id.
func sendOut(t *testing.T, s *store.Store, from, to ledger.SiteID, n int64) ledger.EntryID {
	t.Helper()
	ids, err := NewInitiator(s).Initiate(context.Background(), movement(from, transferLeg(to, n)))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return ids[0]
}
