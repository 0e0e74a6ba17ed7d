package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/watch"
)

func countEntries(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM ledger_entries").Scan(&n))
	return n
}

func TestAppend_AssignsIdentityAndTimestamps(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	site := registerTestSite(t, s, "Depot")

	id, err := s.Append(ctx, createTestEntry(site, ledger.Bought, 1000))
	require.NoError(t, err)
	assert.Equal(t, ledger.EntryID("id-0002"), id, "site took id-0001")

	e, err := s.ReadEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, site, e.StoreID)
	assert.Equal(t, ledger.Bought, e.Flow)
	assert.True(t, decimal.NewFromInt(1000).Equal(e.Quantity))
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, e.CreatedAt, e.UpdatedAt)
	assert.Equal(t, "device-1", e.SyncID)
	assert.False(t, e.Confirmed)
}

func TestAppend_RejectsInvalidWithoutWriting(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	site := registerTestSite(t, s, "Depot")

	bad := createTestEntry(site, ledger.Bought, 0)
	bad.InfoProviderID = ""

	_, err := s.Append(ctx, bad)

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	_, ok := verr.Field("quantity")
	assert.True(t, ok)
	_, ok = verr.Field("info_provider_id")
	assert.True(t, ok)
	assert.Equal(t, 0, countEntries(t, s))
}

func TestAppend_UnknownSite(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Append(context.Background(), createTestEntry("no-such-site", ledger.Bought, 5))

	require.True(t, ledger.IsValidation(err), "got %v", err)
	assert.Equal(t, 0, countEntries(t, s))
}

func TestAppend_NormalizesDestination(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	site := registerTestSite(t, s, "Depot")

	e := createTestEntry(site, ledger.Exported, 10)
	e.Destination = "  Burkina   Faso "
	id, err := s.Append(ctx, e)
	require.NoError(t, err)

	stored, err := s.ReadEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Burkina Faso", stored.Destination)
}

func TestAppendBatch_AllOrNothingOnValidation(t *testing.T) {
	s := createTestStore(t)
	site := registerTestSite(t, s, "Depot")
	other := registerTestSite(t, s, "Annex")

	batch := []ledger.Entry{
		createTestTransfer(site, other, 100),
		createTestTransfer(site, other, -3),
		createTestTransfer(site, other, 50),
	}

	_, err := s.AppendBatch(context.Background(), batch)

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	_, ok := verr.Field("entries[1].quantity")
	assert.True(t, ok, "got %v", verr)
	assert.Equal(t, 0, countEntries(t, s))
}

func TestAppendBatch_AllOrNothingOnPersistence(t *testing.T) {
	s := createTestStore(t)
	site := registerTestSite(t, s, "Depot")
	other := registerTestSite(t, s, "Annex")

	// The second leg passes validation but fails the foreign key at insert
	// time, after the first leg has already been written inside the tx.
	batch := []ledger.Entry{
		createTestTransfer(site, other, 100),
		createTestTransfer(site, "unsynced-site", 50),
	}

	_, err := s.AppendBatch(context.Background(), batch)

	require.Error(t, err)
	assert.Equal(t, 0, countEntries(t, s), "first leg must be rolled back")
}

func TestAppendBatch_FanOut(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	src := registerTestSite(t, s, "Depot")
	dests := []ledger.SiteID{
		registerTestSite(t, s, "North"),
		registerTestSite(t, s, "South"),
		registerTestSite(t, s, "East"),
	}

	batch := make([]ledger.Entry, len(dests))
	for i, d := range dests {
		batch[i] = createTestTransfer(src, d, int64(100*(i+1)))
	}

	ids, err := s.AppendBatch(ctx, batch)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	for i, d := range dests {
		pending, err := s.ListPendingInbound(ctx, d)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, ids[i], pending[0].ID)
		assert.True(t, pending[0].Pending())
	}
}

func TestAppendBatch_Empty(t *testing.T) {
	s := createTestStore(t)

	_, err := s.AppendBatch(context.Background(), nil)
	assert.True(t, ledger.IsValidation(err))
}

func TestMarkConfirmed_Transitions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := registerTestSite(t, s, "A")
	b := registerTestSite(t, s, "B")

	outID, err := s.Append(ctx, createTestTransfer(a, b, 400))
	require.NoError(t, err)

	require.NoError(t, s.MarkConfirmed(ctx, outID))

	e, err := s.ReadEntry(ctx, outID)
	require.NoError(t, err)
	assert.True(t, e.Confirmed)
	assert.True(t, e.UpdatedAt.After(e.CreatedAt))

	err = s.MarkConfirmed(ctx, outID)
	assert.True(t, ledger.IsAlreadyConfirmed(err), "got %v", err)
}

func TestMarkConfirmed_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.MarkConfirmed(context.Background(), "missing")
	assert.True(t, ledger.IsNotFound(err), "got %v", err)
}

func TestMarkConfirmed_OnlyTransfersOut(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	site := registerTestSite(t, s, "Depot")

	id, err := s.Append(ctx, createTestEntry(site, ledger.Bought, 10))
	require.NoError(t, err)

	err = s.MarkConfirmed(ctx, id)
	assert.True(t, ledger.IsValidation(err), "got %v", err)
}

func TestMarkConfirmed_ConcurrentCAS(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := registerTestSite(t, s, "A")
	b := registerTestSite(t, s, "B")

	outID, err := s.Append(ctx, createTestTransfer(a, b, 400))
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.MarkConfirmed(ctx, outID)
		}(i)
	}
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case ledger.IsAlreadyConfirmed(err):
			already++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, racers-1, already)
}

func TestWithTx_ConfirmAndMirrorAtomically(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := registerTestSite(t, s, "A")
	b := registerTestSite(t, s, "B")

	outID, err := s.Append(ctx, createTestTransfer(a, b, 400))
	require.NoError(t, err)
	out, err := s.ReadEntry(ctx, outID)
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.MarkConfirmed(ctx, outID); err != nil {
			return err
		}
		_, err := tx.Insert(ctx, createTestMirror(out))
		return err
	})
	require.NoError(t, err)

	mirror, found, err := s.FindResolution(ctx, outID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, b, mirror.StoreID)
	assert.Equal(t, a, mirror.ReferenceStoreID)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := registerTestSite(t, s, "A")
	b := registerTestSite(t, s, "B")

	outID, err := s.Append(ctx, createTestTransfer(a, b, 400))
	require.NoError(t, err)

	boom := errors.New("mirror write failed")
	err = s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.MarkConfirmed(ctx, outID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, err := s.ReadEntry(ctx, outID)
	require.NoError(t, err)
	assert.False(t, e.Confirmed, "confirmation must roll back with the failed mirror")
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	site := registerTestSite(t, s, "Depot")

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(tx *Tx) error {
			if _, err := tx.Insert(ctx, createTestEntry(site, ledger.Bought, 10)); err != nil {
				return err
			}
			panic("device lost power")
		})
	})

	assert.Equal(t, 0, countEntries(t, s))

	// The connection must be usable again.
	_, err := s.Append(ctx, createTestEntry(site, ledger.Bought, 10))
	require.NoError(t, err)
}

func TestSecondMirrorRejectedBySchema(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := registerTestSite(t, s, "A")
	b := registerTestSite(t, s, "B")

	outID, err := s.Append(ctx, createTestTransfer(a, b, 400))
	require.NoError(t, err)
	out, err := s.ReadEntry(ctx, outID)
	require.NoError(t, err)

	_, err = s.Append(ctx, createTestMirror(out))
	require.NoError(t, err)

	// A replica that skipped the CAS still cannot add a second mirror.
	_, err = s.Append(ctx, createTestMirror(out))
	assert.True(t, ledger.IsAlreadyConfirmed(err), "got %v", err)
}

func TestTriggers_AppendOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := registerTestSite(t, s, "A")
	b := registerTestSite(t, s, "B")

	outID, err := s.Append(ctx, createTestTransfer(a, b, 400))
	require.NoError(t, err)

	_, err = s.db.Exec("DELETE FROM ledger_entries WHERE id = ?", outID)
	assert.ErrorContains(t, err, "append-only")

	_, err = s.db.Exec("UPDATE ledger_entries SET quantity = '1' WHERE id = ?", outID)
	assert.ErrorContains(t, err, "append-only")

	_, err = s.db.Exec("UPDATE ledger_entries SET confirmed = 1 WHERE id = ?", outID)
	require.NoError(t, err)

	_, err = s.db.Exec("UPDATE ledger_entries SET confirmed = 0 WHERE id = ?", outID)
	assert.ErrorContains(t, err, "append-only", "confirmation never goes back")
}

func TestWrites_PublishAfterCommit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := registerTestSite(t, s, "A")
	b := registerTestSite(t, s, "B")
	c := registerTestSite(t, s, "C")

	subB := s.Hub().Subscribe(watch.TouchesSite(b))
	subC := s.Hub().Subscribe(watch.TouchesSite(c))
	defer subB.Close()
	defer subC.Close()

	_, err := s.Append(ctx, createTestTransfer(a, b, 10))
	require.NoError(t, err)

	select {
	case <-subB.C():
	default:
		t.Fatal("destination not notified of inbound transfer")
	}
	select {
	case <-subC.C():
		t.Fatal("unrelated site notified")
	default:
	}

	// Rolled back writes publish nothing.
	_ = s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, createTestTransfer(a, b, 10)); err != nil {
			return err
		}
		return errors.New("abort")
	})
	select {
	case <-subB.C():
		t.Fatal("notified of a rolled-back write")
	default:
	}
}

func TestRegisterSite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	site, err := s.RegisterSite(ctx, "  Kumasi   Collection Point ")
	require.NoError(t, err)
	assert.Equal(t, "Kumasi Collection Point", site.Name)
	assert.Equal(t, "device-1", site.SyncID)

	got, err := s.ReadSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, site.Name, got.Name)
	assert.True(t, site.CreatedAt.Equal(got.CreatedAt))

	_, err = s.RegisterSite(ctx, "   ")
	assert.True(t, ledger.IsValidation(err))

	_, err = s.ReadSite(ctx, "nope")
	assert.True(t, ledger.IsNotFound(err))
}
