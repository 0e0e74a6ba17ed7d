package store

import (
	"context"
	"fmt"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/watch"
)

// Tx is a scoped write transaction. It is only valid inside the function
// passed to WithTx.
type Tx struct {
	s       *Store
	tx      querier
	changes []watch.Change
}

// WithTx runs fn inside one SQLite transaction (CP-3).
//
// The transaction commits if fn returns nil and rolls back on any error or
// panic. Change notices recorded by fn are published only after commit, so
// watchers never observe rolled-back rows.
//
// Errors returned by fn pass through unchanged; begin and commit failures
// are returned as *ledger.PersistenceError.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.NewPersistenceError("begin tx", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{s: s, tx: sqlTx}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return ledger.NewPersistenceError("commit", err)
	}

	for _, c := range tx.changes {
		s.hub.Publish(c)
	}
	return nil
}

// prepare fills store-assigned fields on a new entry.
func (s *Store) prepare(e ledger.Entry) ledger.Entry {
	if e.ID == "" {
		e.ID = ledger.EntryID(s.ids.Generate())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.CreatedAt
	if e.SyncID == "" {
		e.SyncID = s.syncID
	}
	e.Destination = ledger.NormalizeLabel(e.Destination)
	return e
}

// Insert validates and appends one entry. The returned entry carries the
// store-assigned id and timestamps.
func (t *Tx) Insert(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	e = t.s.prepare(e)
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	if err := t.insert(ctx, e); err != nil {
		return ledger.Entry{}, err
	}
	t.record(watch.ChangeInserted, e)
	return e, nil
}

func (t *Tx) insert(ctx context.Context, e ledger.Entry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, store_id, flow, quantity, unit_price, period_start, period_end,
		 reference_store_id, destination, info_provider_id, confirmed,
		 resolves_entry_id, created_by, created_at, updated_at, sync_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)
	`,
		string(e.ID),
		string(e.StoreID),
		e.Flow.String(),
		marshalDecimal(e.Quantity),
		marshalDecimal(e.UnitPrice),
		formatTime(e.Period.Start),
		formatTime(e.Period.End),
		nullSiteID(e.ReferenceStoreID),
		e.Destination,
		e.InfoProviderID,
		nullEntryID(e.ResolvesEntryID),
		e.CreatedBy,
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
		e.SyncID,
	)
	if err != nil {
		return translateWriteError("insert entry", err)
	}
	return nil
}

// MarkConfirmed flips confirmed false -> true on a TRANSFERRED_OUT entry
// (CP-2) and returns the entry as it stood before the update.
//
// Returns ErrNotFound if the entry is not visible locally, a ValidationError
// if it is not a TRANSFERRED_OUT, and ErrAlreadyConfirmed if the flag was
// already set.
func (t *Tx) MarkConfirmed(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	e, err := readEntry(ctx, t.tx, id)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("mark confirmed %s: %w", id, err)
	}
	if e.Flow != ledger.TransferredOut {
		return ledger.Entry{}, ledger.NewValidationError("entry_id",
			fmt.Sprintf("only TRANSFERRED_OUT entries can be confirmed, got %s", e.Flow))
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET confirmed = 1, updated_at = ?
		WHERE id = ? AND flow = 'TRANSFERRED_OUT' AND confirmed = 0
	`, formatTime(t.s.now()), string(id))
	if err != nil {
		return ledger.Entry{}, ledger.NewPersistenceError("mark confirmed", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Entry{}, ledger.NewPersistenceError("mark confirmed: rows affected", err)
	}
	if n == 0 {
		return ledger.Entry{}, fmt.Errorf("mark confirmed %s: %w", id, ledger.ErrAlreadyConfirmed)
	}

	t.record(watch.ChangeConfirmed, e)
	return e, nil
}

// Entry reads an entry inside the transaction.
func (t *Tx) Entry(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	return readEntry(ctx, t.tx, id)
}

// Site reads a site inside the transaction.
func (t *Tx) Site(ctx context.Context, id ledger.SiteID) (ledger.Site, error) {
	return readSite(ctx, t.tx, id)
}

func (t *Tx) record(kind watch.ChangeKind, e ledger.Entry) {
	sites := []ledger.SiteID{e.StoreID}
	if e.ReferenceStoreID != "" && e.ReferenceStoreID != e.StoreID {
		sites = append(sites, e.ReferenceStoreID)
	}
	t.changes = append(t.changes, watch.Change{
		Kind:    kind,
		Sites:   sites,
		Entries: []ledger.EntryID{e.ID},
	})
}

// Append validates and persists a single entry.
// It never mutates existing rows.
func (s *Store) Append(ctx context.Context, e ledger.Entry) (ledger.EntryID, error) {
	var id ledger.EntryID
	err := s.WithTx(ctx, func(tx *Tx) error {
		stored, err := tx.Insert(ctx, e)
		if err != nil {
			return err
		}
		id = stored.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// AppendBatch validates and persists entries atomically: either every
// entry is stored or none is.
//
// All entries are validated before the transaction opens; a
// ValidationError names fields as entries[i].<field>.
func (s *Store) AppendBatch(ctx context.Context, entries []ledger.Entry) ([]ledger.EntryID, error) {
	if len(entries) == 0 {
		return nil, ledger.NewValidationError("entries", "at least one entry is required")
	}

	prepared := make([]ledger.Entry, len(entries))
	verr := &ledger.ValidationError{}
	for i, e := range entries {
		prepared[i] = s.prepare(e)
		if err := prepared[i].Validate(); err != nil {
			verr.Merge(fmt.Sprintf("entries[%d]", i), err.(*ledger.ValidationError))
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	ids := make([]ledger.EntryID, 0, len(prepared))
	err := s.WithTx(ctx, func(tx *Tx) error {
		for _, e := range prepared {
			if err := tx.insert(ctx, e); err != nil {
				return err
			}
			tx.record(watch.ChangeInserted, e)
			ids = append(ids, e.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkConfirmed confirms a TRANSFERRED_OUT entry on its own.
// See Tx.MarkConfirmed for the result cases.
func (s *Store) MarkConfirmed(ctx context.Context, id ledger.EntryID) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.MarkConfirmed(ctx, id)
		return err
	})
}

// RegisterSite adds a site to the registry and returns it with its new id.
func (s *Store) RegisterSite(ctx context.Context, name string) (ledger.Site, error) {
	name = ledger.NormalizeLabel(name)
	if name == "" {
		return ledger.Site{}, ledger.NewValidationError("name", "site name is required")
	}

	site := ledger.Site{
		ID:        ledger.SiteID(s.ids.Generate()),
		Name:      name,
		SyncID:    s.syncID,
		CreatedAt: s.now().UTC(),
	}

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO sites (id, name, sync_id, created_at)
			VALUES (?, ?, ?, ?)
		`, string(site.ID), site.Name, site.SyncID, formatTime(site.CreatedAt))
		if err != nil {
			return ledger.NewPersistenceError("register site", err)
		}
		tx.changes = append(tx.changes, watch.Change{
			Kind:  watch.ChangeSite,
			Sites: []ledger.SiteID{site.ID},
		})
		return nil
	})
	if err != nil {
		return ledger.Site{}, err
	}
	return site, nil
}
