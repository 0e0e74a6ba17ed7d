package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stockledger/internal/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const entryColumns = `
	id, store_id, flow, quantity, unit_price, period_start, period_end,
	reference_store_id, destination, info_provider_id, confirmed,
	resolves_entry_id, created_by, created_at, updated_at, sync_id`

// CP-4: Deterministic ordering.
const entryOrder = `ORDER BY created_at ASC, id COLLATE BINARY ASC`

// ReadEntry retrieves a single entry by id.
// Returns an error wrapping ledger.ErrNotFound if it does not exist.
func (s *Store) ReadEntry(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	return readEntry(ctx, s.db, id)
}

func readEntry(ctx context.Context, q querier, id ledger.EntryID) (ledger.Entry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, string(id))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, fmt.Errorf("entry %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Entry{}, ledger.NewPersistenceError("read entry", err)
	}
	return e, nil
}

// ListSiteEntries returns every entry recorded against site.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListSiteEntries(ctx context.Context, site ledger.SiteID) ([]ledger.Entry, error) {
	return s.listEntries(ctx, "list site entries",
		`SELECT `+entryColumns+` FROM ledger_entries WHERE store_id = ? `+entryOrder,
		string(site))
}

// ListPendingInbound returns unconfirmed TRANSFERRED_OUT entries addressed
// to destination, i.e. the transfers the destination still has to reconcile.
func (s *Store) ListPendingInbound(ctx context.Context, destination ledger.SiteID) ([]ledger.Entry, error) {
	return s.listEntries(ctx, "list pending inbound",
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE reference_store_id = ? AND flow = 'TRANSFERRED_OUT' AND confirmed = 0 `+entryOrder,
		string(destination))
}

// ListAll returns the whole ledger in deterministic order.
func (s *Store) ListAll(ctx context.Context) ([]ledger.Entry, error) {
	return s.listEntries(ctx, "list all entries",
		`SELECT `+entryColumns+` FROM ledger_entries `+entryOrder)
}

// FindResolution returns the TRANSFERRED_IN entry that resolves outID.
// The boolean is false if the transfer has not been reconciled.
func (s *Store) FindResolution(ctx context.Context, outID ledger.EntryID) (ledger.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE resolves_entry_id = ?`, string(outID))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, ledger.NewPersistenceError("find resolution", err)
	}
	return e, true, nil
}

func (s *Store) listEntries(ctx context.Context, op, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.NewPersistenceError(op, err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, ledger.NewPersistenceError(op, err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, ledger.NewPersistenceError(op, err)
	}

	return entries, nil
}

// ReadSite retrieves a registered site.
// Returns an error wrapping ledger.ErrNotFound if it is not registered.
func (s *Store) ReadSite(ctx context.Context, id ledger.SiteID) (ledger.Site, error) {
	return readSite(ctx, s.db, id)
}

func readSite(ctx context.Context, q querier, id ledger.SiteID) (ledger.Site, error) {
	var site ledger.Site
	var siteID, createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT id, name, sync_id, created_at FROM sites WHERE id = ?`, string(id),
	).Scan(&siteID, &site.Name, &site.SyncID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Site{}, fmt.Errorf("site %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Site{}, ledger.NewPersistenceError("read site", err)
	}

	site.ID = ledger.SiteID(siteID)
	if site.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Site{}, ledger.NewPersistenceError("read site", err)
	}
	return site, nil
}

// ListSites returns every registered site ordered by name.
func (s *Store) ListSites(ctx context.Context) ([]ledger.Site, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, sync_id, created_at FROM sites ORDER BY name ASC, id COLLATE BINARY ASC`)
	if err != nil {
		return nil, ledger.NewPersistenceError("list sites", err)
	}
	defer rows.Close()

	sites := []ledger.Site{}
	for rows.Next() {
		var site ledger.Site
		var siteID, createdAt string
		if err := rows.Scan(&siteID, &site.Name, &site.SyncID, &createdAt); err != nil {
			return nil, ledger.NewPersistenceError("list sites", err)
		}
		site.ID = ledger.SiteID(siteID)
		if site.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, ledger.NewPersistenceError("list sites", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewPersistenceError("list sites", err)
	}
	return sites, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry scans one row selected with entryColumns.
func scanEntry(row rowScanner) (ledger.Entry, error) {
	var (
		e                                 ledger.Entry
		id, storeID, flow                 string
		quantity, unitPrice               string
		periodStart, periodEnd            string
		referenceStoreID, resolvesEntryID sql.NullString
		createdAt, updatedAt              string
		confirmed                         int
	)

	if err := row.Scan(
		&id, &storeID, &flow, &quantity, &unitPrice, &periodStart, &periodEnd,
		&referenceStoreID, &e.Destination, &e.InfoProviderID, &confirmed,
		&resolvesEntryID, &e.CreatedBy, &createdAt, &updatedAt, &e.SyncID,
	); err != nil {
		return ledger.Entry{}, err
	}

	var err error
	e.ID = ledger.EntryID(id)
	e.StoreID = ledger.SiteID(storeID)
	e.ReferenceStoreID = ledger.SiteID(referenceStoreID.String)
	e.ResolvesEntryID = ledger.EntryID(resolvesEntryID.String)
	e.Confirmed = confirmed == 1

	if e.Flow, err = ledger.ParseFlow(flow); err != nil {
		return ledger.Entry{}, err
	}
	if e.Quantity, err = unmarshalDecimal(quantity); err != nil {
		return ledger.Entry{}, err
	}
	if e.UnitPrice, err = unmarshalDecimal(unitPrice); err != nil {
		return ledger.Entry{}, err
	}
	if e.Period.Start, err = parseTime(periodStart); err != nil {
		return ledger.Entry{}, err
	}
	if e.Period.End, err = parseTime(periodEnd); err != nil {
		return ledger.Entry{}, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Entry{}, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ledger.Entry{}, err
	}

	return e, nil
}
