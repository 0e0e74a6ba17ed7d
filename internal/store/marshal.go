package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/roach88/stockledger/internal/ledger"
)

// timeLayout is fixed-width UTC so that TEXT comparison orders by time (CP-4).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalDecimal stores decimals as their exact string form; SQLite REAL
// would round quantities.
func marshalDecimal(d decimal.Decimal) string {
	return d.String()
}

func unmarshalDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// nullSiteID maps the empty SiteID to NULL so the foreign key is skipped.
func nullSiteID(id ledger.SiteID) sql.NullString {
	return sql.NullString{String: string(id), Valid: id != ""}
}

func nullEntryID(id ledger.EntryID) sql.NullString {
	return sql.NullString{String: string(id), Valid: id != ""}
}

// translateWriteError maps constraint failures on insert to domain errors.
// Anything else is a PersistenceError.
func translateWriteError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintForeignKey:
			return ledger.NewValidationError("site", "entry references an unregistered site")
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			if strings.Contains(sqliteErr.Error(), "resolves_entry_id") {
				return fmt.Errorf("%s: %w", op, ledger.ErrAlreadyConfirmed)
			}
		}
	}
	return ledger.NewPersistenceError(op, err)
}
