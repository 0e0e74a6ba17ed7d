// Package ledger defines the stock ledger data model.
//
// A ledger entry records one stock-affecting event at a storage site: a
// purchase, a sale, an outbound or inbound transfer, an export, a processing
// run, or a loss. Current stock at a site is never stored; it is always
// derived from the site's entries (see internal/stock).
//
// This package contains types, validation, and error kinds only. All other
// internal packages import ledger; ledger imports nothing internal.
//
// Key constraints:
//   - Entries are append-only; the single mutable field is Confirmed, which
//     moves false -> true once, and only on TRANSFERRED_OUT entries
//   - Quantities and prices are decimal.Decimal, never floats
//   - Every entry names an info provider; there is no default
//   - A TRANSFERRED_IN entry always names the TRANSFERRED_OUT it resolves
package ledger
