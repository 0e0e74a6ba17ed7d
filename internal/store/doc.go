// Package store provides SQLite-backed durable storage for the stock ledger.
//
// The store implements an append-only ledger with:
//   - Sites: the registry of tracked storage sites (the id arena entries point into)
//   - Ledger entries: one row per stock-affecting event
//
// # Critical Patterns
//
// CP-1: Append-Only
//   - No code path issues DELETE, and the only UPDATE is the confirmation CAS
//   - Triggers abort any other UPDATE and every DELETE, so replicated writes
//     from other devices are held to the same rule
//
// CP-2: Confirmation Is a Compare-And-Set
//   - UPDATE ... WHERE id = ? AND confirmed = 0
//   - Zero rows affected means someone else confirmed first (ErrAlreadyConfirmed)
//   - UNIQUE(resolves_entry_id) makes a second TRANSFERRED_IN for the same
//     transfer impossible even if the CAS were bypassed
//
// CP-3: Scoped Transactions
//   - Every multi-row write runs inside WithTx: commit on success, rollback
//     on error or panic, change notices published only after commit
//
// CP-4: Deterministic Query Results
//   - All list queries use ORDER BY created_at ASC, id ASC COLLATE BINARY
//   - Timestamps are stored as fixed-width UTC text so lexical order is time order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Entries may only reference registered sites
//
// Schema changes are versioned migrations under migrations/, applied with
// golang-migrate on Open.
package store
