// Package transfer records stock movements and reconciles inter-site
// transfers.
//
// The Initiator turns one operator action into ledger entries and appends
// them as a single atomic batch. A movement with N legs produces N entries
// or none.
//
// The Reconciler runs at the destination site. It lists the TRANSFERRED_OUT
// entries still pending towards the site and, for each one the operator
// accepts, writes the mirrored TRANSFERRED_IN entry and flips the source
// entry's confirmed flag in one transaction. Declined items are left
// pending; there is no declined state.
//
// Confirmation races are expected. Two devices confirming the same transfer
// after sync converge on one confirmation, and the loser sees
// ledger.ErrAlreadyConfirmed, which a batch reports and moves past.
package transfer
