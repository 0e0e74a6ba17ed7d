// Package harness runs ledger scenarios as executable contract tests.
//
// A scenario registers sites, drives the initiator and reconciler through a
// list of steps, and asserts on the resulting stock and confirmation state.
// Every run uses a fresh in-memory store with sequential ids and a stepping
// clock, so the final ledger is byte-for-byte reproducible and can be
// compared against a golden snapshot.
//
// # Scenario Format
//
//	name: scenario_c_confirm
//	description: "B confirms the transfer from A"
//	sites: [A, B]
//	steps:
//	  - action: record
//	    site: A
//	    flow: BOUGHT
//	    quantity: "1000"
//	    as: purchase
//	  - action: move
//	    site: A
//	    legs:
//	      - { flow: TRANSFERRED_OUT, quantity: "400", to: B, as: out }
//	  - action: confirm
//	    entry: out
//	    provider: provider-b
//	  - action: confirm
//	    entry: out
//	    expect: E_ALREADY_CONFIRMED
//	assertions:
//	  - { type: stock, site: A, current: "600" }
//	  - { type: confirmed, entry: out, confirmed: true }
//
// Sites and entries are referred to by alias. An alias that was never
// defined is used verbatim as an id, which is how a scenario refers to rows
// that are not visible yet. The mirror written when an entry is confirmed
// gets the alias "<entry>.in".
//
// # Step Actions
//
//   - record: one entry of any flow except TRANSFERRED_IN
//   - move: a multi-leg movement appended atomically
//   - confirm: confirm one transfer
//   - reconcile: a batch of accept/decline decisions at a destination
//
// Each step may name the error code it expects (E_VALIDATION, E_NOT_FOUND,
// E_ALREADY_CONFIRMED, E_PERSISTENCE). The default is OK.
//
// # Assertion Types
//
//   - stock: current stock (and optionally pending inbound) at a site
//   - confirmed: the confirmed flag of an entry
//   - pending: the number of transfers pending towards a site
//   - entry_count: the number of ledger rows, optionally for one flow
package harness
