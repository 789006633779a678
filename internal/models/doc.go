// Package models defines the core domain records for the receipt splitter.
//
// # Records
//
//   - User: a household member, identified by a single-bit BuyIndex
//   - Receipt: one shopping trip, keyed by calendar date, with a payer
//   - Item: a line item on a receipt, with the set of users splitting it
//   - Cover: how much one user owes the receipt's payer
//   - Payment: a repayment between two users, recorded outside any receipt
//
// # User identifiers
//
// A UserID is a distinct power of two, so a set of users is a single uint32
// bitmask (UserSet). That keeps claimant sets on items O(1) to store, union,
// and compare, at the cost of capping the household at 32 members. Code
// outside this package works with the UserSet API, not the raw mask.
//
// # Money
//
// Monetary fields use decimal.Decimal rather than float64 so that per-item
// shares divide and round exactly; the ledger rounds each share up to the
// cent so the payer never loses to rounding.
package models
