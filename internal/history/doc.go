// Package history keeps a SQLite ledger of the searches and grabs BookSearcher
// has performed.
//
// The session cache forgets searches as it evicts them; the ledger does not.
// It backs the `history` command and the totals reported by the HTTP API.
// Callers treat it as best effort: a failed write is logged and never fails
// the search or grab that produced it.
package history
