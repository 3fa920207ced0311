// Package ledger turns reviewed drafts into posted ledger operations and
// exports them as CSV.
package ledger
