package core

// DefaultStatementLimit caps how many entries a statement lists.
const DefaultStatementLimit = 10

// Statement is a compact per-user view: running total and the newest entries.
type Statement struct {
	Total  Money
	Recent []Transaction // newest first
}
