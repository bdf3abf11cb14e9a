package domain

import "context"

// StockLedger is the boundary to the stock collaborators (items, manufacturing
// items, purchases, issues and dispatches). The tracker never reads or writes
// stock; nothing in this service implements it.
type StockLedger interface {
	ReadyStock(ctx context.Context, itemName string) (float64, error)
	WorkInProgress(ctx context.Context, itemName string) (float64, error)
}
