package chain

import "context"

// Transaction is one chain transfer touching a watched address, as
// reported by an explorer backend. Field completeness varies per
// backend; Hash may be empty for chains whose API omits it.
type Transaction struct {
	Hash          string
	Amount        Amount
	Confirmations int
	Incoming      bool
}

// Reader exposes the chain-explorer capability the funding monitor
// consumes: balances and recent transfers for arbitrary addresses.
// Implementations rate-limit themselves; callers treat every method as
// fallible and slow.
type Reader interface {
	GetBalance(ctx context.Context, network, address string) (Amount, error)
	GetRecentTransactions(ctx context.Context, network, address string, limit int) ([]Transaction, error)
	GetTransaction(ctx context.Context, network, txHash string) (*Transaction, error)
}
