package graflow

import "context"

// IsolationLevel names the isolation a TxManager.WithTx block runs under.
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
)

// TxManager runs fn inside one transaction, committing on nil error and
// rolling back otherwise. Every public service operation is one such
// block, per spec.md §5.
type TxManager interface {
	WithTx(ctx context.Context, level IsolationLevel, fn func(ctx context.Context) error) error
}

type txKey struct{}

// TxFromContext returns the value a TxManager implementation stashed in
// ctx for the duration of a WithTx block, if any.
func TxFromContext(ctx context.Context) (any, bool) {
	v := ctx.Value(txKey{})
	return v, v != nil
}

func withTxValue(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// MemoryTxManager is a no-op TxManager for the in-memory Store: MemoryStore
// already serializes access internally, so isolation level is irrelevant.
type MemoryTxManager struct{}

func (MemoryTxManager) WithTx(ctx context.Context, _ IsolationLevel, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
