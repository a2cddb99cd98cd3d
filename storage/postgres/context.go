package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// txContextKey is the context key for storing pgx.Tx.
type txContextKey struct{}

// WithTx returns a new context carrying the given transaction. Engine
// operations on that context run inside the transaction instead of the
// pool, letting callers bundle a save with their own writes. The
// aggregate is marked saved when the statements succeed; if the outer
// transaction later rolls back, reload the conversation from storage.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// txStrippedContext hides the transaction from nested operations.
type txStrippedContext struct {
	context.Context
}

func (c *txStrippedContext) Value(key any) any {
	if _, ok := key.(txContextKey); ok {
		return nil
	}
	return c.Context.Value(key)
}

// StripTx returns a context without the transaction value but with the
// deadline, cancellation, and other values preserved.
func StripTx(ctx context.Context) context.Context {
	return &txStrippedContext{ctx}
}
