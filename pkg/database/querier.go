package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Querier is the sqlx subset repositories execute against. Both *sqlx.DB and
// *sqlx.Tx satisfy it, so the same repository code runs inside or outside a
// request transaction.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type txContextKey struct{}

// WithTx stashes an open transaction on the context so that every repository
// call made while handling the request shares it.
func WithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFrom extracts the request transaction, if any.
func TxFrom(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sqlx.Tx)
	return tx, ok
}

// FromContext resolves the executor for a repository call: the request
// transaction when one is open, the connection pool otherwise.
func FromContext(ctx context.Context, db *sqlx.DB) Querier {
	if tx, ok := TxFrom(ctx); ok && tx != nil {
		return tx
	}
	return db
}
