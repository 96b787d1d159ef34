package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNoTransaction signals Commit or Rollback without a prior Begin. That is
// a programming error at the request boundary, never a recoverable state.
var ErrNoTransaction = errors.New("unit of work: no transaction in progress")

// ErrTransactionStarted signals a second Begin on the same unit.
var ErrTransactionStarted = errors.New("unit of work: transaction already started")

// UnitOfWork owns at most one open transaction for the lifetime of a single
// inbound request. Exactly one of Commit or Rollback must follow every Begin;
// both release the transaction regardless of the outcome so a failing commit
// cannot leak a connection from the pool.
type UnitOfWork struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// NewUnitOfWork binds a unit of work to the connection pool. One instance per
// request; never shared across requests.
func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Begin starts the request transaction. A failure to obtain a connection
// propagates: the unit guards writes and must never fail open.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return ErrTransactionStarted
	}
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	u.tx = tx
	return nil
}

// Tx exposes the open transaction, or nil before Begin.
func (u *UnitOfWork) Tx() *sqlx.Tx {
	return u.tx
}

// Commit commits and releases the transaction. The internal state is cleared
// even when the commit itself fails.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return ErrNoTransaction
	}
	err := u.tx.Commit()
	u.tx = nil
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction with the same release discipline as
// Commit.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return ErrNoTransaction
	}
	err := u.tx.Rollback()
	u.tx = nil
	if err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
