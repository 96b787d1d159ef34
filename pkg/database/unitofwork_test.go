package database

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestUnitOfWorkBeginCommit(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	uow := NewUnitOfWork(db)
	require.NoError(t, uow.Begin(context.Background()))
	require.NotNil(t, uow.Tx())
	require.NoError(t, uow.Commit())
	assert.Nil(t, uow.Tx())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkBeginRollback(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	uow := NewUnitOfWork(db)
	require.NoError(t, uow.Begin(context.Background()))
	require.NoError(t, uow.Rollback())
	assert.Nil(t, uow.Tx())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkCommitWithoutBegin(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	uow := NewUnitOfWork(db)
	assert.ErrorIs(t, uow.Commit(), ErrNoTransaction)
	assert.ErrorIs(t, uow.Rollback(), ErrNoTransaction)
}

func TestUnitOfWorkDoubleBegin(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	uow := NewUnitOfWork(db)
	require.NoError(t, uow.Begin(context.Background()))
	assert.ErrorIs(t, uow.Begin(context.Background()), ErrTransactionStarted)
	require.NoError(t, uow.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkCommitReleasesStateOnFailure(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(assert.AnError)

	uow := NewUnitOfWork(db)
	require.NoError(t, uow.Begin(context.Background()))
	err := uow.Commit()
	require.Error(t, err)
	assert.Nil(t, uow.Tx())
}

func TestFromContextPrefersTransaction(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	uow := NewUnitOfWork(db)
	require.NoError(t, uow.Begin(context.Background()))

	ctx := WithTx(context.Background(), uow.Tx())
	q := FromContext(ctx, db)
	assert.Equal(t, Querier(uow.Tx()), q)

	plain := FromContext(context.Background(), db)
	assert.Equal(t, Querier(db), plain)

	require.NoError(t, uow.Rollback())
}
