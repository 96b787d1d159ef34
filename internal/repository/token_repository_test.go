package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/task-manager-api/internal/models"
)

func TestCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{UserID: "u1", Token: "opaque", ExpiresAt: time.Now().Add(168 * time.Hour), CreatedByIP: "10.0.0.1"}
	err := repo.Create(context.Background(), token)
	require.NoError(t, err)
	assert.NotEmpty(t, token.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token", "expires_at", "created_at", "created_by_ip",
		"revoked_at", "revoked_by_ip", "revoked_reason", "replaced_by_token",
	}).AddRow("t1", "u1", "opaque", now.Add(time.Hour), now, "10.0.0.1", nil, nil, nil, nil)
	mock.ExpectQuery("SELECT id, user_id, token").WithArgs("opaque").WillReturnRows(rows)

	token, err := repo.FindByToken(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, "u1", token.UserID)
	assert.True(t, token.Active(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTokenNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT id, user_id, token").WithArgs("unknown").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForUserNewestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token", "expires_at", "created_at", "created_by_ip",
		"revoked_at", "revoked_by_ip", "revoked_reason", "replaced_by_token",
	}).
		AddRow("t2", "u1", "live", now.Add(time.Hour), now, "10.0.0.2", nil, nil, nil, nil).
		AddRow("t1", "u1", "old", now.Add(time.Hour), now.Add(-time.Hour), "10.0.0.1", now, "10.0.0.2", models.RevokeReasonRotated, "live")
	mock.ExpectQuery("SELECT id, user_id, token.* ORDER BY created_at DESC").
		WithArgs("u1").WillReturnRows(rows)

	tokens, err := repo.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "t2", tokens[0].ID)
	assert.NotNil(t, tokens[1].RevokedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeGuardsAlreadyRevoked(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	// The update touches only rows where revoked_at IS NULL, so a second
	// revoke matches nothing and returns no error.
	mock.ExpectExec("UPDATE refresh_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))

	replacement := "next-token"
	err := repo.Revoke(context.Background(), "opaque", "10.0.0.2", models.RevokeReasonRotated, &replacement)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.RevokeAllForUser(context.Background(), "u1", "10.0.0.2", models.RevokeReasonManual)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
