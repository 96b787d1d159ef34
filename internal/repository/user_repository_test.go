package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/task-manager-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "active", "created_at", "created_by", "updated_at", "updated_by"}).
		AddRow("u1", "user@example.com", "hash", "User", true, now, nil, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, name, active, created_at, created_by, updated_at, updated_by FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmailNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT id, email").WithArgs("missing@example.com").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "new@example.com", PasswordHash: "hash", Name: "New", Active: true}
	err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListWithRolesAggregates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "name", "active",
		"created_at", "created_by", "updated_at", "updated_by",
		"role_id", "role_name", "role_description",
	}).
		AddRow("u1", "a@example.com", "hash", "A", true, now, nil, now, nil, "r1", "Admin", "Full access").
		AddRow("u1", "a@example.com", "hash", "A", true, now, nil, now, nil, "r2", "User", "Default").
		AddRow("u2", "b@example.com", "hash", "B", true, now, nil, now, nil, nil, nil, nil)
	mock.ExpectQuery("SELECT u.id, u.email").WillReturnRows(rows)

	users, err := repo.ListWithRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Len(t, users[0].Roles, 2)
	assert.Equal(t, "Admin", users[0].Roles[0].Name)
	assert.Empty(t, users[1].Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionsForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"name"}).
		AddRow("tasks.create").
		AddRow("tasks.view_all")
	mock.ExpectQuery("SELECT DISTINCT p.name").WithArgs("u1").WillReturnRows(rows)

	permissions, err := repo.PermissionsForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks.create", "tasks.view_all"}, permissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignRolesReplacesSet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_roles WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_roles").WithArgs("u1", "r1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_roles").WithArgs("u1", "r2").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AssignRoles(context.Background(), "u1", []string{"r1", "r2"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUserNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("DELETE FROM users").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
