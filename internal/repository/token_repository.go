package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/task-manager-api/internal/models"
	"github.com/noah-isme/task-manager-api/pkg/database"
)

// TokenRepository provides database access for refresh tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const tokenColumns = `id, user_id, token, expires_at, created_at, created_by_ip, revoked_at, revoked_by_ip, revoked_reason, replaced_by_token`

// Create persists a new refresh token.
func (r *TokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, created_by_ip)
		VALUES (:id, :user_id, :token, :expires_at, :created_at, :created_by_ip)`
	if _, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByToken returns the refresh token row matching the opaque token value.
func (r *TokenRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke marks a token revoked. The revoked_at IS NULL guard makes revocation
// idempotent: a token already revoked keeps its original revocation record.
func (r *TokenRepository) Revoke(ctx context.Context, token, ip, reason string, replacedBy *string) error {
	const query = `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_by_ip = $3, revoked_reason = $4, replaced_by_token = $5
		WHERE token = $1 AND revoked_at IS NULL`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, token, time.Now().UTC(), ip, reason, replacedBy); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active token belonging to a user.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID, ip, reason string) error {
	const query = `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_by_ip = $3, revoked_reason = $4
		WHERE user_id = $1 AND revoked_at IS NULL`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, userID, time.Now().UTC(), ip, reason); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// ListForUser returns all refresh tokens issued to a user, newest first.
// Rows are never deleted, so this is the user's full session history.
func (r *TokenRepository) ListForUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE user_id = $1 ORDER BY created_at DESC`
	tokens := []models.RefreshToken{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return tokens, nil
}
