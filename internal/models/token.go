package models

import "time"

// Revocation reasons recorded on refresh tokens.
const (
	RevokeReasonRotated        = "Replaced by new token"
	RevokeReasonManual         = "Revoked without replacement"
	RevokeReasonPasswordChange = "Password changed"
)

// RefreshToken is a persisted, opaque session credential. Rows are only ever
// mutated to set the revocation fields and are retained indefinitely so the
// rotation chain remains auditable.
type RefreshToken struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Token           string     `db:"token" json:"token"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	CreatedByIP     string     `db:"created_by_ip" json:"created_by_ip"`
	RevokedAt       *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedByIP     *string    `db:"revoked_by_ip" json:"revoked_by_ip,omitempty"`
	RevokedReason   *string    `db:"revoked_reason" json:"revoked_reason,omitempty"`
	ReplacedByToken *string    `db:"replaced_by_token" json:"replaced_by_token,omitempty"`
}

// SessionInfo describes one refresh token session without exposing the
// opaque token value.
type SessionInfo struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedByIP   string     `json:"created_by_ip"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason *string    `json:"revoked_reason,omitempty"`
	Active        bool       `json:"active"`
}

// Expired reports whether the token lifetime has lapsed. The boundary is
// inclusive: a token whose expiry equals now is already expired.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Revoked reports whether the token carries a revocation record.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Active reports whether the token may still be exchanged.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked() && !t.Expired(now)
}
