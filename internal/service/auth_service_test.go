package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
)

type mockAuthUsers struct {
	byEmail     map[string]*models.User
	byID        map[string]*models.User
	roles       map[string][]string
	permissions map[string][]string
	created     []*models.User
	assigned    map[string]string
}

func newMockAuthUsers() *mockAuthUsers {
	return &mockAuthUsers{
		byEmail:     map[string]*models.User{},
		byID:        map[string]*models.User{},
		roles:       map[string][]string{},
		permissions: map[string][]string{},
		assigned:    map[string]string{},
	}
}

func (m *mockAuthUsers) add(user *models.User, roles, permissions []string) {
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
	m.roles[user.ID] = roles
	m.permissions[user.ID] = permissions
}

func (m *mockAuthUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUsers) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "generated"
	}
	m.created = append(m.created, user)
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
	return nil
}

func (m *mockAuthUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if user, ok := m.byID[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthUsers) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	return m.roles[userID], nil
}

func (m *mockAuthUsers) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	return m.permissions[userID], nil
}

func (m *mockAuthUsers) AssignRoleByName(ctx context.Context, userID, roleName string) error {
	m.assigned[userID] = roleName
	return nil
}

type mockTokens struct {
	byToken map[string]*models.RefreshToken
}

func newMockTokens() *mockTokens {
	return &mockTokens{byToken: map[string]*models.RefreshToken{}}
}

func (m *mockTokens) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = "rt-" + token.Token[:8]
	}
	m.byToken[token.Token] = token
	return nil
}

func (m *mockTokens) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := m.byToken[token]; ok {
		return rt, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTokens) Revoke(ctx context.Context, token, ip, reason string, replacedBy *string) error {
	rt, ok := m.byToken[token]
	if !ok || rt.RevokedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	rt.RevokedAt = &now
	rt.RevokedByIP = &ip
	rt.RevokedReason = &reason
	rt.ReplacedByToken = replacedBy
	return nil
}

func (m *mockTokens) RevokeAllForUser(ctx context.Context, userID, ip, reason string) error {
	for _, rt := range m.byToken {
		if rt.UserID == userID && rt.RevokedAt == nil {
			now := time.Now().UTC()
			rt.RevokedAt = &now
			rt.RevokedByIP = &ip
			rt.RevokedReason = &reason
		}
	}
	return nil
}

func (m *mockTokens) ListForUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	var out []models.RefreshToken
	for _, rt := range m.byToken {
		if rt.UserID == userID {
			out = append(out, *rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type mockLoginLogs struct {
	transactional []*models.LoginLog
	immediate     []*models.LoginLog
}

func (m *mockLoginLogs) InsertLoginLog(ctx context.Context, log *models.LoginLog) error {
	m.transactional = append(m.transactional, log)
	return nil
}

func (m *mockLoginLogs) InsertLoginLogImmediate(ctx context.Context, log *models.LoginLog) error {
	m.immediate = append(m.immediate, log)
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthUsers, *mockTokens, *mockLoginLogs) {
	t.Helper()
	users := newMockAuthUsers()
	tokens := newMockTokens()
	logs := &mockLoginLogs{}
	issuer := NewTokenService(TokenConfig{
		Secret:             "secret",
		Issuer:             "task-manager-api",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 168 * time.Hour,
	})
	svc := NewAuthService(users, tokens, logs, issuer, validator.New(), zap.NewNop())
	return svc, users, tokens, logs
}

func seedUser(users *mockAuthUsers, password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Name: "User", Active: true}
	users.add(user, []string{models.RoleUser}, []string{"tasks.create"})
	return user
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, users, tokens, logs := newAuthFixture(t)
	seedUser(users, "password")

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), res.ExpiresIn)

	stored := tokens.byToken[res.RefreshToken]
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, "10.0.0.1", stored.CreatedByIP)

	require.Len(t, logs.transactional, 1)
	assert.True(t, logs.transactional[0].Success)
	assert.Empty(t, logs.immediate)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, users, tokens, logs := newAuthFixture(t)
	seedUser(users, "password")

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong", IP: "10.0.0.1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)

	// the audit row bypasses the request transaction
	require.Len(t, logs.immediate, 1)
	assert.False(t, logs.immediate[0].Success)
	assert.Empty(t, logs.transactional)
	assert.Empty(t, tokens.byToken)
}

func TestAuthServiceLoginUnknownEmailSameError(t *testing.T) {
	svc, users, _, logs := newAuthFixture(t)
	seedUser(users, "password")

	_, unknownErr := svc.Login(context.Background(), models.LoginRequest{Email: "other@example.com", Password: "password"})
	_, wrongErr := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	// credential probing must not reveal which half failed
	assert.Equal(t, appErrors.FromError(wrongErr).Message, appErrors.FromError(unknownErr).Message)
	assert.Len(t, logs.immediate, 2)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, users, _, logs := newAuthFixture(t)
	user := seedUser(users, "password")
	user.Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	require.Len(t, logs.immediate, 1)
}

func TestAuthServiceRegisterAssignsDefaultRole(t *testing.T) {
	svc, users, _, _ := newAuthFixture(t)

	res, err := svc.Register(context.Background(), models.RegisterRequest{Email: "new@example.com", Password: "secret1", Name: "New"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, users.created, 1)
	assert.Equal(t, models.RoleUser, users.assigned[users.created[0].ID])
	// the stored hash must never be the raw password
	assert.NotEqual(t, "secret1", users.created[0].PasswordHash)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	svc, users, _, _ := newAuthFixture(t)
	seedUser(users, "password")

	_, err := svc.Register(context.Background(), models.RegisterRequest{Email: "user@example.com", Password: "secret1", Name: "Dup"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegisterNormalizesEmail(t *testing.T) {
	svc, users, _, _ := newAuthFixture(t)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Email: "New.User@Example.COM", Password: "secret1", Name: "New"})
	require.NoError(t, err)
	require.Len(t, users.created, 1)
	assert.Equal(t, "new.user@example.com", users.created[0].Email)

	// A differently cased duplicate collides with the stored address.
	_, err = svc.Register(context.Background(), models.RegisterRequest{Email: "NEW.USER@example.com", Password: "secret1", Name: "Dup"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginMixedCaseEmail(t *testing.T) {
	svc, users, _, _ := newAuthFixture(t)
	seedUser(users, "password")

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "User@Example.COM", Password: "password", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestAuthServiceRefreshRotates(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture(t)
	seedUser(users, "password")
	old := &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "old-token", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	tokens.byToken[old.Token] = old

	res, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token", IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", res.RefreshToken)

	require.NotNil(t, old.RevokedAt)
	require.NotNil(t, old.RevokedReason)
	assert.Equal(t, models.RevokeReasonRotated, *old.RevokedReason)
	require.NotNil(t, old.ReplacedByToken)
	assert.Equal(t, res.RefreshToken, *old.ReplacedByToken)
	assert.NotNil(t, tokens.byToken[res.RefreshToken])
}

func TestAuthServiceRefreshRejectsRevoked(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture(t)
	seedUser(users, "password")
	now := time.Now().UTC()
	reason := models.RevokeReasonManual
	tokens.byToken["dead"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "dead", ExpiresAt: now.Add(time.Hour), RevokedAt: &now, RevokedReason: &reason}

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "dead"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshExpiryBoundaryInclusive(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture(t)
	seedUser(users, "password")

	frozen := time.Now().UTC()
	svc.now = func() time.Time { return frozen }
	tokens.byToken["edge"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "edge", ExpiresAt: frozen}

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "edge"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRevokeOwner(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture(t)
	seedUser(users, "password")
	rt := &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "mine", ExpiresAt: time.Now().Add(time.Hour)}
	tokens.byToken[rt.Token] = rt

	claims := &models.Claims{UserID: "u1", Roles: []string{models.RoleUser}}
	err := svc.Revoke(context.Background(), claims, models.RefreshTokenRequest{RefreshToken: "mine", IP: "10.0.0.3"})
	require.NoError(t, err)
	require.NotNil(t, rt.RevokedReason)
	assert.Equal(t, models.RevokeReasonManual, *rt.RevokedReason)
	assert.Nil(t, rt.ReplacedByToken)
}

func TestAuthServiceRevokeForeignTokenForbidden(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture(t)
	seedUser(users, "password")
	rt := &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "mine", ExpiresAt: time.Now().Add(time.Hour)}
	tokens.byToken[rt.Token] = rt

	claims := &models.Claims{UserID: "u2", Roles: []string{models.RoleUser}}
	err := svc.Revoke(context.Background(), claims, models.RefreshTokenRequest{RefreshToken: "mine"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, rt.RevokedAt)
}

func TestAuthServiceRevokeAsAdmin(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture(t)
	seedUser(users, "password")
	rt := &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "mine", ExpiresAt: time.Now().Add(time.Hour)}
	tokens.byToken[rt.Token] = rt

	claims := &models.Claims{UserID: "admin", Roles: []string{models.RoleAdmin}}
	err := svc.Revoke(context.Background(), claims, models.RefreshTokenRequest{RefreshToken: "mine"})
	require.NoError(t, err)
	assert.NotNil(t, rt.RevokedAt)
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture(t)
	seedUser(users, "old-password")
	rt := &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "session", ExpiresAt: time.Now().Add(time.Hour)}
	tokens.byToken[rt.Token] = rt

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "old-password", NewPassword: "new-password"})
	require.NoError(t, err)
	require.NotNil(t, rt.RevokedReason)
	assert.Equal(t, models.RevokeReasonPasswordChange, *rt.RevokedReason)
}

func TestAuthServiceSessionsListsOwnTokens(t *testing.T) {
	svc, users, tokens, _ := newAuthFixture(t)
	seedUser(users, "password")
	now := time.Now().UTC()
	reason := models.RevokeReasonManual
	old := &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "old-secret", CreatedAt: now.Add(-2 * time.Hour), CreatedByIP: "10.0.0.1", ExpiresAt: now.Add(time.Hour), RevokedAt: &now, RevokedReason: &reason}
	current := &models.RefreshToken{ID: "rt2", UserID: "u1", Token: "live-secret", CreatedAt: now.Add(-time.Minute), CreatedByIP: "10.0.0.2", ExpiresAt: now.Add(time.Hour)}
	foreign := &models.RefreshToken{ID: "rt3", UserID: "u2", Token: "other", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	tokens.byToken[old.Token] = old
	tokens.byToken[current.Token] = current
	tokens.byToken[foreign.Token] = foreign

	sessions, err := svc.Sessions(context.Background(), &models.Claims{UserID: "u1", Roles: []string{models.RoleUser}})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "rt2", sessions[0].ID)
	assert.True(t, sessions[0].Active)
	assert.Equal(t, "rt1", sessions[1].ID)
	assert.False(t, sessions[1].Active)
	assert.Equal(t, models.RevokeReasonManual, *sessions[1].RevokedReason)
}

func TestTokenServiceValidateRoundTrip(t *testing.T) {
	issuer := NewTokenService(TokenConfig{Secret: "secret", Issuer: "task-manager-api", AccessTokenExpiry: time.Hour})
	user := &models.User{ID: "u1", Email: "user@example.com", Name: "User"}

	token, err := issuer.GenerateAccessToken(user, []string{models.RoleAdmin}, []string{"tasks.delete"})
	require.NoError(t, err)

	claims, err := issuer.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.True(t, claims.HasRole(models.RoleAdmin))
	assert.True(t, claims.HasPermission("tasks.delete"))
}

func TestTokenServiceRejectsTamperedToken(t *testing.T) {
	issuer := NewTokenService(TokenConfig{Secret: "secret", AccessTokenExpiry: time.Hour})
	other := NewTokenService(TokenConfig{Secret: "different", AccessTokenExpiry: time.Hour})
	user := &models.User{ID: "u1", Email: "user@example.com"}

	token, err := other.GenerateAccessToken(user, nil, nil)
	require.NoError(t, err)

	_, err = issuer.ValidateAccessToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
