package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.UserWithRoles
	byEmail   map[string]*models.User
	roles     []models.Role
	validIDs  map[string]bool
	assigned  map[string][]string
	deleted   []string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:    map[string]*models.UserWithRoles{},
		byEmail:  map[string]*models.User{},
		validIDs: map[string]bool{},
		assigned: map[string][]string{},
	}
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindWithRoles(ctx context.Context, id string) (*models.UserWithRoles, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ListWithRoles(ctx context.Context) ([]models.UserWithRoles, error) {
	out := []models.UserWithRoles{}
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "u-new"
	}
	m.byEmail[user.Email] = user
	m.users[user.ID] = &models.UserWithRoles{User: *user, Roles: []models.Role{}}
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	existing, ok := m.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	delete(m.byEmail, existing.Email)
	existing.User = *user
	m.byEmail[user.Email] = &existing.User
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) ListRoles(ctx context.Context) ([]models.Role, error) {
	return m.roles, nil
}

func (m *mockUserRepo) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return nil, nil
}

func (m *mockUserRepo) ValidRoleIDs(ctx context.Context, roleIDs []string) ([]string, error) {
	valid := []string{}
	for _, id := range roleIDs {
		if m.validIDs[id] {
			valid = append(valid, id)
		}
	}
	return valid, nil
}

func (m *mockUserRepo) AssignRoles(ctx context.Context, userID string, roleIDs []string) error {
	m.assigned[userID] = roleIDs
	return nil
}

func newUserFixture() (*UserService, *mockUserRepo, *mockHistory) {
	repo := newMockUserRepo()
	activity := &mockHistory{}
	svc := NewUserService(repo, activity, validator.New(), zap.NewNop())
	return svc, repo, activity
}

const roleIDManager = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"

func TestUserCreateWithRoles(t *testing.T) {
	svc, repo, activity := newUserFixture()
	repo.validIDs[roleIDManager] = true

	_, err := svc.Create(context.Background(), adminClaims(), models.CreateUserRequest{
		Email:    "new@example.com",
		Password: "secret1",
		Name:     "New",
		Active:   true,
		RoleIDs:  []string{roleIDManager},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{roleIDManager}, repo.assigned["u-new"])
	require.Len(t, activity.activity, 1)
	assert.Equal(t, models.ActivityCreate, activity.activity[0].Action)
	assert.Equal(t, "users", activity.activity[0].TargetTable)
}

func TestUserCreateUnknownRoleRejected(t *testing.T) {
	svc, _, _ := newUserFixture()

	_, err := svc.Create(context.Background(), adminClaims(), models.CreateUserRequest{
		Email:    "new@example.com",
		Password: "secret1",
		Name:     "New",
		RoleIDs:  []string{roleIDManager},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	svc, repo, _ := newUserFixture()
	repo.byEmail["taken@example.com"] = &models.User{ID: "u1", Email: "taken@example.com"}

	_, err := svc.Create(context.Background(), adminClaims(), models.CreateUserRequest{
		Email:    "taken@example.com",
		Password: "secret1",
		Name:     "Dup",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserCreateNormalizesEmail(t *testing.T) {
	svc, repo, _ := newUserFixture()

	_, err := svc.Create(context.Background(), adminClaims(), models.CreateUserRequest{
		Email:    "Mixed.Case@Example.COM",
		Password: "secret1",
		Name:     "Mixed",
	})
	require.NoError(t, err)
	stored, ok := repo.byEmail["mixed.case@example.com"]
	require.True(t, ok)
	assert.Equal(t, "mixed.case@example.com", stored.Email)

	// A differently cased duplicate still collides.
	_, err = svc.Create(context.Background(), adminClaims(), models.CreateUserRequest{
		Email:    "MIXED.CASE@example.com",
		Password: "secret1",
		Name:     "Dup",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserDeleteSelfRejected(t *testing.T) {
	svc, repo, _ := newUserFixture()
	repo.users["admin"] = &models.UserWithRoles{User: models.User{ID: "admin"}}

	err := svc.Delete(context.Background(), adminClaims(), "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestUserDelete(t *testing.T) {
	svc, repo, activity := newUserFixture()
	repo.users["u1"] = &models.UserWithRoles{User: models.User{ID: "u1"}}

	err := svc.Delete(context.Background(), adminClaims(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, repo.deleted)
	require.Len(t, activity.activity, 1)
	assert.Equal(t, models.ActivityDelete, activity.activity[0].Action)
}

func TestUserAssignRolesReplaces(t *testing.T) {
	svc, repo, _ := newUserFixture()
	repo.users["u1"] = &models.UserWithRoles{User: models.User{ID: "u1"}}
	repo.validIDs[roleIDManager] = true

	_, err := svc.AssignRoles(context.Background(), adminClaims(), "u1", models.AssignRolesRequest{RoleIDs: []string{roleIDManager}})
	require.NoError(t, err)
	assert.Equal(t, []string{roleIDManager}, repo.assigned["u1"])
}

func TestUserUpdateEmailConflict(t *testing.T) {
	svc, repo, _ := newUserFixture()
	repo.users["u1"] = &models.UserWithRoles{User: models.User{ID: "u1", Email: "a@example.com"}}
	repo.byEmail["a@example.com"] = &models.User{ID: "u1", Email: "a@example.com"}
	repo.byEmail["b@example.com"] = &models.User{ID: "u2", Email: "b@example.com"}

	_, err := svc.Update(context.Background(), adminClaims(), "u1", models.UpdateUserRequest{Email: "b@example.com", Name: "A"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
