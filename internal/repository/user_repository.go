package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/task-manager-api/internal/models"
	"github.com/noah-isme/task-manager-api/pkg/database"
)

// UserRepository provides database access for users, roles and permissions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, name, active, created_at, created_by, updated_at, updated_by`

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ListWithRoles returns all users with their roles aggregated.
func (r *UserRepository) ListWithRoles(ctx context.Context) ([]models.UserWithRoles, error) {
	const query = `
		SELECT u.id, u.email, u.password_hash, u.name, u.active,
		       u.created_at, u.created_by, u.updated_at, u.updated_by,
		       r.id AS role_id, r.name AS role_name, r.description AS role_description
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		ORDER BY u.created_at`

	type row struct {
		models.User
		RoleID          *string `db:"role_id"`
		RoleName        *string `db:"role_name"`
		RoleDescription *string `db:"role_description"`
	}

	var rows []row
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list users with roles: %w", err)
	}

	index := make(map[string]int)
	users := make([]models.UserWithRoles, 0, len(rows))
	for _, rw := range rows {
		i, seen := index[rw.User.ID]
		if !seen {
			users = append(users, models.UserWithRoles{User: rw.User, Roles: []models.Role{}})
			i = len(users) - 1
			index[rw.User.ID] = i
		}
		if rw.RoleID != nil {
			role := models.Role{ID: *rw.RoleID, Name: *rw.RoleName}
			if rw.RoleDescription != nil {
				role.Description = *rw.RoleDescription
			}
			users[i].Roles = append(users[i].Roles, role)
		}
	}
	return users, nil
}

// FindWithRoles returns one user with roles aggregated.
func (r *UserRepository) FindWithRoles(ctx context.Context, id string) (*models.UserWithRoles, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	const query = `
		SELECT r.id, r.name, r.description
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`
	roles := []models.Role{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &roles, query, id); err != nil {
		return nil, fmt.Errorf("find user roles: %w", err)
	}
	return &models.UserWithRoles{User: *user, Roles: roles}, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, email, password_hash, name, active, created_at, created_by, updated_at, updated_by)
		VALUES (:id, :email, :password_hash, :name, :active, :created_at, :created_by, :updated_at, :updated_by)`
	if _, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update updates mutable fields of a user.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET email = :email, name = :name, active = :active, updated_at = :updated_at, updated_by = :updated_by WHERE id = :id`
	res, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, id, passwordHash, time.Now().UTC()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Delete removes a user row. The original system allows hard deletes for
// admins; role assignments cascade at the schema level.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	res, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

// RolesForUser returns the role names assigned to a user.
func (r *UserRepository) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	const query = `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`
	roles := []string{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	return roles, nil
}

// PermissionsForUser returns the distinct permission names granted through
// the user's roles.
func (r *UserRepository) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	const query = `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.name`
	permissions := []string{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &permissions, query, userID); err != nil {
		return nil, fmt.Errorf("permissions for user: %w", err)
	}
	return permissions, nil
}

// ListRoles returns all roles.
func (r *UserRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles := []models.Role{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &roles, `SELECT id, name, description FROM roles ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns all permissions.
func (r *UserRepository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	permissions := []models.Permission{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &permissions, `SELECT id, name, description FROM permissions ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return permissions, nil
}

// ValidRoleIDs filters the given role ids down to the ones that exist.
func (r *UserRepository) ValidRoleIDs(ctx context.Context, roleIDs []string) ([]string, error) {
	const query = `SELECT id FROM roles WHERE id = ANY($1)`
	existing := []string{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &existing, query, pq.Array(roleIDs)); err != nil {
		return nil, fmt.Errorf("validate role ids: %w", err)
	}
	return existing, nil
}

// AssignRoles replaces the user's role assignments with the given set.
func (r *UserRepository) AssignRoles(ctx context.Context, userID string, roleIDs []string) error {
	q := database.FromContext(ctx, r.db)
	if _, err := q.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear user roles: %w", err)
	}
	const insert = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`
	for _, roleID := range roleIDs {
		if _, err := q.ExecContext(ctx, insert, userID, roleID); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
	}
	return nil
}

// AssignRoleByName attaches a role to a user by role name. Used for the
// default role at registration.
func (r *UserRepository) AssignRoleByName(ctx context.Context, userID, roleName string) error {
	const query = `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, userID, roleName); err != nil {
		return fmt.Errorf("assign role by name: %w", err)
	}
	return nil
}
