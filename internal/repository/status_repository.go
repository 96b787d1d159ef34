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

// StatusRepository provides database access for task statuses.
type StatusRepository struct {
	db *sqlx.DB
}

// NewStatusRepository creates a new instance of StatusRepository.
func NewStatusRepository(db *sqlx.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

const statusColumns = `id, name, active, sort_order, created_at, created_by, updated_at, updated_by`

// List returns statuses ordered for display. When activeOnly is set,
// deactivated statuses are excluded.
func (r *StatusRepository) List(ctx context.Context, activeOnly bool) ([]models.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM statuses`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY sort_order, name`
	statuses := []models.Status{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &statuses, query); err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return statuses, nil
}

// FindByID returns a status by identifier.
func (r *StatusRepository) FindByID(ctx context.Context, id string) (*models.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM statuses WHERE id = $1 LIMIT 1`
	var status models.Status
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &status, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find status: %w", err)
	}
	return &status, nil
}

// Create inserts a new status.
func (r *StatusRepository) Create(ctx context.Context, status *models.Status) error {
	if status.ID == "" {
		status.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	status.UpdatedAt = now

	const query = `INSERT INTO statuses (id, name, active, sort_order, created_at, created_by, updated_at, updated_by)
		VALUES (:id, :name, :active, :sort_order, :created_at, :created_by, :updated_at, :updated_by)`
	if _, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, status); err != nil {
		return fmt.Errorf("create status: %w", err)
	}
	return nil
}

// Update updates a status row.
func (r *StatusRepository) Update(ctx context.Context, status *models.Status) error {
	status.UpdatedAt = time.Now().UTC()
	const query = `UPDATE statuses SET name = :name, active = :active, sort_order = :sort_order, updated_at = :updated_at, updated_by = :updated_by WHERE id = :id`
	res, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InUse reports whether any task currently references the status. Statuses
// in use are deactivated rather than deleted.
func (r *StatusRepository) InUse(ctx context.Context, id string) (bool, error) {
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, `SELECT COUNT(*) FROM tasks WHERE status_id = $1`, id); err != nil {
		return false, fmt.Errorf("check status usage: %w", err)
	}
	return count > 0, nil
}

// Delete removes a status row.
func (r *StatusRepository) Delete(ctx context.Context, id string) error {
	res, err := database.FromContext(ctx, r.db).ExecContext(ctx, `DELETE FROM statuses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
