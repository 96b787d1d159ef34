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

// TaskRepository provides database access for tasks.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository creates a new instance of TaskRepository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskSelect = `
	SELECT t.id, t.title, t.description, t.priority, t.status_id, t.assigned_to,
	       t.created_at, t.updated_at,
	       s.name AS status_name,
	       a.name AS assignee_name,
	       cu.name AS created_by_name,
	       uu.name AS updated_by_name
	FROM tasks t
	JOIN statuses s ON s.id = t.status_id
	LEFT JOIN users a ON a.id = t.assigned_to
	LEFT JOIN users cu ON cu.id = t.created_by
	LEFT JOIN users uu ON uu.id = t.updated_by`

// List returns all tasks with joined display names, newest first.
func (r *TaskRepository) List(ctx context.Context) ([]models.TaskResponse, error) {
	query := taskSelect + ` ORDER BY t.created_at DESC`
	tasks := []models.TaskResponse{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &tasks, query); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListByAssignee returns tasks assigned to the given user, newest first.
func (r *TaskRepository) ListByAssignee(ctx context.Context, userID string) ([]models.TaskResponse, error) {
	query := taskSelect + ` WHERE t.assigned_to = $1 ORDER BY t.created_at DESC`
	tasks := []models.TaskResponse{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &tasks, query, userID); err != nil {
		return nil, fmt.Errorf("list tasks by assignee: %w", err)
	}
	return tasks, nil
}

// FindByID returns one task with joined display names.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*models.TaskResponse, error) {
	query := taskSelect + ` WHERE t.id = $1 LIMIT 1`
	var task models.TaskResponse
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &task, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// FindRowByID returns the raw task row without joins, for mutation paths.
func (r *TaskRepository) FindRowByID(ctx context.Context, id string) (*models.Task, error) {
	const query = `SELECT id, title, description, priority, status_id, assigned_to, created_at, created_by, updated_at, updated_by
		FROM tasks WHERE id = $1 LIMIT 1`
	var task models.Task
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &task, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find task row: %w", err)
	}
	return &task, nil
}

// Create inserts a new task.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	const query = `INSERT INTO tasks (id, title, description, priority, status_id, assigned_to, created_at, created_by, updated_at, updated_by)
		VALUES (:id, :title, :description, :priority, :status_id, :assigned_to, :created_at, :created_by, :updated_at, :updated_by)`
	if _, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Update updates mutable fields of a task.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()
	const query = `UPDATE tasks
		SET title = :title, description = :description, priority = :priority,
		    status_id = :status_id, assigned_to = :assigned_to,
		    updated_at = :updated_at, updated_by = :updated_by
		WHERE id = :id`
	res, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, task)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ChangeStatus moves a task to a new status.
func (r *TaskRepository) ChangeStatus(ctx context.Context, taskID, statusID, updatedBy string) error {
	const query = `UPDATE tasks SET status_id = $2, updated_at = $3, updated_by = $4 WHERE id = $1`
	res, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, taskID, statusID, time.Now().UTC(), updatedBy)
	if err != nil {
		return fmt.Errorf("change task status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a task. Comments and status history cascade at the schema
// level.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM tasks WHERE id = $1`
	res, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountTotal returns the total number of tasks.
func (r *TaskRepository) CountTotal(ctx context.Context) (int, error) {
	var total int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM tasks`); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return total, nil
}

// CountByStatus returns task counts grouped by status, including statuses
// with no tasks so charts keep a stable axis.
func (r *TaskRepository) CountByStatus(ctx context.Context) ([]models.TaskCountByStatus, error) {
	const query = `
		SELECT s.id AS status_id, s.name AS status_name, COUNT(t.id) AS task_count
		FROM statuses s
		LEFT JOIN tasks t ON t.status_id = s.id
		WHERE s.active = TRUE
		GROUP BY s.id, s.name, s.sort_order
		ORDER BY s.sort_order`
	counts := []models.TaskCountByStatus{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	return counts, nil
}

// CountByPriority returns task counts grouped by priority.
func (r *TaskRepository) CountByPriority(ctx context.Context) ([]models.TaskCountByPriority, error) {
	const query = `
		SELECT priority, COUNT(*) AS task_count
		FROM tasks
		GROUP BY priority
		ORDER BY priority`
	counts := []models.TaskCountByPriority{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count tasks by priority: %w", err)
	}
	return counts, nil
}
