package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/task-manager-api/internal/models"
	"github.com/noah-isme/task-manager-api/pkg/database"
)

// LogRepository provides database access for login, activity and status
// history audit rows.
type LogRepository struct {
	db *sqlx.DB
}

// NewLogRepository creates a new instance of LogRepository.
func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

const insertLoginLog = `INSERT INTO login_logs (id, email, success, attempt_ip, user_agent, created_at)
	VALUES (:id, :email, :success, :attempt_ip, :user_agent, :created_at)`

// InsertLoginLog writes a login attempt inside the request transaction.
func (r *LogRepository) InsertLoginLog(ctx context.Context, log *models.LoginLog) error {
	prepareLoginLog(log)
	if _, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, insertLoginLog, log); err != nil {
		return fmt.Errorf("insert login log: %w", err)
	}
	return nil
}

// InsertLoginLogImmediate writes a login attempt directly against the pool,
// ignoring any transaction in the context. Failed logins roll the request
// transaction back, and the audit row has to survive that.
func (r *LogRepository) InsertLoginLogImmediate(ctx context.Context, log *models.LoginLog) error {
	prepareLoginLog(log)
	if _, err := r.db.NamedExecContext(ctx, insertLoginLog, log); err != nil {
		return fmt.Errorf("insert login log: %w", err)
	}
	return nil
}

func prepareLoginLog(log *models.LoginLog) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
}

// ListLoginLogs returns login attempts newest first with total count for
// pagination.
func (r *LogRepository) ListLoginLogs(ctx context.Context, page, pageSize int) ([]models.LoginLog, int, error) {
	q := database.FromContext(ctx, r.db)

	var total int
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM login_logs`); err != nil {
		return nil, 0, fmt.Errorf("count login logs: %w", err)
	}

	const query = `SELECT id, email, success, attempt_ip, user_agent, created_at
		FROM login_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	logs := []models.LoginLog{}
	if err := q.SelectContext(ctx, &logs, query, pageSize, (page-1)*pageSize); err != nil {
		return nil, 0, fmt.Errorf("list login logs: %w", err)
	}
	return logs, total, nil
}

// ListAllLoginLogs returns the full login audit trail, newest first. Used
// by the export worker, which streams the result into a file.
func (r *LogRepository) ListAllLoginLogs(ctx context.Context) ([]models.LoginLog, error) {
	const query = `SELECT id, email, success, attempt_ip, user_agent, created_at
		FROM login_logs ORDER BY created_at DESC`
	logs := []models.LoginLog{}
	if err := r.db.SelectContext(ctx, &logs, query); err != nil {
		return nil, fmt.Errorf("list all login logs: %w", err)
	}
	return logs, nil
}

// InsertActivityLog records a mutation performed by a user.
func (r *LogRepository) InsertActivityLog(ctx context.Context, log *models.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, user_id, action, target_table, target_id, created_at)
		VALUES (:id, :user_id, :action, :target_table, :target_id, :created_at)`
	if _, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

// ListActivityLogs returns activity rows newest first with the acting user
// joined in, plus a total count for pagination.
func (r *LogRepository) ListActivityLogs(ctx context.Context, page, pageSize int) ([]models.ActivityLogResponse, int, error) {
	q := database.FromContext(ctx, r.db)

	var total int
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_logs`); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}

	const query = `
		SELECT al.id, al.user_id, al.action, al.target_table, al.target_id, al.created_at,
		       u.name AS user_name, u.email AS user_email
		FROM activity_logs al
		JOIN users u ON u.id = al.user_id
		ORDER BY al.created_at DESC
		LIMIT $1 OFFSET $2`
	logs := []models.ActivityLogResponse{}
	if err := q.SelectContext(ctx, &logs, query, pageSize, (page-1)*pageSize); err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}
	return logs, total, nil
}

// InsertStatusHistory appends a task status transition.
func (r *LogRepository) InsertStatusHistory(ctx context.Context, entry *models.TaskStatusHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	const query = `INSERT INTO task_status_history (id, task_id, status_id, changed_by, changed_at)
		VALUES (:id, :task_id, :status_id, :changed_by, :changed_at)`
	if _, err := database.FromContext(ctx, r.db).NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// ListStatusHistory returns the status transitions of one task, newest
// first, with task, status and user names joined in.
func (r *LogRepository) ListStatusHistory(ctx context.Context, taskID string) ([]models.TaskStatusHistoryResponse, error) {
	const query = `
		SELECT h.id, h.task_id, h.status_id, h.changed_by, h.changed_at,
		       t.title AS task_title, s.name AS status_name, u.name AS changed_by_name
		FROM task_status_history h
		JOIN tasks t ON t.id = h.task_id
		JOIN statuses s ON s.id = h.status_id
		JOIN users u ON u.id = h.changed_by
		WHERE h.task_id = $1
		ORDER BY h.changed_at DESC`
	entries := []models.TaskStatusHistoryResponse{}
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &entries, query, taskID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}
