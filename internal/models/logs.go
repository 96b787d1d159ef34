package models

import "time"

// Activity log actions.
const (
	ActivityCreate       = "CREATE"
	ActivityUpdate       = "UPDATE"
	ActivityDelete       = "DELETE"
	ActivityStatusChange = "STATUS_CHANGE"
)

// LoginLog is an append-only audit row, written exactly once per login
// attempt whether or not the credentials were valid.
type LoginLog struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Success   bool      `db:"success" json:"success"`
	AttemptIP string    `db:"attempt_ip" json:"attempt_ip"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ActivityLog records a mutation performed by a user against a table row.
type ActivityLog struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Action      string    `db:"action" json:"action"`
	TargetTable string    `db:"target_table" json:"target_table"`
	TargetID    string    `db:"target_id" json:"target_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ActivityLogResponse joins the acting user for display.
type ActivityLogResponse struct {
	ActivityLog
	UserName  string `db:"user_name" json:"user_name"`
	UserEmail string `db:"user_email" json:"user_email"`
}

// TaskStatusHistory records every status a task has passed through.
type TaskStatusHistory struct {
	ID        string    `db:"id" json:"id"`
	TaskID    string    `db:"task_id" json:"task_id"`
	StatusID  string    `db:"status_id" json:"status_id"`
	ChangedBy string    `db:"changed_by" json:"changed_by"`
	ChangedAt time.Time `db:"changed_at" json:"changed_at"`
}

// TaskStatusHistoryResponse joins task, status and user names, newest first.
type TaskStatusHistoryResponse struct {
	TaskStatusHistory
	TaskTitle     string `db:"task_title" json:"task_title"`
	StatusName    string `db:"status_name" json:"status_name"`
	ChangedByName string `db:"changed_by_name" json:"changed_by_name"`
}
