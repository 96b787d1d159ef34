package models

import "time"

// TaskPriority enumerates the supported priorities.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

// Valid reports whether the priority is one of the known values.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents a row in the tasks table.
type Task struct {
	ID          string       `db:"id" json:"id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	Priority    TaskPriority `db:"priority" json:"priority"`
	StatusID    string       `db:"status_id" json:"status_id"`
	AssignedTo  *string      `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	CreatedBy   string       `db:"created_by" json:"created_by"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
	UpdatedBy   *string      `db:"updated_by" json:"updated_by,omitempty"`
}

// TaskResponse is the joined read model used by list and detail endpoints.
type TaskResponse struct {
	ID            string       `db:"id" json:"id"`
	Title         string       `db:"title" json:"title"`
	Description   string       `db:"description" json:"description"`
	Priority      TaskPriority `db:"priority" json:"priority"`
	StatusID      string       `db:"status_id" json:"status_id"`
	StatusName    string       `db:"status_name" json:"status_name"`
	AssignedTo    *string      `db:"assigned_to" json:"assigned_to,omitempty"`
	AssigneeName  *string      `db:"assignee_name" json:"assignee_name,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	CreatedByName string       `db:"created_by_name" json:"created_by_name"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
	UpdatedByName *string      `db:"updated_by_name" json:"updated_by_name,omitempty"`
}

// CreateTaskRequest is the payload for creating a task.
type CreateTaskRequest struct {
	Title       string       `json:"title" validate:"required,max=200"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH"`
	StatusID    string       `json:"status_id" validate:"required,uuid4"`
	AssignedTo  *string      `json:"assigned_to" validate:"omitempty,uuid4"`
}

// UpdateTaskRequest is the payload for editing a task.
type UpdateTaskRequest struct {
	Title       string       `json:"title" validate:"required,max=200"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH"`
	StatusID    string       `json:"status_id" validate:"required,uuid4"`
	AssignedTo  *string      `json:"assigned_to" validate:"omitempty,uuid4"`
}

// ChangeStatusRequest moves a task to another status.
type ChangeStatusRequest struct {
	StatusID string `json:"status_id" validate:"required,uuid4"`
}

// Status is a workflow state tasks move through, ordered by sort_order.
type Status struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	SortOrder int       `db:"sort_order" json:"sort_order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
}

// StatusRequest creates or updates a workflow status.
type StatusRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
}

// CommentRequest creates or edits a comment.
type CommentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// Comment is a user note attached to a task.
type Comment struct {
	ID        string    `db:"id" json:"id"`
	TaskID    string    `db:"task_id" json:"task_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CommentResponse carries the author name for display.
type CommentResponse struct {
	Comment
	AuthorName string `db:"author_name" json:"author_name"`
}
