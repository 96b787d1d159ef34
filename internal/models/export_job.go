package models

import "time"

// ExportKind enumerates exportable datasets.
type ExportKind string

const (
	ExportKindTasks     ExportKind = "tasks"
	ExportKindLoginLogs ExportKind = "login-logs"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportRequest selects what to export and in which format.
type ExportRequest struct {
	Kind   ExportKind   `json:"kind" validate:"required"`
	Format ExportFormat `json:"format" validate:"required"`
}

// ExportJob is the persisted metadata of one background export.
type ExportJob struct {
	ID         string       `db:"id" json:"id"`
	Kind       ExportKind   `db:"kind" json:"kind"`
	Format     ExportFormat `db:"format" json:"format"`
	Status     ExportStatus `db:"status" json:"status"`
	Progress   int          `db:"progress" json:"progress"`
	FilePath   *string      `db:"file_path" json:"-"`
	Error      *string      `db:"error" json:"error,omitempty"`
	CreatedBy  string       `db:"created_by" json:"created_by"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	FinishedAt *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
