package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
	"github.com/noah-isme/task-manager-api/pkg/export"
	"github.com/noah-isme/task-manager-api/pkg/jobs"
	"github.com/noah-isme/task-manager-api/pkg/storage"
)

type exportJobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	MarkFinished(ctx context.Context, id, filePath string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type exportTaskSource interface {
	List(ctx context.Context) ([]models.TaskResponse, error)
}

type exportLoginLogSource interface {
	ListAllLoginLogs(ctx context.Context) ([]models.LoginLog, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService runs dataset exports as background jobs. Requests are
// persisted, queued, rendered by a worker and served back through
// HMAC-signed download URLs.
type ExportService struct {
	repo      exportJobRepository
	tasks     exportTaskSource
	loginLogs exportLoginLogSource
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. Call BindQueue before
// enqueuing work.
func NewExportService(repo exportJobRepository, tasks exportTaskSource, loginLogs exportLoginLogSource, store fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		repo:      repo,
		tasks:     tasks,
		loginLogs: loginLogs,
		storage:   store,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		signer:    signer,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// BindQueue attaches the worker queue used for asynchronous processing.
func (s *ExportService) BindQueue(queue *jobs.Queue) {
	s.queue = queue
}

// HandleJob is the queue handler: it renders the requested dataset and
// stores the file. Runs on a worker goroutine, outside any request.
func (s *ExportService) HandleJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected export payload %T", job.Payload)
	}
	return s.process(ctx, id)
}

// Enqueue persists a queued export job and schedules it.
func (s *ExportService) Enqueue(ctx context.Context, claims *models.Claims, kind models.ExportKind, format models.ExportFormat) (*models.ExportJob, error) {
	switch kind {
	case models.ExportKindTasks, models.ExportKindLoginLogs:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export kind")
	}
	switch format {
	case models.ExportFormatCSV, models.ExportFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	job := &models.ExportJob{
		Kind:      kind,
		Format:    format,
		Status:    models.ExportStatusQueued,
		CreatedBy: claims.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue is not running")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "export", Payload: job.ID}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, job.ID, "queue unavailable"); markErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule export job")
	}
	return job, nil
}

// Status returns job metadata. Only the requesting user or an admin may
// inspect a job. A finished job carries a signed download URL.
func (s *ExportService) Status(ctx context.Context, claims *models.Claims, id string) (*models.ExportJob, string, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.CreatedBy != claims.UserID && !claims.HasRole(models.RoleAdmin) {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "export job does not belong to you")
	}

	var url string
	if job.Status == models.ExportStatusFinished && job.FilePath != nil {
		token, _, err := s.signer.Generate(job.ID, *job.FilePath)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
		}
		prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
		if prefix == "" {
			prefix = "/api"
		}
		url = fmt.Sprintf("%s/statistics/export/%s/download?token=%s", prefix, job.ID, token)
	}
	return job, url, nil
}

// OpenDownload validates a signed token and returns the file handle.
func (s *ExportService) OpenDownload(ctx context.Context, jobID, token string) (*os.File, *models.ExportJob, error) {
	tokenJobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	if tokenJobID != jobID {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match job")
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished || job.FilePath == nil || *job.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "export file is not available")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return file, job, nil
}

// Cleanup removes export files older than the configured TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

func (s *ExportService) process(ctx context.Context, id string) error {
	start := time.Now()
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", id, err)
	}

	if err := s.repo.MarkProcessing(ctx, id); err != nil {
		return err
	}

	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		s.fail(ctx, job, start, err)
		return err
	}
	if err := s.repo.UpdateProgress(ctx, id, 50); err != nil {
		s.logger.Warn("failed to update export progress", zap.Error(err))
	}

	var payload []byte
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		s.fail(ctx, job, start, err)
		return err
	}

	filename := fmt.Sprintf("%s_%s.%s", job.Kind, time.Now().UTC().Format("20060102_150405"), job.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.fail(ctx, job, start, err)
		return err
	}

	if err := s.repo.MarkFinished(ctx, id, relPath); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveExport(string(job.Kind), string(job.Format), "success", time.Since(start))
	}
	s.logger.Info("export finished",
		zap.String("job_id", id),
		zap.String("kind", string(job.Kind)),
		zap.String("format", string(job.Format)))
	return nil
}

func (s *ExportService) fail(ctx context.Context, job *models.ExportJob, start time.Time, cause error) {
	if err := s.repo.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.ObserveExport(string(job.Kind), string(job.Format), "failure", time.Since(start))
	}
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	switch job.Kind {
	case models.ExportKindTasks:
		return s.buildTaskDataset(ctx)
	case models.ExportKindLoginLogs:
		return s.buildLoginLogDataset(ctx)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export kind %s", job.Kind)
	}
}

func (s *ExportService) buildTaskDataset(ctx context.Context) (export.Dataset, string, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, map[string]string{
			"Title":      task.Title,
			"Priority":   string(task.Priority),
			"Status":     task.StatusName,
			"Assignee":   derefString(task.AssigneeName),
			"Created By": task.CreatedByName,
			"Created At": task.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Title", "Priority", "Status", "Assignee", "Created By", "Created At"},
		Rows:    rows,
	}
	return dataset, "Task Report", nil
}

func (s *ExportService) buildLoginLogDataset(ctx context.Context) (export.Dataset, string, error) {
	logs, err := s.loginLogs.ListAllLoginLogs(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(logs))
	for _, log := range logs {
		outcome := "FAILURE"
		if log.Success {
			outcome = "SUCCESS"
		}
		rows = append(rows, map[string]string{
			"Email":      log.Email,
			"Outcome":    outcome,
			"IP":         log.AttemptIP,
			"User Agent": log.UserAgent,
			"At":         log.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Email", "Outcome", "IP", "User Agent", "At"},
		Rows:    rows,
	}
	return dataset, "Login Audit Report", nil
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
