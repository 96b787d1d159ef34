package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
)

type logRepository interface {
	ListLoginLogs(ctx context.Context, page, pageSize int) ([]models.LoginLog, int, error)
	ListActivityLogs(ctx context.Context, page, pageSize int) ([]models.ActivityLogResponse, int, error)
	ListStatusHistory(ctx context.Context, taskID string) ([]models.TaskStatusHistoryResponse, error)
}

// LoggingService exposes the audit trails to admin consumers.
type LoggingService struct {
	repo   logRepository
	logger *zap.Logger
}

// NewLoggingService constructs a LoggingService instance.
func NewLoggingService(repo logRepository, logger *zap.Logger) *LoggingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingService{repo: repo, logger: logger}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// LoginLogs returns login attempts newest first.
func (s *LoggingService) LoginLogs(ctx context.Context, page, pageSize int) ([]models.LoginLog, *models.Pagination, error) {
	page, pageSize = normalizePage(page, pageSize)
	logs, total, err := s.repo.ListLoginLogs(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list login logs")
	}
	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ActivityLogs returns recorded mutations newest first.
func (s *LoggingService) ActivityLogs(ctx context.Context, page, pageSize int) ([]models.ActivityLogResponse, *models.Pagination, error) {
	page, pageSize = normalizePage(page, pageSize)
	logs, total, err := s.repo.ListActivityLogs(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity logs")
	}
	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// StatusHistory returns the status transitions of one task, newest first.
func (s *LoggingService) StatusHistory(ctx context.Context, taskID string) ([]models.TaskStatusHistoryResponse, error) {
	entries, err := s.repo.ListStatusHistory(ctx, taskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list status history")
	}
	return entries, nil
}
