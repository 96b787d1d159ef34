package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
)

// Cache keys used by the statistics endpoints. Task mutations invalidate
// the whole namespace.
const (
	statsCacheKeyPattern  = "stats:*"
	statsCacheKeySummary  = "stats:summary"
	statsCacheKeyStatus   = "stats:chart:status"
	statsCacheKeyPriority = "stats:chart:priority"
	statsCacheKeyUsers    = "stats:users"
)

type statsRepository interface {
	CountTotal(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) ([]models.TaskCountByStatus, error)
	CountByPriority(ctx context.Context) ([]models.TaskCountByPriority, error)
}

type statsUserSource interface {
	Count(ctx context.Context) (int, error)
}

// StatsService aggregates task counts into dashboard payloads with a Redis
// cache in front of the grouping queries.
type StatsService struct {
	repo   statsRepository
	users  statsUserSource
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatsService constructs a StatsService instance.
func NewStatsService(repo statsRepository, users statsUserSource, cache *CacheService, ttl time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatsService{repo: repo, users: users, cache: cache, ttl: ttl, logger: logger}
}

// UserCount returns the total number of accounts.
func (s *StatsService) UserCount(ctx context.Context) (int, error) {
	var cached int
	if hit, _ := s.cache.Get(ctx, statsCacheKeyUsers, &cached); hit {
		return cached, nil
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}

	if err := s.cache.Set(ctx, statsCacheKeyUsers, count, s.ttl); err != nil {
		s.logger.Warn("failed to cache user count", zap.Error(err))
	}
	return count, nil
}

// Summary returns headline counts grouped by status and priority.
func (s *StatsService) Summary(ctx context.Context) (*models.TaskStatsSummary, error) {
	var cached models.TaskStatsSummary
	if hit, _ := s.cache.Get(ctx, statsCacheKeySummary, &cached); hit {
		return &cached, nil
	}

	total, err := s.repo.CountTotal(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count tasks")
	}
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by status")
	}
	byPriority, err := s.repo.CountByPriority(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by priority")
	}

	summary := &models.TaskStatsSummary{TotalTasks: total, ByStatus: byStatus, ByPriority: byPriority}
	if err := s.cache.Set(ctx, statsCacheKeySummary, summary, s.ttl); err != nil {
		s.logger.Warn("failed to cache statistics summary", zap.Error(err))
	}
	return summary, nil
}

// StatusChart returns a pie chart of task counts per active status.
func (s *StatsService) StatusChart(ctx context.Context) (*models.ChartData, error) {
	var cached models.ChartData
	if hit, _ := s.cache.Get(ctx, statsCacheKeyStatus, &cached); hit {
		return &cached, nil
	}

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by status")
	}

	labels := make([]string, 0, len(counts))
	data := make([]float64, 0, len(counts))
	for _, c := range counts {
		labels = append(labels, c.StatusName)
		data = append(data, float64(c.TaskCount))
	}

	chart := &models.ChartData{
		ChartType: "pie",
		Title:     "Tasks by Status",
		Labels:    labels,
		Series:    []models.DataSeries{{Name: "Tasks", Data: data}},
	}
	if err := s.cache.Set(ctx, statsCacheKeyStatus, chart, s.ttl); err != nil {
		s.logger.Warn("failed to cache status chart", zap.Error(err))
	}
	return chart, nil
}

// PriorityChart returns a bar chart of task counts per priority.
func (s *StatsService) PriorityChart(ctx context.Context) (*models.ChartData, error) {
	var cached models.ChartData
	if hit, _ := s.cache.Get(ctx, statsCacheKeyPriority, &cached); hit {
		return &cached, nil
	}

	counts, err := s.repo.CountByPriority(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by priority")
	}

	labels := make([]string, 0, len(counts))
	data := make([]float64, 0, len(counts))
	for _, c := range counts {
		labels = append(labels, c.Priority)
		data = append(data, float64(c.TaskCount))
	}

	chart := &models.ChartData{
		ChartType: "bar",
		Title:     "Tasks by Priority",
		Labels:    labels,
		Series:    []models.DataSeries{{Name: "Tasks", Data: data}},
	}
	if err := s.cache.Set(ctx, statsCacheKeyPriority, chart, s.ttl); err != nil {
		s.logger.Warn("failed to cache priority chart", zap.Error(err))
	}
	return chart, nil
}
