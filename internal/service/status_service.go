package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
)

type statusRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Status, error)
	FindByID(ctx context.Context, id string) (*models.Status, error)
	Create(ctx context.Context, status *models.Status) error
	Update(ctx context.Context, status *models.Status) error
	InUse(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// StatusService provides workflow status administration.
type StatusService struct {
	repo      statusRepository
	activity  activityLogWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStatusService constructs a StatusService instance.
func NewStatusService(repo statusRepository, activity activityLogWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StatusService{repo: repo, activity: activity, cache: cache, validator: validate, logger: logger}
}

// List returns statuses. Non-admin consumers typically request active only.
func (s *StatusService) List(ctx context.Context, activeOnly bool) ([]models.Status, error) {
	statuses, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list statuses")
	}
	return statuses, nil
}

// Get returns one status by ID.
func (s *StatusService) Get(ctx context.Context, id string) (*models.Status, error) {
	status, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "status not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status")
	}
	return status, nil
}

// Create inserts a workflow status.
func (s *StatusService) Create(ctx context.Context, actor *models.Claims, req models.StatusRequest) (*models.Status, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	status := &models.Status{
		Name:      req.Name,
		Active:    req.Active,
		SortOrder: req.SortOrder,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create status")
	}

	s.recordActivity(ctx, actor.UserID, models.ActivityCreate, status.ID)
	s.invalidateStats(ctx)
	return status, nil
}

// Update modifies a workflow status.
func (s *StatusService) Update(ctx context.Context, actor *models.Claims, id string, req models.StatusRequest) (*models.Status, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "status not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status")
	}

	updated := *existing
	updated.Name = req.Name
	updated.Active = req.Active
	updated.SortOrder = req.SortOrder
	updated.UpdatedBy = &actor.UserID

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	s.recordActivity(ctx, actor.UserID, models.ActivityUpdate, id)
	s.invalidateStats(ctx)
	return &updated, nil
}

// Delete removes an unused status. A status still referenced by tasks is
// deactivated instead so history stays resolvable.
func (s *StatusService) Delete(ctx context.Context, actor *models.Claims, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "status not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status")
	}

	inUse, err := s.repo.InUse(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check status usage")
	}

	if inUse {
		deactivated := *existing
		deactivated.Active = false
		deactivated.UpdatedBy = &actor.UserID
		if err := s.repo.Update(ctx, &deactivated); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate status")
		}
	} else {
		if err := s.repo.Delete(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete status")
		}
	}

	s.recordActivity(ctx, actor.UserID, models.ActivityDelete, id)
	s.invalidateStats(ctx)
	return nil
}

func (s *StatusService) recordActivity(ctx context.Context, actorID, action, statusID string) {
	if err := s.activity.InsertActivityLog(ctx, &models.ActivityLog{
		UserID:      actorID,
		Action:      action,
		TargetTable: "statuses",
		TargetID:    statusID,
	}); err != nil {
		s.logger.Warn("failed to record activity log", zap.Error(err))
	}
}

func (s *StatusService) invalidateStats(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, statsCacheKeyPattern); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
	}
}
