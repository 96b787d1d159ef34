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

// Permission names checked by task operations. Admins bypass these checks
// entirely in the middleware layer.
const (
	PermissionTasksViewAll = "tasks.view_all"
	PermissionTasksCreate  = "tasks.create"
	PermissionTasksEdit    = "tasks.edit"
	PermissionTasksDelete  = "tasks.delete"
	PermissionTasksAssign  = "tasks.assign"
	PermissionUsersManage  = "users.manage"
	PermissionRolesAssign  = "roles.assign"
)

type taskRepository interface {
	List(ctx context.Context) ([]models.TaskResponse, error)
	ListByAssignee(ctx context.Context, userID string) ([]models.TaskResponse, error)
	FindByID(ctx context.Context, id string) (*models.TaskResponse, error)
	FindRowByID(ctx context.Context, id string) (*models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task) error
	ChangeStatus(ctx context.Context, taskID, statusID, updatedBy string) error
	Delete(ctx context.Context, id string) error
}

type taskStatusRepository interface {
	FindByID(ctx context.Context, id string) (*models.Status, error)
}

type statusHistoryWriter interface {
	InsertActivityLog(ctx context.Context, log *models.ActivityLog) error
	InsertStatusHistory(ctx context.Context, entry *models.TaskStatusHistory) error
}

// TaskService provides task management use cases.
type TaskService struct {
	repo      taskRepository
	statuses  taskStatusRepository
	history   statusHistoryWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTaskService constructs a TaskService instance.
func NewTaskService(repo taskRepository, statuses taskStatusRepository, history statusHistoryWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TaskService{repo: repo, statuses: statuses, history: history, cache: cache, validator: validate, logger: logger}
}

// List returns the tasks visible to the caller. Without tasks.view_all the
// view narrows to the caller's own assignments.
func (s *TaskService) List(ctx context.Context, claims *models.Claims) ([]models.TaskResponse, error) {
	var (
		tasks []models.TaskResponse
		err   error
	)
	if claims.HasRole(models.RoleAdmin) || claims.HasPermission(PermissionTasksViewAll) {
		tasks, err = s.repo.List(ctx)
	} else {
		tasks, err = s.repo.ListByAssignee(ctx, claims.UserID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, nil
}

// ListMine returns the caller's own assignments regardless of wider
// visibility.
func (s *TaskService) ListMine(ctx context.Context, claims *models.Claims) ([]models.TaskResponse, error) {
	tasks, err := s.repo.ListByAssignee(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, nil
}

// Get returns one task. Callers without tasks.view_all can only read tasks
// assigned to them.
func (s *TaskService) Get(ctx context.Context, claims *models.Claims, id string) (*models.TaskResponse, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	if !claims.HasRole(models.RoleAdmin) && !claims.HasPermission(PermissionTasksViewAll) {
		if task.AssignedTo == nil || *task.AssignedTo != claims.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "task is not assigned to you")
		}
	}
	return task, nil
}

// Create inserts a new task and seeds its status history with the initial
// status.
func (s *TaskService) Create(ctx context.Context, claims *models.Claims, req models.CreateTaskRequest) (*models.TaskResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	status, err := s.statuses.FindByID(ctx, req.StatusID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status")
	}
	if !status.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status is not active")
	}

	if req.AssignedTo != nil && !claims.HasRole(models.RoleAdmin) && !claims.HasPermission(PermissionTasksAssign) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "missing permission to assign tasks")
	}

	task := &models.Task{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		StatusID:    req.StatusID,
		AssignedTo:  req.AssignedTo,
		CreatedBy:   claims.UserID,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}

	if err := s.history.InsertStatusHistory(ctx, &models.TaskStatusHistory{
		TaskID:    task.ID,
		StatusID:  task.StatusID,
		ChangedBy: claims.UserID,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record status history")
	}

	s.recordActivity(ctx, claims.UserID, models.ActivityCreate, task.ID)
	s.invalidateStats(ctx)
	return s.repo.FindByID(ctx, task.ID)
}

// Update edits a task. A status change through this path is recorded in the
// history exactly as an explicit status change would be.
func (s *TaskService) Update(ctx context.Context, claims *models.Claims, id string, req models.UpdateTaskRequest) (*models.TaskResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	existing, err := s.repo.FindRowByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	statusChanged := existing.StatusID != req.StatusID
	if statusChanged {
		status, err := s.statuses.FindByID(ctx, req.StatusID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "status does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status")
		}
		if !status.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status is not active")
		}
	}

	assignmentChanged := !equalAssignee(existing.AssignedTo, req.AssignedTo)
	if assignmentChanged && !claims.HasRole(models.RoleAdmin) && !claims.HasPermission(PermissionTasksAssign) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "missing permission to assign tasks")
	}

	updated := *existing
	updated.Title = req.Title
	updated.Description = req.Description
	updated.Priority = req.Priority
	updated.StatusID = req.StatusID
	updated.AssignedTo = req.AssignedTo
	updated.UpdatedBy = &claims.UserID

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}

	if statusChanged {
		if err := s.history.InsertStatusHistory(ctx, &models.TaskStatusHistory{
			TaskID:    id,
			StatusID:  req.StatusID,
			ChangedBy: claims.UserID,
		}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record status history")
		}
	}

	s.recordActivity(ctx, claims.UserID, models.ActivityUpdate, id)
	s.invalidateStats(ctx)
	return s.repo.FindByID(ctx, id)
}

// ChangeStatus moves a task to another status and appends the transition to
// the history. Moving to the current status is a no-op.
func (s *TaskService) ChangeStatus(ctx context.Context, claims *models.Claims, id string, req models.ChangeStatusRequest) (*models.TaskResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	existing, err := s.repo.FindRowByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	if existing.StatusID == req.StatusID {
		return s.repo.FindByID(ctx, id)
	}

	status, err := s.statuses.FindByID(ctx, req.StatusID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status")
	}
	if !status.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status is not active")
	}

	if err := s.repo.ChangeStatus(ctx, id, req.StatusID, claims.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change status")
	}

	if err := s.history.InsertStatusHistory(ctx, &models.TaskStatusHistory{
		TaskID:    id,
		StatusID:  req.StatusID,
		ChangedBy: claims.UserID,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record status history")
	}

	s.recordActivity(ctx, claims.UserID, models.ActivityStatusChange, id)
	s.invalidateStats(ctx)
	return s.repo.FindByID(ctx, id)
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, claims *models.Claims, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete task")
	}

	s.recordActivity(ctx, claims.UserID, models.ActivityDelete, id)
	s.invalidateStats(ctx)
	return nil
}

func (s *TaskService) recordActivity(ctx context.Context, actorID, action, taskID string) {
	if err := s.history.InsertActivityLog(ctx, &models.ActivityLog{
		UserID:      actorID,
		Action:      action,
		TargetTable: "tasks",
		TargetID:    taskID,
	}); err != nil {
		s.logger.Warn("failed to record activity log", zap.Error(err))
	}
}

func (s *TaskService) invalidateStats(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, statsCacheKeyPattern); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
	}
}

func equalAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
