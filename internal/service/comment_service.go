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

type commentRepository interface {
	ListForTask(ctx context.Context, taskID string) ([]models.CommentResponse, error)
	FindByID(ctx context.Context, id string) (*models.Comment, error)
	Create(ctx context.Context, comment *models.Comment) error
	Update(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
}

type commentTaskReader interface {
	FindRowByID(ctx context.Context, id string) (*models.Task, error)
}

// CommentService provides task comment use cases. Comments may only be
// edited or deleted by their author or an admin.
type CommentService struct {
	repo      commentRepository
	tasks     commentTaskReader
	activity  activityLogWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCommentService constructs a CommentService instance.
func NewCommentService(repo commentRepository, tasks commentTaskReader, activity activityLogWriter, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CommentService{repo: repo, tasks: tasks, activity: activity, validator: validate, logger: logger}
}

// ListForTask returns the comments on a task, oldest first.
func (s *CommentService) ListForTask(ctx context.Context, taskID string) ([]models.CommentResponse, error) {
	if _, err := s.tasks.FindRowByID(ctx, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	comments, err := s.repo.ListForTask(ctx, taskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// Create adds a comment to a task.
func (s *CommentService) Create(ctx context.Context, claims *models.Claims, taskID string, req models.CommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	if _, err := s.tasks.FindRowByID(ctx, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	comment := &models.Comment{
		TaskID:  taskID,
		UserID:  claims.UserID,
		Content: req.Content,
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}

	s.recordActivity(ctx, claims.UserID, models.ActivityCreate, comment.ID)
	return comment, nil
}

// Update edits a comment's content.
func (s *CommentService) Update(ctx context.Context, claims *models.Claims, id string, req models.CommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	comment, err := s.authorize(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, req.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update comment")
	}

	comment.Content = req.Content
	s.recordActivity(ctx, claims.UserID, models.ActivityUpdate, id)
	return comment, nil
}

// Delete removes a comment.
func (s *CommentService) Delete(ctx context.Context, claims *models.Claims, id string) error {
	if _, err := s.authorize(ctx, claims, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}

	s.recordActivity(ctx, claims.UserID, models.ActivityDelete, id)
	return nil
}

func (s *CommentService) authorize(ctx context.Context, claims *models.Claims, id string) (*models.Comment, error) {
	comment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}
	if comment.UserID != claims.UserID && !claims.HasRole(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "comment does not belong to you")
	}
	return comment, nil
}

func (s *CommentService) recordActivity(ctx context.Context, actorID, action, commentID string) {
	if err := s.activity.InsertActivityLog(ctx, &models.ActivityLog{
		UserID:      actorID,
		Action:      action,
		TargetTable: "comments",
		TargetID:    commentID,
	}); err != nil {
		s.logger.Warn("failed to record activity log", zap.Error(err))
	}
}
