package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindWithRoles(ctx context.Context, id string) (*models.UserWithRoles, error)
	ListWithRoles(ctx context.Context) ([]models.UserWithRoles, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]models.Role, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	ValidRoleIDs(ctx context.Context, roleIDs []string) ([]string, error)
	AssignRoles(ctx context.Context, userID string, roleIDs []string) error
}

type activityLogWriter interface {
	InsertActivityLog(ctx context.Context, log *models.ActivityLog) error
}

// UserService provides user administration use cases.
type UserService struct {
	repo      userRepository
	activity  activityLogWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, activity activityLogWriter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, activity: activity, validator: validate, logger: logger}
}

// List returns all users with their roles.
func (s *UserService) List(ctx context.Context) ([]models.UserWithRoles, error) {
	users, err := s.repo.ListWithRoles(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, nil
}

// Get returns one user with roles.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserWithRoles, error) {
	user, err := s.repo.FindWithRoles(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions a new account with the requested roles.
func (s *UserService) Create(ctx context.Context, actor *models.Claims, req models.CreateUserRequest) (*models.UserWithRoles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	email := normalizeEmail(req.Email)
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Active:       req.Active,
		CreatedBy:    &actor.UserID,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if len(req.RoleIDs) > 0 {
		if err := s.assignValidatedRoles(ctx, user.ID, req.RoleIDs); err != nil {
			return nil, err
		}
	}

	s.recordActivity(ctx, actor.UserID, models.ActivityCreate, "users", user.ID)
	return s.Get(ctx, user.ID)
}

// Update modifies profile fields and the active flag.
func (s *UserService) Update(ctx context.Context, actor *models.Claims, id string, req models.UpdateUserRequest) (*models.UserWithRoles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	existing, err := s.repo.FindWithRoles(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	email := normalizeEmail(req.Email)
	if email != existing.Email {
		if _, err := s.repo.FindByEmail(ctx, email); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
	}

	updated := existing.User
	updated.Email = email
	updated.Name = req.Name
	updated.Active = req.Active
	updated.UpdatedBy = &actor.UserID

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordActivity(ctx, actor.UserID, models.ActivityUpdate, "users", id)
	return s.Get(ctx, id)
}

// Delete removes a user. Self-deletion is rejected so an admin cannot lock
// themselves out mid-session.
func (s *UserService) Delete(ctx context.Context, actor *models.Claims, id string) error {
	if actor.UserID == id {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete own account")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.recordActivity(ctx, actor.UserID, models.ActivityDelete, "users", id)
	return nil
}

// AssignRoles replaces a user's role set with the requested one.
func (s *UserService) AssignRoles(ctx context.Context, actor *models.Claims, id string, req models.AssignRolesRequest) (*models.UserWithRoles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	if _, err := s.repo.FindWithRoles(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.assignValidatedRoles(ctx, id, req.RoleIDs); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, actor.UserID, models.ActivityUpdate, "user_roles", id)
	return s.Get(ctx, id)
}

// ListRoles returns all roles.
func (s *UserService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	return roles, nil
}

// ListPermissions returns all permissions.
func (s *UserService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	permissions, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list permissions")
	}
	return permissions, nil
}

func (s *UserService) assignValidatedRoles(ctx context.Context, userID string, roleIDs []string) error {
	valid, err := s.repo.ValidRoleIDs(ctx, roleIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate roles")
	}
	if len(valid) != len(roleIDs) {
		return appErrors.Clone(appErrors.ErrValidation, "one or more roles do not exist")
	}
	if err := s.repo.AssignRoles(ctx, userID, roleIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign roles")
	}
	return nil
}

func (s *UserService) recordActivity(ctx context.Context, actorID, action, table, targetID string) {
	if err := s.activity.InsertActivityLog(ctx, &models.ActivityLog{
		UserID:      actorID,
		Action:      action,
		TargetTable: table,
		TargetID:    targetID,
	}); err != nil {
		s.logger.Warn("failed to record activity log", zap.Error(err))
	}
}
