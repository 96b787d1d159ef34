package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
)

type mockTaskRepo struct {
	tasks       map[string]*models.Task
	responses   map[string]*models.TaskResponse
	listAll     []models.TaskResponse
	listMine    []models.TaskResponse
	listAllHits int
	listMineFor string
	deleted     []string
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: map[string]*models.Task{}, responses: map[string]*models.TaskResponse{}}
}

func (m *mockTaskRepo) List(ctx context.Context) ([]models.TaskResponse, error) {
	m.listAllHits++
	return m.listAll, nil
}

func (m *mockTaskRepo) ListByAssignee(ctx context.Context, userID string) ([]models.TaskResponse, error) {
	m.listMineFor = userID
	return m.listMine, nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*models.TaskResponse, error) {
	if resp, ok := m.responses[id]; ok {
		return resp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskRepo) FindRowByID(ctx context.Context, id string) (*models.Task, error) {
	if task, ok := m.tasks[id]; ok {
		return task, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskRepo) Create(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = "t-new"
	}
	m.tasks[task.ID] = task
	m.responses[task.ID] = &models.TaskResponse{ID: task.ID, Title: task.Title, Priority: task.Priority, StatusID: task.StatusID, AssignedTo: task.AssignedTo}
	return nil
}

func (m *mockTaskRepo) Update(ctx context.Context, task *models.Task) error {
	if _, ok := m.tasks[task.ID]; !ok {
		return sql.ErrNoRows
	}
	m.tasks[task.ID] = task
	m.responses[task.ID] = &models.TaskResponse{ID: task.ID, Title: task.Title, Priority: task.Priority, StatusID: task.StatusID, AssignedTo: task.AssignedTo}
	return nil
}

func (m *mockTaskRepo) ChangeStatus(ctx context.Context, taskID, statusID, updatedBy string) error {
	task, ok := m.tasks[taskID]
	if !ok {
		return sql.ErrNoRows
	}
	task.StatusID = statusID
	m.responses[taskID].StatusID = statusID
	return nil
}

func (m *mockTaskRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.tasks, id)
	delete(m.responses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockStatusReader struct {
	statuses map[string]*models.Status
}

func (m *mockStatusReader) FindByID(ctx context.Context, id string) (*models.Status, error) {
	if status, ok := m.statuses[id]; ok {
		return status, nil
	}
	return nil, sql.ErrNoRows
}

type mockHistory struct {
	activity []models.ActivityLog
	history  []models.TaskStatusHistory
}

func (m *mockHistory) InsertActivityLog(ctx context.Context, log *models.ActivityLog) error {
	m.activity = append(m.activity, *log)
	return nil
}

func (m *mockHistory) InsertStatusHistory(ctx context.Context, entry *models.TaskStatusHistory) error {
	m.history = append(m.history, *entry)
	return nil
}

func newTaskFixture() (*TaskService, *mockTaskRepo, *mockHistory) {
	repo := newMockTaskRepo()
	statuses := &mockStatusReader{statuses: map[string]*models.Status{
		"11111111-1111-4111-8111-111111111111": {ID: "11111111-1111-4111-8111-111111111111", Name: "Open", Active: true},
		"22222222-2222-4222-8222-222222222222": {ID: "22222222-2222-4222-8222-222222222222", Name: "Done", Active: true},
		"33333333-3333-4333-8333-333333333333": {ID: "33333333-3333-4333-8333-333333333333", Name: "Retired", Active: false},
	}}
	history := &mockHistory{}
	cache := NewCacheService(nil, nil, 0, zap.NewNop(), false)
	svc := NewTaskService(repo, statuses, history, cache, validator.New(), zap.NewNop())
	return svc, repo, history
}

const (
	statusOpen    = "11111111-1111-4111-8111-111111111111"
	statusDone    = "22222222-2222-4222-8222-222222222222"
	statusRetired = "33333333-3333-4333-8333-333333333333"
)

func adminClaims() *models.Claims {
	return &models.Claims{UserID: "admin", Roles: []string{models.RoleAdmin}}
}

func userClaims(perms ...string) *models.Claims {
	return &models.Claims{UserID: "u1", Roles: []string{models.RoleUser}, Permissions: perms}
}

func TestTaskListScopesToAssigneeWithoutViewAll(t *testing.T) {
	svc, repo, _ := newTaskFixture()
	repo.listMine = []models.TaskResponse{{ID: "t1"}}

	tasks, err := svc.List(context.Background(), userClaims())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, "u1", repo.listMineFor)
	assert.Zero(t, repo.listAllHits)
}

func TestTaskListViewAllSeesEverything(t *testing.T) {
	svc, repo, _ := newTaskFixture()
	repo.listAll = []models.TaskResponse{{ID: "t1"}, {ID: "t2"}}

	tasks, err := svc.List(context.Background(), userClaims(PermissionTasksViewAll))
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Equal(t, 1, repo.listAllHits)
}

func TestTaskGetForbiddenForForeignAssignment(t *testing.T) {
	svc, repo, _ := newTaskFixture()
	other := "u9"
	repo.responses["t1"] = &models.TaskResponse{ID: "t1", AssignedTo: &other}

	_, err := svc.Get(context.Background(), userClaims(), "t1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTaskCreateSeedsStatusHistory(t *testing.T) {
	svc, _, history := newTaskFixture()

	task, err := svc.Create(context.Background(), adminClaims(), models.CreateTaskRequest{
		Title:    "Ship release",
		Priority: models.PriorityHigh,
		StatusID: statusOpen,
	})
	require.NoError(t, err)
	require.Len(t, history.history, 1)
	assert.Equal(t, task.ID, history.history[0].TaskID)
	assert.Equal(t, statusOpen, history.history[0].StatusID)
	require.Len(t, history.activity, 1)
	assert.Equal(t, models.ActivityCreate, history.activity[0].Action)
}

func TestTaskCreateRejectsInactiveStatus(t *testing.T) {
	svc, _, _ := newTaskFixture()

	_, err := svc.Create(context.Background(), adminClaims(), models.CreateTaskRequest{
		Title:    "Ship release",
		Priority: models.PriorityLow,
		StatusID: statusRetired,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTaskCreateAssignRequiresPermission(t *testing.T) {
	svc, _, _ := newTaskFixture()
	assignee := "7c9a4f0e-2d1b-4e8a-9c3f-5b6d7e8f9a0b"

	_, err := svc.Create(context.Background(), userClaims(PermissionTasksCreate), models.CreateTaskRequest{
		Title:      "Assigned work",
		Priority:   models.PriorityLow,
		StatusID:   statusOpen,
		AssignedTo: &assignee,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), userClaims(PermissionTasksCreate, PermissionTasksAssign), models.CreateTaskRequest{
		Title:      "Assigned work",
		Priority:   models.PriorityLow,
		StatusID:   statusOpen,
		AssignedTo: &assignee,
	})
	require.NoError(t, err)
}

func TestTaskChangeStatusAppendsHistory(t *testing.T) {
	svc, repo, history := newTaskFixture()
	repo.tasks["t1"] = &models.Task{ID: "t1", StatusID: statusOpen}
	repo.responses["t1"] = &models.TaskResponse{ID: "t1", StatusID: statusOpen}

	task, err := svc.ChangeStatus(context.Background(), adminClaims(), "t1", models.ChangeStatusRequest{StatusID: statusDone})
	require.NoError(t, err)
	assert.Equal(t, statusDone, task.StatusID)
	require.Len(t, history.history, 1)
	assert.Equal(t, statusDone, history.history[0].StatusID)
	require.Len(t, history.activity, 1)
	assert.Equal(t, models.ActivityStatusChange, history.activity[0].Action)
}

func TestTaskChangeStatusSameStatusNoHistory(t *testing.T) {
	svc, repo, history := newTaskFixture()
	repo.tasks["t1"] = &models.Task{ID: "t1", StatusID: statusOpen}
	repo.responses["t1"] = &models.TaskResponse{ID: "t1", StatusID: statusOpen}

	_, err := svc.ChangeStatus(context.Background(), adminClaims(), "t1", models.ChangeStatusRequest{StatusID: statusOpen})
	require.NoError(t, err)
	assert.Empty(t, history.history)
	assert.Empty(t, history.activity)
}

func TestTaskUpdateRecordsStatusTransition(t *testing.T) {
	svc, repo, history := newTaskFixture()
	repo.tasks["t1"] = &models.Task{ID: "t1", Title: "Old", StatusID: statusOpen, Priority: models.PriorityLow}
	repo.responses["t1"] = &models.TaskResponse{ID: "t1", StatusID: statusOpen}

	_, err := svc.Update(context.Background(), adminClaims(), "t1", models.UpdateTaskRequest{
		Title:    "New title",
		Priority: models.PriorityHigh,
		StatusID: statusDone,
	})
	require.NoError(t, err)
	require.Len(t, history.history, 1)
	assert.Equal(t, statusDone, history.history[0].StatusID)
}

func TestTaskDeleteNotFound(t *testing.T) {
	svc, _, _ := newTaskFixture()

	err := svc.Delete(context.Background(), adminClaims(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
