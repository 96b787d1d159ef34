package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/task-manager-api/internal/models"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
	"github.com/noah-isme/task-manager-api/pkg/jobs"
	"github.com/noah-isme/task-manager-api/pkg/storage"
)

type mockExportJobs struct {
	jobs map[string]*models.ExportJob
}

func (m *mockExportJobs) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = "job1"
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockExportJobs) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExportJobs) MarkProcessing(ctx context.Context, id string) error {
	m.jobs[id].Status = models.ExportStatusProcessing
	return nil
}

func (m *mockExportJobs) UpdateProgress(ctx context.Context, id string, progress int) error {
	m.jobs[id].Progress = progress
	return nil
}

func (m *mockExportJobs) MarkFinished(ctx context.Context, id, filePath string) error {
	job := m.jobs[id]
	job.Status = models.ExportStatusFinished
	job.Progress = 100
	job.FilePath = &filePath
	return nil
}

func (m *mockExportJobs) MarkFailed(ctx context.Context, id, message string) error {
	job := m.jobs[id]
	job.Status = models.ExportStatusFailed
	job.Error = &message
	return nil
}

type mockExportTasks struct {
	tasks []models.TaskResponse
}

func (m *mockExportTasks) List(ctx context.Context) ([]models.TaskResponse, error) {
	return m.tasks, nil
}

type mockExportLogs struct {
	logs []models.LoginLog
}

func (m *mockExportLogs) ListAllLoginLogs(ctx context.Context) ([]models.LoginLog, error) {
	return m.logs, nil
}

type tempStorage struct {
	dir string
}

func (s *tempStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return filename, nil
}

func (s *tempStorage) Open(filename string) (*os.File, error) {
	return os.Open(filepath.Join(s.dir, filename))
}

func (s *tempStorage) Delete(filename string) error {
	return os.Remove(filepath.Join(s.dir, filename))
}

func (s *tempStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	return nil, nil
}

func newExportFixture(t *testing.T) (*ExportService, *mockExportJobs) {
	t.Helper()
	repo := &mockExportJobs{jobs: map[string]*models.ExportJob{}}
	tasks := &mockExportTasks{tasks: []models.TaskResponse{
		{ID: "t1", Title: "Fix login", Priority: models.PriorityHigh, StatusName: "Open", CreatedByName: "Admin"},
	}}
	logs := &mockExportLogs{logs: []models.LoginLog{
		{ID: "l1", Email: "user@example.com", Success: true, AttemptIP: "10.0.0.1", CreatedAt: time.Now()},
	}}
	signer := storage.NewSignedURLSigner("signing-secret", time.Hour)
	store := &tempStorage{dir: t.TempDir()}
	svc := NewExportService(repo, tasks, logs, store, signer, nil, ExportConfig{APIPrefix: "/api"}, zap.NewNop())
	return svc, repo
}

func TestExportProcessTasksCSV(t *testing.T) {
	svc, repo := newExportFixture(t)
	repo.jobs["job1"] = &models.ExportJob{ID: "job1", Kind: models.ExportKindTasks, Format: models.ExportFormatCSV, Status: models.ExportStatusQueued, CreatedBy: "u1"}

	err := svc.HandleJob(context.Background(), jobs.Job{ID: "job1", Type: "export", Payload: "job1"})
	require.NoError(t, err)

	job := repo.jobs["job1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.FilePath)

	file, _, err := svc.OpenDownloadWithFreshToken(t, job)
	require.NoError(t, err)
	defer file.Close()
	content, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), "Fix login")
	assert.True(t, strings.HasPrefix(string(content), "Title,Priority,Status"))
}

// OpenDownloadWithFreshToken signs a token for the job and opens the file,
// mirroring the status-then-download handler flow.
func (s *ExportService) OpenDownloadWithFreshToken(t *testing.T, job *models.ExportJob) (*os.File, *models.ExportJob, error) {
	t.Helper()
	token, _, err := s.signer.Generate(job.ID, *job.FilePath)
	require.NoError(t, err)
	return s.OpenDownload(context.Background(), job.ID, token)
}

func TestExportStatusOwnership(t *testing.T) {
	svc, repo := newExportFixture(t)
	repo.jobs["job1"] = &models.ExportJob{ID: "job1", Kind: models.ExportKindTasks, Format: models.ExportFormatCSV, Status: models.ExportStatusQueued, CreatedBy: "u1"}

	_, _, err := svc.Status(context.Background(), &models.Claims{UserID: "u2", Roles: []string{models.RoleUser}}, "job1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, _, err = svc.Status(context.Background(), &models.Claims{UserID: "u1"}, "job1")
	require.NoError(t, err)
}

func TestExportStatusSignsURLWhenFinished(t *testing.T) {
	svc, repo := newExportFixture(t)
	path := "tasks_x.csv"
	repo.jobs["job1"] = &models.ExportJob{ID: "job1", Kind: models.ExportKindTasks, Format: models.ExportFormatCSV, Status: models.ExportStatusFinished, FilePath: &path, CreatedBy: "u1"}

	_, url, err := svc.Status(context.Background(), &models.Claims{UserID: "u1"}, "job1")
	require.NoError(t, err)
	assert.Contains(t, url, "/api/statistics/export/job1/download?token=")
}

func TestExportDownloadRejectsMismatchedToken(t *testing.T) {
	svc, repo := newExportFixture(t)
	path := "tasks_x.csv"
	repo.jobs["job1"] = &models.ExportJob{ID: "job1", Kind: models.ExportKindTasks, Format: models.ExportFormatCSV, Status: models.ExportStatusFinished, FilePath: &path, CreatedBy: "u1"}
	repo.jobs["job2"] = &models.ExportJob{ID: "job2", Kind: models.ExportKindTasks, Format: models.ExportFormatCSV, Status: models.ExportStatusFinished, FilePath: &path, CreatedBy: "u1"}

	token, _, err := svc.signer.Generate("job2", path)
	require.NoError(t, err)

	_, _, err = svc.OpenDownload(context.Background(), "job1", token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestExportEnqueueRejectsUnknownKind(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.Enqueue(context.Background(), &models.Claims{UserID: "u1"}, "everything", models.ExportFormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
