package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidexpert/counsellor-api/internal/models"
	"github.com/guidexpert/counsellor-api/internal/repository"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
	"github.com/guidexpert/counsellor-api/pkg/jobs"
	"github.com/guidexpert/counsellor-api/pkg/storage"
)

type fakeReportStore struct {
	jobs    map[string]*models.ReportJob
	updates []repository.UpdateReportJobParams
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{jobs: make(map[string]*models.ReportJob)}
}

func (f *fakeReportStore) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(f.jobs)+1)
	}
	job.CreatedAt = time.Now().UTC()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeReportStore) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (f *fakeReportStore) ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error) {
	out := make([]models.ReportJob, 0)
	for _, job := range f.jobs {
		if job.CreatedBy == createdBy {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeReportStore) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	f.updates = append(f.updates, params)
	job, ok := f.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (f *fakeReportStore) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	out := make([]models.ReportJob, 0)
	for _, job := range f.jobs {
		if job.Status == models.ReportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

type fakeRoster struct {
	students []models.Student
	err      error
}

func (f *fakeRoster) ListAll(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.students, nil
}

type fakeDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (f *fakeDispatcher) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

type dirReportStorage struct {
	root string
}

func (d *dirReportStorage) Save(filename string, data []byte) (string, error) {
	full := filepath.Join(d.root, filename)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return filename, nil
}

func (d *dirReportStorage) Open(filename string) (*os.File, error) {
	return os.Open(filepath.Join(d.root, filename))
}

func (d *dirReportStorage) Delete(filename string) error {
	return os.Remove(filepath.Join(d.root, filename))
}

func newReportServiceForTest(t *testing.T, store *fakeReportStore, roster *fakeRoster, queue *fakeDispatcher) *ReportService {
	t.Helper()
	return NewReportService(
		store,
		roster,
		queue,
		&dirReportStorage{root: t.TempDir()},
		storage.NewSignedURLSigner("report-test-secret", time.Hour),
		nil,
		ReportServiceConfig{APIPrefix: "/api/v1"},
	)
}

func rosterFixture() []models.Student {
	return []models.Student{
		{ID: "s1", FullName: "Ananya Rao", Phone: "+919812345670", Course: "B.Tech CSE", Status: models.StudentStatusActive, JoinedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
		{ID: "s2", FullName: "Vikram Nair", Phone: "+919812345671", Course: "MBA", Status: models.StudentStatusActive, JoinedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestReportServiceCreateJob(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{}
	svc := newReportServiceForTest(t, store, &fakeRoster{students: rosterFixture()}, queue)

	job, err := svc.CreateJob(context.Background(), CreateReportRequest{Format: models.ReportFormatCSV}, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.Equal(t, models.ReportFormatCSV, job.Params.Format)
	assert.Equal(t, "u1", job.CreatedBy)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.ID, queue.enqueued[0].ID)
}

func TestReportServiceCreateJobRejectsUnknownFormat(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{}
	svc := newReportServiceForTest(t, store, &fakeRoster{}, queue)

	_, err := svc.CreateJob(context.Background(), CreateReportRequest{Format: models.ReportFormat("xlsx")}, "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, queue.enqueued)
	assert.Empty(t, store.jobs)
}

func TestReportServiceCreateJobEnqueueFailure(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{err: errors.New("queue full")}
	svc := newReportServiceForTest(t, store, &fakeRoster{}, queue)

	_, err := svc.CreateJob(context.Background(), CreateReportRequest{Format: models.ReportFormatPDF}, "u1")
	require.Error(t, err)

	// the persisted row records the failure instead of staying queued forever
	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestReportServiceProcessFinishesJob(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{}
	svc := newReportServiceForTest(t, store, &fakeRoster{students: rosterFixture()}, queue)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, CreateReportRequest{Format: models.ReportFormatCSV}, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Process(ctx, jobs.Job{ID: job.ID, Type: string(job.Type)}))

	// first update flips the row to processing, the final one records the result
	require.GreaterOrEqual(t, len(store.updates), 2)
	require.NotNil(t, store.updates[0].Status)
	assert.Equal(t, models.ReportStatusProcessing, *store.updates[0].Status)

	stored := store.jobs[job.ID]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.ResultURL)
	assert.Contains(t, *stored.ResultURL, "/api/v1/reports/"+job.ID+"/download?token=")
	assert.NotNil(t, stored.FinishedAt)
}

func TestReportServiceProcessMarksFailureAndReturnsError(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{}
	roster := &fakeRoster{err: errors.New("db gone")}
	svc := newReportServiceForTest(t, store, roster, queue)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, CreateReportRequest{Format: models.ReportFormatCSV}, "u1")
	require.NoError(t, err)

	err = svc.Process(ctx, jobs.Job{ID: job.ID, Type: string(job.Type)})
	require.Error(t, err, "the worker pool retries on a returned error")

	stored := store.jobs[job.ID]
	assert.Equal(t, models.ReportStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "load roster")
	assert.Nil(t, stored.ResultURL)
}

func TestReportServiceResolveDownload(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{}
	svc := newReportServiceForTest(t, store, &fakeRoster{students: rosterFixture()}, queue)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, CreateReportRequest{Format: models.ReportFormatCSV}, "u1")
	require.NoError(t, err)
	require.NoError(t, svc.Process(ctx, jobs.Job{ID: job.ID, Type: string(job.Type)}))

	resultURL := *store.jobs[job.ID].ResultURL
	token := resultURL[strings.Index(resultURL, "token=")+len("token="):]

	download, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))

	_, err = svc.ResolveDownload(ctx, token+"tampered")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceGetJobOwnership(t *testing.T) {
	store := newFakeReportStore()
	queue := &fakeDispatcher{}
	svc := newReportServiceForTest(t, store, &fakeRoster{}, queue)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, CreateReportRequest{Format: models.ReportFormatCSV}, "u1")
	require.NoError(t, err)

	_, err = svc.GetJob(ctx, job.ID, "intruder")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetJob(ctx, "missing", "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
