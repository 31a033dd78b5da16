package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guidexpert/counsellor-api/internal/models"
	"github.com/guidexpert/counsellor-api/internal/repository"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
	"github.com/guidexpert/counsellor-api/pkg/export"
	"github.com/guidexpert/counsellor-api/pkg/jobs"
	"github.com/guidexpert/counsellor-api/pkg/storage"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
}

type rosterSource interface {
	ListAll(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// CreateReportRequest queues a roster export for a filter snapshot.
type CreateReportRequest struct {
	Format models.ReportFormat    `json:"format" validate:"required"`
	Params models.ReportJobParams `json:"params"`
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportServiceConfig governs download links and queue behaviour.
type ReportServiceConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ReportService orchestrates asynchronous roster report generation.
type ReportService struct {
	repo    reportJobStore
	roster  rosterSource
	queue   jobDispatcher
	storage reportStorage
	signer  *storage.SignedURLSigner
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
	cfg     ReportServiceConfig
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, roster rosterSource, queue jobDispatcher, store reportStorage, signer *storage.SignedURLSigner, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		repo:    repo,
		roster:  roster,
		queue:   queue,
		storage: store,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		cfg:     cfg,
	}
}

// SetQueue attaches the dispatcher once it exists. The queue's handler is
// this service's Process method, so the two are built in two steps.
func (s *ReportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob persists a queued job and hands it to the worker pool.
func (s *ReportService) CreateJob(ctx context.Context, req CreateReportRequest, actorID string) (*models.ReportJob, error) {
	if req.Format != models.ReportFormatCSV && req.Format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	params := req.Params
	params.Format = req.Format
	job := &models.ReportJob{
		Type:      models.ReportTypeRoster,
		Params:    params,
		Status:    models.ReportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return job, nil
}

// GetJob exposes job metadata, enforcing ownership.
func (s *ReportService) GetJob(ctx context.Context, id, actorID string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	return job, nil
}

// ListJobs returns the caller's recent jobs.
func (s *ReportService) ListJobs(ctx context.Context, actorID string, limit int) ([]models.ReportJob, error) {
	jobsList, err := s.repo.ListByCreator(ctx, actorID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	return jobsList, nil
}

// Process renders one queued job. It is invoked by the worker pool and
// returns an error to trigger the queue's retry policy.
func (s *ReportService) Process(ctx context.Context, queued jobs.Job) error {
	job, err := s.repo.GetByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", queued.ID, err)
	}
	processing := models.ReportStatusProcessing
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &processing}); err != nil {
		s.logger.Warn("failed to mark report processing", zap.String("job_id", job.ID), zap.Error(err))
	}

	resultURL, renderErr := s.render(ctx, job)
	now := time.Now().UTC()
	progress := 100
	if renderErr != nil {
		status := models.ReportStatusFailed
		msg := renderErr.Error()
		if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); err != nil {
			s.logger.Warn("failed to mark report failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return renderErr
	}

	status := models.ReportStatusFinished
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:     &status,
		Progress:   &progress,
		ResultURL:  &resultURL,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finalize report job %s: %w", job.ID, err)
	}
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) (string, error) {
	filter, err := filterFromParams(job.Params)
	if err != nil {
		return "", err
	}
	students, err := s.roster.ListAll(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("load roster: %w", err)
	}

	dataset := RosterDataset(students)
	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Student Roster")
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("roster-%s-%s.%s", job.ID, time.Now().UTC().Format("20060102-150405"), job.Params.Format)
	relPath, err := s.storage.Save(filepath.Join("reports", filename), payload)
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return "", fmt.Errorf("sign report url: %w", err)
	}
	return fmt.Sprintf("%s/reports/%s/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), job.ID, token), nil
}

// ResolveDownload validates the signed token and opens the stored file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report file no longer available")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverQueued re-enqueues jobs left in QUEUED state after a restart.
func (s *ReportService) RecoverQueued(ctx context.Context) error {
	queued, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		return err
	}
	for _, job := range queued {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to re-enqueue report job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return nil
}

func filterFromParams(params models.ReportJobParams) (models.StudentFilter, error) {
	filter := models.StudentFilter{
		Search:         params.Search,
		Course:         params.Course,
		Status:         models.StudentStatus(params.Status),
		IncludeDeleted: params.IncludeDeleted,
	}
	if params.JoinedFrom != "" {
		from, err := time.Parse("2006-01-02", params.JoinedFrom)
		if err != nil {
			return filter, fmt.Errorf("invalid joinedFrom date %q", params.JoinedFrom)
		}
		filter.JoinedFrom = &from
	}
	if params.JoinedTo != "" {
		to, err := time.Parse("2006-01-02", params.JoinedTo)
		if err != nil {
			return filter, fmt.Errorf("invalid joinedTo date %q", params.JoinedTo)
		}
		filter.JoinedTo = &to
	}
	return filter, nil
}
