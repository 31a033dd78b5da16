package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/guidexpert/counsellor-api/internal/models"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
	"github.com/guidexpert/counsellor-api/pkg/export"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	ListAll(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	BulkUpdateStatus(ctx context.Context, ids []string, status models.StudentStatus) (int64, error)
	BulkSoftDelete(ctx context.Context, ids []string) (int64, error)
}

type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type listMetrics interface {
	ObserveCacheLookup(hit bool)
	ObserveDBQuery(operation string, duration time.Duration)
}

const studentCachePrefix = "students:"

// CreateStudentRequest holds payload for registering students.
type CreateStudentRequest struct {
	FullName string  `json:"fullName" validate:"required"`
	Phone    string  `json:"phone" validate:"required"`
	Course   string  `json:"course" validate:"required"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Status   *string `json:"status,omitempty"`
	JoinedAt *string `json:"joinedAt,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// BulkStatusRequest applies one status to a set of students.
type BulkStatusRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1"`
	Status string   `json:"status" validate:"required"`
}

// BulkDeleteRequest soft-deletes a set of students.
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// ExportResult is a rendered roster ready to stream to the caller.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// StudentListPage pairs one page of rows with the total match count.
type StudentListPage struct {
	Rows  []models.Student `json:"rows"`
	Total int              `json:"total"`
}

// StudentService handles the student directory use-cases.
type StudentService struct {
	repo      studentRepository
	cache     listCache
	metrics   listMetrics
	csv       *export.CSVExporter
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewStudentService constructs the student service. cache and metrics may be
// nil.
func NewStudentService(repo studentRepository, cache listCache, metrics listMetrics, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		cache:     cache,
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

// NormalizePhone strips every non-digit character from the input.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validateStudentFields enforces the directory field rules on the final
// (merged) values, so create and update share one definition. Name length is
// counted in runes, not bytes.
func (s *StudentService) validateStudentFields(fullName, phone, course string, email *string) *appErrors.Error {
	length := utf8.RuneCountInString(strings.TrimSpace(fullName))
	if length < 2 || length > 200 {
		return appErrors.Clone(appErrors.ErrValidation, "full name must be between 2 and 200 characters")
	}
	if len(NormalizePhone(phone)) != 10 {
		return appErrors.Clone(appErrors.ErrValidation, "phone must contain exactly 10 digits")
	}
	if strings.TrimSpace(course) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "course is required")
	}
	if email != nil && *email != "" {
		if err := s.validator.Var(*email, "email"); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "email is not valid")
		}
	}
	return nil
}

func cacheKey(filter models.StudentFilter) string {
	from, to := "", ""
	if filter.JoinedFrom != nil {
		from = filter.JoinedFrom.Format("2006-01-02")
	}
	if filter.JoinedTo != nil {
		to = filter.JoinedTo.Format("2006-01-02")
	}
	return fmt.Sprintf("%sq=%s|c=%s|s=%s|f=%s|t=%s|d=%t|p=%d|l=%d",
		studentCachePrefix, filter.Search, filter.Course, filter.Status, from, to, filter.IncludeDeleted, filter.Page, filter.PageSize)
}

func (s *StudentService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, studentCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate student list cache", zap.Error(err))
	}
}

// List returns one page of students with pagination metadata, consulting the
// cache first when one is configured.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) (*StudentListPage, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	switch size {
	case 10, 25, 50, 100:
	default:
		size = 10
	}
	filter.Page = page
	filter.PageSize = size

	key := cacheKey(filter)
	if s.cache != nil {
		var cached StudentListPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.ObserveCacheLookup(true)
			}
			pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}
			return &cached, pagination, nil
		}
		if s.metrics != nil {
			s.metrics.ObserveCacheLookup(false)
		}
	}

	started := time.Now()
	rows, total, err := s.repo.List(ctx, filter)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("students.list", time.Since(started))
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	result := &StudentListPage{Rows: rows, Total: total}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache student list", zap.Error(err))
		}
	}

	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return result, pagination, nil
}

// Get returns a single student, including soft-deleted rows.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := s.validateStudentFields(req.FullName, req.Phone, req.Course, req.Email); err != nil {
		return nil, err
	}

	student := &models.Student{
		FullName: strings.TrimSpace(req.FullName),
		Phone:    NormalizePhone(req.Phone),
		Course:   strings.TrimSpace(req.Course),
		Email:    req.Email,
		Notes:    req.Notes,
	}
	if req.Status != nil {
		status := models.StudentStatus(*req.Status)
		if !models.ValidStudentStatus(status) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
		}
		student.Status = status
	}
	if req.JoinedAt != nil && *req.JoinedAt != "" {
		joined, err := time.Parse("2006-01-02", *req.JoinedAt)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "joinedAt must be a YYYY-MM-DD date")
		}
		student.JoinedAt = joined
	}

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.invalidateCache(ctx)
	return student, nil
}

// Update applies a partial patch to an existing student. Soft-deleted rows
// cannot be edited; they must be restored first.
func (s *StudentService) Update(ctx context.Context, id string, patch models.StudentPatch) (*models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if student.IsDeleted() {
		return nil, appErrors.Clone(appErrors.ErrDeletedRow, "")
	}

	if patch.FullName != nil {
		student.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.Phone != nil {
		student.Phone = NormalizePhone(*patch.Phone)
	}
	if patch.Course != nil {
		student.Course = strings.TrimSpace(*patch.Course)
	}
	if patch.Email != nil {
		if *patch.Email == "" {
			student.Email = nil
		} else {
			student.Email = patch.Email
		}
	}
	if patch.Status != nil {
		if !models.ValidStudentStatus(*patch.Status) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
		}
		student.Status = *patch.Status
	}
	if patch.JoinedAt != nil {
		joined, err := time.Parse("2006-01-02", *patch.JoinedAt)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "joinedAt must be a YYYY-MM-DD date")
		}
		student.JoinedAt = joined
	}
	if patch.Notes != nil {
		student.Notes = patch.Notes
	}

	if err := s.validateStudentFields(student.FullName, student.Phone, student.Course, student.Email); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.invalidateCache(ctx)
	return student, nil
}

// Delete soft-deletes a student. Deleting an already-deleted row succeeds.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.invalidateCache(ctx)
	return nil
}

// Restore clears the soft-delete marker. Restoring a live row succeeds.
func (s *StudentService) Restore(ctx context.Context, id string) (*models.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore student")
	}
	s.invalidateCache(ctx)
	return s.Get(ctx, id)
}

// BulkSetStatus applies one status to every live row in the id set. The
// number of rows actually changed is returned.
func (s *StudentService) BulkSetStatus(ctx context.Context, req BulkStatusRequest) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk status payload")
	}
	status := models.StudentStatus(req.Status)
	if !models.ValidStudentStatus(status) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
	}
	affected, err := s.repo.BulkUpdateStatus(ctx, req.IDs, status)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply bulk status")
	}
	s.invalidateCache(ctx)
	return affected, nil
}

// BulkDelete soft-deletes every live row in the id set.
func (s *StudentService) BulkDelete(ctx context.Context, req BulkDeleteRequest) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk delete payload")
	}
	affected, err := s.repo.BulkSoftDelete(ctx, req.IDs)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply bulk delete")
	}
	s.invalidateCache(ctx)
	return affected, nil
}

// ExportCSV renders every matching student (no pagination) as CSV.
func (s *StudentService) ExportCSV(ctx context.Context, filter models.StudentFilter) (*ExportResult, error) {
	students, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export students")
	}

	payload, err := s.csv.Render(RosterDataset(students))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("students-%s.csv", time.Now().UTC().Format("20060102-150405"))
	return &ExportResult{Filename: filename, ContentType: "text/csv", Payload: payload}, nil
}

// RosterDataset converts students into the tabular export shape shared by
// the synchronous export endpoint and the asynchronous report pipeline.
func RosterDataset(students []models.Student) export.Dataset {
	rows := make([]map[string]string, 0, len(students))
	for _, st := range students {
		email, notes, deleted := "", "", ""
		if st.Email != nil {
			email = *st.Email
		}
		if st.Notes != nil {
			notes = *st.Notes
		}
		if st.DeletedAt != nil {
			deleted = st.DeletedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"ID":        st.ID,
			"Full Name": st.FullName,
			"Phone":     st.Phone,
			"Course":    st.Course,
			"Email":     email,
			"Status":    string(st.Status),
			"Joined":    st.JoinedAt.Format("2006-01-02"),
			"Notes":     notes,
			"Deleted":   deleted,
		})
	}
	return export.Dataset{
		Headers: []string{"ID", "Full Name", "Phone", "Course", "Email", "Status", "Joined", "Notes", "Deleted"},
		Rows:    rows,
	}
}
