package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidexpert/counsellor-api/internal/models"
	"github.com/guidexpert/counsellor-api/internal/service"
)

type stubStudentRepo struct {
	students   []models.Student
	lastFilter models.StudentFilter
	deleted    []string
	restored   []string
	bulkIDs    []string
}

func (s *stubStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	s.lastFilter = filter
	return s.students, len(s.students), nil
}

func (s *stubStudentRepo) ListAll(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	s.lastFilter = filter
	return s.students, nil
}

func (s *stubStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	for i := range s.students {
		if s.students[i].ID == id {
			return &s.students[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = "new-id"
	s.students = append(s.students, *student)
	return nil
}

func (s *stubStudentRepo) Update(ctx context.Context, student *models.Student) error {
	return nil
}

func (s *stubStudentRepo) SoftDelete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubStudentRepo) Restore(ctx context.Context, id string) error {
	s.restored = append(s.restored, id)
	return nil
}

func (s *stubStudentRepo) BulkUpdateStatus(ctx context.Context, ids []string, status models.StudentStatus) (int64, error) {
	s.bulkIDs = ids
	return int64(len(ids)), nil
}

func (s *stubStudentRepo) BulkSoftDelete(ctx context.Context, ids []string) (int64, error) {
	s.bulkIDs = ids
	return int64(len(ids)), nil
}

func newStudentHandlerForTest(repo *stubStudentRepo) *StudentHandler {
	return NewStudentHandler(service.NewStudentService(repo, nil, nil, nil, nil, 0))
}

type studentEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Total      *int                   `json:"total"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeStudentEnvelope(t *testing.T, rec *httptest.ResponseRecorder) studentEnvelope {
	t.Helper()
	var envelope studentEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestStudentHandlerListEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubStudentRepo{students: []models.Student{
		{ID: "s1", FullName: "Priya Nair", Phone: "9876543210", Course: "physics", Status: models.StudentStatusActive},
	}}
	handler := newStudentHandlerForTest(repo)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students?q=Priya&status=active&page=2&limit=25", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeStudentEnvelope(t, rec)
	require.NotNil(t, envelope.Total)
	assert.Equal(t, 1, *envelope.Total)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 2, envelope.Pagination.Page)
	assert.Equal(t, 25, envelope.Pagination.PageSize)

	assert.Equal(t, "Priya", repo.lastFilter.Search)
	assert.Equal(t, models.StudentStatusActive, repo.lastFilter.Status)
	assert.False(t, repo.lastFilter.IncludeDeleted, "deleted defaults to false")
}

func TestStudentHandlerListRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newStudentHandlerForTest(&stubStudentRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students?status=bogus", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeStudentEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
}

func TestStudentHandlerListParsesDates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubStudentRepo{}
	handler := newStudentHandlerForTest(repo)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students?joinedFrom=2026-01-01&joinedTo=2026-06-30&deleted=true", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, repo.lastFilter.JoinedFrom)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *repo.lastFilter.JoinedFrom)
	require.NotNil(t, repo.lastFilter.JoinedTo)
	assert.True(t, repo.lastFilter.IncludeDeleted)
}

func TestStudentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubStudentRepo{}
	handler := newStudentHandlerForTest(repo)

	body := `{"fullName": "Priya Nair", "phone": "(987) 654-3210", "course": "physics"}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	envelope := decodeStudentEnvelope(t, rec)
	var created models.Student
	require.NoError(t, json.Unmarshal(envelope.Data, &created))
	assert.Equal(t, "new-id", created.ID)
	assert.Equal(t, "9876543210", created.Phone)
}

func TestStudentHandlerCreateInvalidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newStudentHandlerForTest(&stubStudentRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(`{"fullName": "X"`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubStudentRepo{students: []models.Student{{ID: "s1", Status: models.StudentStatusActive}}}
	handler := newStudentHandlerForTest(repo)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/students/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.Delete(c)
	// c.Status alone does not flush to the recorder outside a running engine
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"s1"}, repo.deleted)
}

func TestStudentHandlerDeleteMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newStudentHandlerForTest(&stubStudentRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/students/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	handler.Delete(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudentHandlerBulkDeleteMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubStudentRepo{}
	handler := newStudentHandlerForTest(repo)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/students/bulk", strings.NewReader(`{"ids": ["s1", "s2", "s3"]}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.BulkDelete(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeStudentEnvelope(t, rec)
	assert.Equal(t, float64(3), envelope.Meta["affected"])
	assert.Equal(t, []string{"s1", "s2", "s3"}, repo.bulkIDs)
}

func TestStudentHandlerExportHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubStudentRepo{students: []models.Student{
		{ID: "s1", FullName: "Priya Nair", Phone: "9876543210", Course: "physics", Status: models.StudentStatusActive},
	}}
	handler := newStudentHandlerForTest(repo)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students/export?course=physics", nil)

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Regexp(t, `attachment; filename=students-\d{8}-\d{6}\.csv`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "Priya Nair")
	assert.Equal(t, "physics", repo.lastFilter.Course)
}
