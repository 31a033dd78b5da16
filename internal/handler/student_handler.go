package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guidexpert/counsellor-api/internal/models"
	"github.com/guidexpert/counsellor-api/internal/service"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
	"github.com/guidexpert/counsellor-api/pkg/response"
)

// StudentHandler exposes the student directory endpoints.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

func parseStudentFilter(c *gin.Context) (models.StudentFilter, error) {
	var filter models.StudentFilter
	filter.Search = strings.TrimSpace(c.Query("q"))
	filter.Course = strings.TrimSpace(c.Query("course"))
	if status := c.Query("status"); status != "" {
		filter.Status = models.StudentStatus(status)
		if !models.ValidStudentStatus(filter.Status) {
			return filter, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
		}
	}
	if raw := c.Query("joinedFrom"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "joinedFrom must be a YYYY-MM-DD date")
		}
		filter.JoinedFrom = &from
	}
	if raw := c.Query("joinedTo"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "joinedTo must be a YYYY-MM-DD date")
		}
		filter.JoinedTo = &to
	}
	filter.IncludeDeleted = c.Query("deleted") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.PageSize = size
	}
	return filter, nil
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param q query string false "Search by name, phone or email"
// @Param course query string false "Filter by course"
// @Param status query string false "Filter by status" Enums(active, inactive, on-hold)
// @Param joinedFrom query string false "Joined on or after (YYYY-MM-DD)"
// @Param joinedTo query string false "Joined on or before (YYYY-MM-DD)"
// @Param deleted query bool false "Include soft-deleted rows"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /counsellor/students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter, err := parseStudentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	page, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Rows, pagination)
}

// Get godoc
// @Summary Get student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /counsellor/students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Register student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /counsellor/students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.StudentPatch true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /counsellor/students/{id} [patch]
func (h *StudentHandler) Update(c *gin.Context) {
	var patch models.StudentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Soft-delete student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 204
// @Router /counsellor/students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Restore godoc
// @Summary Restore a soft-deleted student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /counsellor/students/{id}/restore [post]
func (h *StudentHandler) Restore(c *gin.Context) {
	student, err := h.students.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// BulkStatus godoc
// @Summary Apply a status to many students
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.BulkStatusRequest true "Ids and target status"
// @Success 200 {object} response.Envelope
// @Router /counsellor/students/bulk/status [patch]
func (h *StudentHandler) BulkStatus(c *gin.Context) {
	var req service.BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	affected, err := h.students.BulkSetStatus(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, nil, nil, map[string]interface{}{"affected": affected})
}

// BulkDelete godoc
// @Summary Soft-delete many students
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.BulkDeleteRequest true "Ids to delete"
// @Success 200 {object} response.Envelope
// @Router /counsellor/students/bulk [delete]
func (h *StudentHandler) BulkDelete(c *gin.Context) {
	var req service.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	affected, err := h.students.BulkDelete(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, nil, nil, map[string]interface{}{"affected": affected})
}

// Export godoc
// @Summary Export students as CSV
// @Tags Students
// @Produce text/csv
// @Param q query string false "Search by name, phone or email"
// @Param course query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param deleted query bool false "Include soft-deleted rows"
// @Success 200 {file} file
// @Router /counsellor/students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	filter, err := parseStudentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.students.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
