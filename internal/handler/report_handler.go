package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/guidexpert/counsellor-api/internal/models"
	"github.com/guidexpert/counsellor-api/internal/service"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
	"github.com/guidexpert/counsellor-api/pkg/response"
)

// ReportHandler exposes asynchronous roster report endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Create godoc
// @Summary Queue a roster export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.CreateReportRequest true "Format and filter snapshot"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /counsellor/reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.reports.CreateJob(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// List godoc
// @Summary List the caller's report jobs
// @Tags Reports
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /counsellor/reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobs, err := h.reports.ListJobs(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Get godoc
// @Summary Report job status
// @Tags Reports
// @Produce json
// @Param id path string true "Report job ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /counsellor/reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.reports.GetJob(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished report
// @Tags Reports
// @Produce application/octet-stream
// @Param id path string true "Report job ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /counsellor/reports/{id}/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.reports.ResolveDownload(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read report file"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", download.Filename))
	contentType := "text/csv"
	if download.Format == models.ReportFormatPDF {
		contentType = "application/pdf"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, download.File, nil)
}
