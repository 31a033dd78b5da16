package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guidexpert/counsellor-api/internal/service"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
	"github.com/guidexpert/counsellor-api/pkg/response"
)

// ProfileHandler exposes the counsellor profile endpoints.
type ProfileHandler struct {
	profiles *service.ProfileService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Get godoc
// @Summary Current counsellor profile
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /counsellor/profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	profile, err := h.profiles.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Update godoc
// @Summary Update the counsellor profile
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body service.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /counsellor/profile [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}
