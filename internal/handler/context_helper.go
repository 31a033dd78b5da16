package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/guidexpert/counsellor-api/internal/models"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
)

// ContextUserKey is where the JWT middleware stores the authenticated claims.
const ContextUserKey = "currentUser"

func claimsFromContext(c *gin.Context) (*models.JWTClaims, error) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, appErrors.ErrUnauthorized
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}
