package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/middleware"
	"github.com/noah-isme/sgpm-api/internal/models"
)

// claimsFromContext returns the authenticated actor's claims, or nil on
// routes reachable without the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, _ := c.Get(middleware.ContextUserKey)
	claims, _ := value.(*models.JWTClaims)
	return claims
}
