package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sgpm-api/internal/models"
)

func performRBAC(t *testing.T, claims *models.JWTClaims, targetID string, allowed ...string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	if claims != nil {
		router.Use(func(c *gin.Context) {
			c.Set(ContextUserKey, claims)
		})
	}
	router.GET("/usuarios/:id", RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/usuarios/"+targetID, nil)
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	rec := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}, "u2", "Admin")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRBACRejectsOtherRole(t *testing.T) {
	rec := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}, "u2", "Admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRBACAllowsSelfAccess(t *testing.T) {
	rec := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}, "u1", "Admin", "SELF")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRBACRejectsSelfMismatch(t *testing.T) {
	rec := performRBAC(t, &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}, "u2", "Admin", "SELF")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRBACRequiresClaims(t *testing.T) {
	rec := performRBAC(t, nil, "u1", "Admin")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
