package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/models"
	"github.com/noah-isme/sgpm-api/internal/service"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/response"
)

// AuditHandler wires HTTP endpoints to the audit service.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// Query godoc
// @Summary Query audit trail
// @Description Returns audit records matching the filters
// @Tags Audit
// @Produce json
// @Param resource query string false "Resource"
// @Param action query string false "Action"
// @Param user_id query string false "Actor user ID"
// @Param date_from query string false "From date (RFC 3339)"
// @Param date_to query string false "To date (RFC 3339)"
// @Param search query string false "Search in descriptions"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /auditoria [get]
// @Security BearerAuth
func (h *AuditHandler) Query(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	filter := models.AuditFilter{
		Resource: c.Query("resource"),
		Action:   c.Query("action"),
		UserID:   c.Query("user_id"),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	}

	var err error
	if filter.DateFrom, err = parseTimeParam(c.Query("date_from")); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_from"))
		return
	}
	if filter.DateTo, err = parseTimeParam(c.Query("date_to")); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_to"))
		return
	}

	logs, total, err := h.service.Query(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	})
}

// Statistics godoc
// @Summary Audit statistics
// @Description Aggregates audit activity for an optional date range
// @Tags Audit
// @Produce json
// @Param date_from query string false "From date (RFC 3339)"
// @Param date_to query string false "To date (RFC 3339)"
// @Success 200 {object} response.Envelope
// @Router /auditoria/estadisticas [get]
// @Security BearerAuth
func (h *AuditHandler) Statistics(c *gin.Context) {
	from, err := parseTimeParam(c.Query("date_from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_from"))
		return
	}
	to, err := parseTimeParam(c.Query("date_to"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_to"))
		return
	}

	stats, err := h.service.Statistics(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Date-only values are common in dashboard links.
		ts, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, err
		}
	}
	return &ts, nil
}
