package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/service"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/response"
)

// DashboardHandler wires HTTP endpoints to the dashboard service.
type DashboardHandler struct {
	service *service.DashboardService
	metrics *service.MetricsService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService, metrics *service.MetricsService) *DashboardHandler {
	return &DashboardHandler{service: svc, metrics: metrics}
}

// Summary godoc
// @Summary Dashboard summary
// @Description Returns the plan summary for the caller's scope
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
// @Security BearerAuth
func (h *DashboardHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// FacultyReport godoc
// @Summary Dean faculty report
// @Description Lists the plans of the dean's faculty
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /dashboard/reporte [get]
// @Security BearerAuth
func (h *DashboardHandler) FacultyReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	plans, err := h.service.FacultyReport(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plans, nil)
}

// ExportFacultyReport godoc
// @Summary Export dean faculty report
// @Description Downloads the faculty report as CSV or PDF
// @Tags Dashboard
// @Produce octet-stream
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /dashboard/reporte/exportar [get]
// @Security BearerAuth
func (h *DashboardHandler) ExportFacultyReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.ExportFacultyReport(c.Request.Context(), claims, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("reporte-planes-%s.%s", time.Now().Format("20060102"), format)
	response.File(c, filename, contentType, payload)
}

// SystemMetrics godoc
// @Summary System metrics snapshot
// @Description Returns runtime counters for the operational dashboard
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/sistema [get]
// @Security BearerAuth
func (h *DashboardHandler) SystemMetrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
