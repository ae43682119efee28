package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/service"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/response"
)

// IncidentHandler wires HTTP endpoints to the incident service.
type IncidentHandler struct {
	service *service.IncidentService
}

// NewIncidentHandler creates a new handler.
func NewIncidentHandler(svc *service.IncidentService) *IncidentHandler {
	return &IncidentHandler{service: svc}
}

// Create godoc
// @Summary Record incident
// @Description Record a new incident for a teacher
// @Tags Incidents
// @Accept json
// @Produce json
// @Param payload body service.CreateIncidentRequest true "Incident payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /incidencias [post]
// @Security BearerAuth
func (h *IncidentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid incident payload"))
		return
	}

	incident, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, incident)
}

// Get godoc
// @Summary Get incident
// @Description Returns one incident by identifier
// @Tags Incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /incidencias/{id} [get]
// @Security BearerAuth
func (h *IncidentHandler) Get(c *gin.Context) {
	incident, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, incident, nil)
}

// List godoc
// @Summary List incidents
// @Description Returns incidents, optionally filtered by teacher
// @Tags Incidents
// @Produce json
// @Param teacher_id query string false "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /incidencias [get]
// @Security BearerAuth
func (h *IncidentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	incidents, err := h.service.List(c.Request.Context(), claims, c.Query("teacher_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, incidents, nil)
}

// UpdateState godoc
// @Summary Update incident state
// @Description Move an incident between review states
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param payload body service.UpdateIncidentStateRequest true "State payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /incidencias/{id}/estado [put]
// @Security BearerAuth
func (h *IncidentHandler) UpdateState(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateIncidentStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid incident state payload"))
		return
	}

	incident, err := h.service.UpdateState(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, incident, nil)
}
