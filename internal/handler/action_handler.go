package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/service"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/response"
)

// ActionHandler wires HTTP endpoints to the action service.
type ActionHandler struct {
	service *service.ActionService
}

// NewActionHandler creates a new handler.
func NewActionHandler(svc *service.ActionService) *ActionHandler {
	return &ActionHandler{service: svc}
}

// Create godoc
// @Summary Add plan action
// @Description Add a remediation action to a plan
// @Tags Actions
// @Accept json
// @Produce json
// @Param id path string true "Plan ID"
// @Param payload body service.CreateActionRequest true "Action payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planes/{id}/acciones [post]
// @Security BearerAuth
func (h *ActionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid action payload"))
		return
	}

	action, err := h.service.Create(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, action)
}

// UpdateState godoc
// @Summary Update action state
// @Description Move an action between checklist states
// @Tags Actions
// @Accept json
// @Produce json
// @Param actionId path string true "Action ID"
// @Param payload body service.UpdateActionStateRequest true "State payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /acciones/{actionId}/estado [put]
// @Security BearerAuth
func (h *ActionHandler) UpdateState(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateActionStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid action state payload"))
		return
	}

	action, err := h.service.UpdateState(c.Request.Context(), claims, c.Param("actionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, action, nil)
}

// ListByPlan godoc
// @Summary List plan actions
// @Description Returns all actions of a plan, oldest first
// @Tags Actions
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /planes/{id}/acciones [get]
// @Security BearerAuth
func (h *ActionHandler) ListByPlan(c *gin.Context) {
	actions, err := h.service.ListByPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}
