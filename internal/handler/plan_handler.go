package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/models"
	"github.com/noah-isme/sgpm-api/internal/service"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/response"
)

// PlanHandler wires HTTP endpoints to the plan workflow service.
type PlanHandler struct {
	service *service.PlanService
}

// NewPlanHandler creates a new handler.
func NewPlanHandler(svc *service.PlanService) *PlanHandler {
	return &PlanHandler{service: svc}
}

// Create godoc
// @Summary Create improvement plan
// @Description Assign a new improvement plan to a teacher; it starts pending the dean's decision
// @Tags Plans
// @Accept json
// @Produce json
// @Param payload body service.CreatePlanRequest true "Plan payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /planes [post]
// @Security BearerAuth
func (h *PlanHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid plan payload"))
		return
	}

	plan, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, plan)
}

// Get godoc
// @Summary Get plan detail
// @Description Returns a plan with its actions and approval ledger
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /planes/{id} [get]
// @Security BearerAuth
func (h *PlanHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List plans
// @Description Returns plans scoped to the caller's role
// @Tags Plans
// @Produce json
// @Param estado query string false "Plan state"
// @Param teacher_id query string false "Teacher ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /planes [get]
// @Security BearerAuth
func (h *PlanHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := models.PlanFilter{
		State:     models.PlanState(c.Query("estado")),
		TeacherID: c.Query("teacher_id"),
		Page:      page,
		PageSize:  pageSize,
	}
	if filter.State != "" && !filter.State.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown plan state"))
		return
	}

	plans, total, err := h.service.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, plans, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	})
}

// DeanDecision godoc
// @Summary Record dean decision
// @Description Approve or reject a plan pending the dean's decision
// @Tags Plans
// @Accept json
// @Produce json
// @Param id path string true "Plan ID"
// @Param payload body service.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planes/{id}/decision [post]
// @Security BearerAuth
func (h *PlanHandler) DeanDecision(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	plan, err := h.service.DecideAsDean(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, plan, nil)
}

// Resubmit godoc
// @Summary Resubmit rejected plan
// @Description Send a dean-rejected plan back for a fresh decision
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planes/{id}/reenviar [post]
// @Security BearerAuth
func (h *PlanHandler) Resubmit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	plan, err := h.service.Resubmit(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, plan, nil)
}

// RecordApproval godoc
// @Summary Record administrative approval
// @Description Legacy single-step approval for plans outside the dean workflow
// @Tags Plans
// @Accept json
// @Produce json
// @Param id path string true "Plan ID"
// @Param payload body service.DecisionRequest true "Decision payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planes/{id}/aprobaciones [post]
// @Security BearerAuth
func (h *PlanHandler) RecordApproval(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	approval, err := h.service.RecordApproval(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, approval)
}

// Close godoc
// @Summary Close plan
// @Description Mark an active plan as finished
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planes/{id}/cerrar [post]
// @Security BearerAuth
func (h *PlanHandler) Close(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	plan, err := h.service.Close(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, plan, nil)
}

// ListApprovals godoc
// @Summary List plan approvals
// @Description Returns the approval ledger of a plan, oldest first
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /planes/{id}/aprobaciones [get]
// @Security BearerAuth
func (h *PlanHandler) ListApprovals(c *gin.Context) {
	approvals, err := h.service.ListApprovals(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}

// DeleteApproval godoc
// @Summary Delete approval record
// @Description Remove one approval ledger entry (administrative cleanup)
// @Tags Plans
// @Produce json
// @Param approvalId path string true "Approval ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /aprobaciones/{approvalId} [delete]
// @Security BearerAuth
func (h *PlanHandler) DeleteApproval(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.DeleteApproval(c.Request.Context(), claims, c.Param("approvalId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
