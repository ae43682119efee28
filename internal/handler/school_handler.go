package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/service"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/response"
)

// SchoolHandler wires HTTP endpoints to the school service.
type SchoolHandler struct {
	service *service.SchoolService
}

// NewSchoolHandler creates a new handler.
func NewSchoolHandler(svc *service.SchoolService) *SchoolHandler {
	return &SchoolHandler{service: svc}
}

// Create godoc
// @Summary Create school
// @Description Register a new faculty
// @Tags Schools
// @Accept json
// @Produce json
// @Param payload body service.SchoolRequest true "School payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /escuelas [post]
// @Security BearerAuth
func (h *SchoolHandler) Create(c *gin.Context) {
	var req service.SchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid school payload"))
		return
	}

	school, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, school)
}

// Get godoc
// @Summary Get school
// @Description Returns one faculty by identifier
// @Tags Schools
// @Produce json
// @Param id path string true "School ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /escuelas/{id} [get]
// @Security BearerAuth
func (h *SchoolHandler) Get(c *gin.Context) {
	school, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}

// List godoc
// @Summary List schools
// @Description Returns all faculties
// @Tags Schools
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /escuelas [get]
// @Security BearerAuth
func (h *SchoolHandler) List(c *gin.Context) {
	schools, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schools, nil)
}

// Update godoc
// @Summary Update school
// @Description Modify an existing faculty
// @Tags Schools
// @Accept json
// @Produce json
// @Param id path string true "School ID"
// @Param payload body service.SchoolRequest true "School payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /escuelas/{id} [put]
// @Security BearerAuth
func (h *SchoolHandler) Update(c *gin.Context) {
	var req service.SchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid school payload"))
		return
	}

	school, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}
