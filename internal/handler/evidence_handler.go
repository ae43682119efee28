package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/service"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/response"
)

// EvidenceHandler wires HTTP endpoints to the evidence service.
type EvidenceHandler struct {
	service *service.EvidenceService
}

// NewEvidenceHandler creates a new handler.
func NewEvidenceHandler(svc *service.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{service: svc}
}

// Upload godoc
// @Summary Upload evidence
// @Description Attach an evidence file with a mandatory comment to an action
// @Tags Evidence
// @Accept multipart/form-data
// @Produce json
// @Param actionId path string true "Action ID"
// @Param file formData file true "Evidence file"
// @Param comment formData string true "Comment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /acciones/{actionId}/evidencias [post]
// @Security BearerAuth
func (h *EvidenceHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "evidence file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	upload := service.EvidenceUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      file,
		Comment:     c.PostForm("comment"),
	}

	evidence, err := h.service.Upload(c.Request.Context(), claims, c.Param("actionId"), upload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, evidence)
}

// ListByAction godoc
// @Summary List action evidence
// @Description Returns all evidence attached to an action, oldest first
// @Tags Evidence
// @Produce json
// @Param actionId path string true "Action ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /acciones/{actionId}/evidencias [get]
// @Security BearerAuth
func (h *EvidenceHandler) ListByAction(c *gin.Context) {
	evidences, err := h.service.ListByAction(c.Request.Context(), c.Param("actionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evidences, nil)
}

// DownloadURL godoc
// @Summary Get evidence download link
// @Description Issues a signed, expiring token for downloading one evidence file
// @Tags Evidence
// @Produce json
// @Param id path string true "Evidence ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /evidencias/{id}/descarga [get]
// @Security BearerAuth
func (h *EvidenceHandler) DownloadURL(c *gin.Context) {
	signed, err := h.service.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signed, nil)
}

// Download godoc
// @Summary Download evidence file
// @Description Streams an evidence file referenced by a signed token
// @Tags Evidence
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /evidencias/descargar [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	evidence, file, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.FileAttachment(file.Name(), evidence.Filename)
}
