package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/services"
	"github.com/lanefeed/lanefeed/pkg/models"
)

type UploadHandler struct {
	logger    *logrus.Logger
	ingest    services.IngestServiceInterface
	validator *validator.Validate
}

func NewUploadHandler(logger *logrus.Logger, ingest services.IngestServiceInterface) *UploadHandler {
	return &UploadHandler{
		logger:    logger,
		ingest:    ingest,
		validator: validator.New(),
	}
}

// Create saves a direct image or text upload.
func (h *UploadHandler) Create(c *gin.Context) {
	var req models.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		validationError(c, "type must be image or text, with matching imageData or textContent")
		return
	}

	entry, err := h.ingest.SaveUpload(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// Bulk ingests up to 50 URLs, reporting a per-URL outcome instead of
// failing the batch on the first bad link.
func (h *UploadHandler) Bulk(c *gin.Context) {
	var req models.BulkUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		validationError(c, "urls must contain between 1 and 50 entries")
		return
	}

	resp := h.ingest.SaveBulk(c.Request.Context(), currentUser(c), req.URLs)
	c.JSON(http.StatusOK, resp)
}
