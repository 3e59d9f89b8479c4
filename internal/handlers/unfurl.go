package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/services"
	"github.com/lanefeed/lanefeed/pkg/models"
)

type UnfurlHandler struct {
	logger    *logrus.Logger
	ingest    services.IngestServiceInterface
	validator *validator.Validate
}

func NewUnfurlHandler(logger *logrus.Logger, ingest services.IngestServiceInterface) *UnfurlHandler {
	return &UnfurlHandler{
		logger:    logger,
		ingest:    ingest,
		validator: validator.New(),
	}
}

// Preview fetches link metadata without saving anything.
func (h *UnfurlHandler) Preview(c *gin.Context) {
	var req models.UnfurlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		validationError(c, "A url of at most 2048 characters is required")
		return
	}

	result, err := h.ingest.Preview(c.Request.Context(), req.URL)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
