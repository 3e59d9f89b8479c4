package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/services"
	"github.com/lanefeed/lanefeed/pkg/models"
)

type EngagementHandler struct {
	logger     *logrus.Logger
	engagement services.EngagementServiceInterface
}

func NewEngagementHandler(logger *logrus.Logger, engagement services.EngagementServiceInterface) *EngagementHandler {
	return &EngagementHandler{
		logger:     logger,
		engagement: engagement,
	}
}

// Ingest records a batch of engagement events. The request may be a
// {"events":[...]} batch or a single bare event; unknown event types
// within a batch are skipped rather than rejected.
func (h *EngagementHandler) Ingest(c *gin.Context) {
	var req models.EngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid engagement payload")
		return
	}

	processed, err := h.engagement.Ingest(c.Request.Context(), currentUser(c), req.Events)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.EngagementResponse{OK: true, Processed: processed})
}
