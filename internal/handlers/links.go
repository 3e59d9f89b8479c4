package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/services"
	"github.com/lanefeed/lanefeed/pkg/models"
)

type LinksHandler struct {
	logger    *logrus.Logger
	library   services.LibraryServiceInterface
	ingest    services.IngestServiceInterface
	validator *validator.Validate
}

func NewLinksHandler(logger *logrus.Logger, library services.LibraryServiceInterface, ingest services.IngestServiceInterface) *LinksHandler {
	return &LinksHandler{
		logger:    logger,
		library:   library,
		ingest:    ingest,
		validator: validator.New(),
	}
}

// Create saves a URL, unfurling it synchronously. Duplicates return the
// already-saved entry alongside the conflict so the client can show it.
func (h *LinksHandler) Create(c *gin.Context) {
	var req models.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		validationError(c, "A url of at most 2048 characters is required")
		return
	}

	entry, err := h.ingest.SaveURL(c.Request.Context(), currentUser(c), req.URL)
	if err != nil {
		var dup *services.DuplicateLinkError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, gin.H{
				"error": dup.Error(),
				"link":  dup.Existing,
			})
			return
		}
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// List returns the user's entries newest-first, or aggregate counts
// when ?stats=true.
func (h *LinksHandler) List(c *gin.Context) {
	userID := currentUser(c)

	if c.Query("stats") == "true" {
		stats, err := h.library.Stats(c.Request.Context(), userID)
		if err != nil {
			serviceError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, stats)
		return
	}

	status := c.DefaultQuery("status", models.StatusActive)
	if status != models.StatusActive && status != models.StatusArchived {
		validationError(c, "status must be active or archived")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			validationError(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.library.List(c.Request.Context(), userID, status, limit)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *LinksHandler) Update(c *gin.Context) {
	var req models.UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		validationError(c, "status must be active or archived and shownCount non-negative")
		return
	}

	entry, err := h.library.Update(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *LinksHandler) Delete(c *gin.Context) {
	if err := h.library.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		serviceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
