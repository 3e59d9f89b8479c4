package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/services"
	"github.com/lanefeed/lanefeed/internal/unfurl"
)

type Handlers struct {
	Auth       *AuthHandler
	Links      *LinksHandler
	Upload     *UploadHandler
	Unfurl     *UnfurlHandler
	Engagement *EngagementHandler
	Feed       *FeedHandler
	Health     *HealthHandler
}

func New(logger *logrus.Logger, svcs *services.Services, cookie CookieSettings) *Handlers {
	return &Handlers{
		Auth:       NewAuthHandler(logger, svcs.Auth, cookie),
		Links:      NewLinksHandler(logger, svcs.Library, svcs.Ingest),
		Upload:     NewUploadHandler(logger, svcs.Ingest),
		Unfurl:     NewUnfurlHandler(logger, svcs.Ingest),
		Engagement: NewEngagementHandler(logger, svcs.Engagement),
		Feed:       NewFeedHandler(logger, svcs.Feed),
		Health:     NewHealthHandler(logger, svcs.Health),
	}
}

// errorBody is the one error envelope every endpoint speaks.
func errorBody(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func validationError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody("VALIDATION_FAILED", message))
}

// serviceError maps service-layer failures onto the HTTP taxonomy.
// SSRF rejections surface as plain validation failures so resolution
// details never reach the client; anything unrecognized is a 500.
func serviceError(c *gin.Context, logger *logrus.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "Resource not found"))
	case errors.Is(err, unfurl.ErrUnsafeURL):
		c.JSON(http.StatusBadRequest, errorBody("INVALID_URL", "URL is invalid or not allowed"))
	case errors.Is(err, services.ErrNoValidEvents):
		c.JSON(http.StatusBadRequest, errorBody("NO_VALID_EVENTS", "Request contains no valid engagement events"))
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "Something went wrong"))
	}
}
