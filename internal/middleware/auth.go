package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/services"
)

// userIDKey is where the auth middleware stores the authenticated user
// id in the gin context.
const userIDKey = "user_id"

// Auth reads the session cookie, validates the token, and stores the
// user id for handlers. Requests without a live session get the 401
// envelope; the client is expected to redirect to its login screen.
func Auth(auth services.AuthServiceInterface, cookieName string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			unauthorized(c)
			return
		}

		userID, err := auth.ValidateToken(token)
		if err != nil {
			logger.WithField("path", c.Request.URL.Path).Debug("Rejected invalid session")
			unauthorized(c)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "AUTH_REQUIRED",
			"message": "Authentication required",
		},
	})
	c.Abort()
}

// UserID returns the authenticated user id set by Auth. The empty
// string means the middleware did not run for this route.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
