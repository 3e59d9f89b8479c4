package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/middleware"
	"github.com/lanefeed/lanefeed/internal/services"
	"github.com/lanefeed/lanefeed/pkg/models"
)

// CookieSettings is the session cookie contract: fixed name, 30-day
// expiry, HttpOnly, SameSite=Lax, Secure in production.
type CookieSettings struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

type AuthHandler struct {
	logger    *logrus.Logger
	auth      services.AuthServiceInterface
	cookie    CookieSettings
	validator *validator.Validate
}

func NewAuthHandler(logger *logrus.Logger, auth services.AuthServiceInterface, cookie CookieSettings) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		auth:      auth,
		cookie:    cookie,
		validator: validator.New(),
	}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		validationError(c, "Email and a password of at least 8 characters are required")
		return
	}

	user, err := h.auth.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			c.JSON(http.StatusConflict, errorBody("EMAIL_TAKEN", "An account with this email already exists"))
			return
		}
		serviceError(c, h.logger, err)
		return
	}

	h.setSession(c, user.ID)
	c.JSON(http.StatusCreated, models.AuthUser{ID: user.ID, Email: user.Email})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		validationError(c, "Email and password are required")
		return
	}

	user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, errorBody("INVALID_CREDENTIALS", "Invalid email or password"))
			return
		}
		serviceError(c, h.logger, err)
		return
	}

	h.setSession(c, user.ID)
	c.JSON(http.StatusOK, models.AuthUser{ID: user.ID, Email: user.Email})
}

// Me reports the session's user, or {"user": null} for anonymous
// callers. This route sits outside the auth middleware so the client
// can probe session state without tripping 401 handling.
func (h *AuthHandler) Me(c *gin.Context) {
	token, err := c.Cookie(h.cookie.Name)
	if err != nil || token == "" {
		c.JSON(http.StatusOK, models.MeResponse{})
		return
	}

	userID, err := h.auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusOK, models.MeResponse{})
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusOK, models.MeResponse{})
			return
		}
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.MeResponse{User: &models.AuthUser{ID: user.ID, Email: user.Email}})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(h.cookie.Name); err == nil && token != "" {
		h.auth.RevokeToken(token)
	}
	h.clearSession(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AuthHandler) setSession(c *gin.Context, userID string) {
	token, err := h.auth.GenerateToken(userID)
	if err != nil {
		// The account exists; the client can still log in again.
		h.logger.WithError(err).Error("Failed to issue session token")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(h.cookie.TTL.Seconds()), "/", "", h.cookie.Secure, true)
}

func (h *AuthHandler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

// currentUser is the id set by the auth middleware.
func currentUser(c *gin.Context) string {
	return middleware.UserID(c)
}
