package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/internal/handlers"
	"github.com/lanefeed/lanefeed/internal/middleware"
	"github.com/lanefeed/lanefeed/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	// Initialize services
	app.services = services.New(cfg, app.logger, db)

	// Initialize handlers
	app.handlers = handlers.New(app.logger, app.services, handlers.CookieSettings{
		Name:   cfg.Auth.CookieName,
		TTL:    cfg.Auth.SessionTTL,
		Secure: cfg.Auth.CookieSecure || cfg.Server.Mode == "production",
	})

	// Setup router
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.services.Close()
	a.db.Close()

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Security())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.Compression())

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth routes. /auth/me stays public: it answers {user: null} for
	// anonymous callers instead of a 401.
	auth := router.Group("/auth")
	{
		auth.POST("/signup", a.handlers.Auth.Signup)
		auth.POST("/login", a.handlers.Auth.Login)
		auth.GET("/me", a.handlers.Auth.Me)
	}

	// Everything else requires a session
	api := router.Group("/")
	{
		api.Use(middleware.Auth(a.services.Auth, a.config.Auth.CookieName, a.logger))
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		api.POST("/auth/logout", a.handlers.Auth.Logout)

		// Library routes
		api.POST("/links", a.handlers.Links.Create)
		api.GET("/links", a.handlers.Links.List)
		api.PATCH("/links/:id", a.handlers.Links.Update)
		api.DELETE("/links/:id", a.handlers.Links.Delete)

		// Upload routes
		api.POST("/upload", a.handlers.Upload.Create)
		api.PUT("/upload", a.handlers.Upload.Bulk)

		// Preview route
		api.POST("/unfurl", a.handlers.Unfurl.Preview)

		// Engagement ingestion
		api.POST("/engagement", a.handlers.Engagement.Ingest)

		// Ranked feed
		api.GET("/feed", a.handlers.Feed.Get)
	}

	a.router = router
}
