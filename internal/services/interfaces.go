package services

import (
	"context"

	"github.com/lanefeed/lanefeed/pkg/models"
)

// AuthServiceInterface defines the interface for account and session operations
type AuthServiceInterface interface {
	Signup(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GenerateToken(userID string) (string, error)
	ValidateToken(tokenString string) (string, error)
	RevokeToken(tokenString string)
}

// LibraryServiceInterface defines the interface for saved-entry reads and edits
type LibraryServiceInterface interface {
	List(ctx context.Context, userID, status string, limit int) ([]models.LibraryEntry, error)
	Stats(ctx context.Context, userID string) (*models.LibraryStats, error)
	Update(ctx context.Context, userID, id string, req *models.UpdateEntryRequest) (*models.LibraryEntry, error)
	Delete(ctx context.Context, userID, id string) error
}

// IngestServiceInterface defines the interface for content ingestion
type IngestServiceInterface interface {
	Preview(ctx context.Context, rawURL string) (*models.UnfurlResult, error)
	SaveURL(ctx context.Context, userID, rawURL string) (*models.LibraryEntry, error)
	SaveUpload(ctx context.Context, userID string, req *models.UploadRequest) (*models.LibraryEntry, error)
	SaveBulk(ctx context.Context, userID string, urls []string) *models.BulkUploadResponse
}

// EngagementServiceInterface defines the interface for engagement ingestion
type EngagementServiceInterface interface {
	Ingest(ctx context.Context, userID string, events []models.EngagementEvent) (int, error)
}

// FeedServiceInterface defines the interface for feed assembly
type FeedServiceInterface interface {
	Feed(ctx context.Context, userID string, q *models.FeedQuery) (*models.FeedResponse, error)
}

// HealthServiceInterface defines the interface for dependency health checks
type HealthServiceInterface interface {
	CheckHealth() *HealthStatus
}
