package models

import "time"

// Library entry content types, detected from the source hostname for URL
// ingests; image/text come from direct uploads, generic marks entries
// whose unfurl fell back entirely.
const (
	ContentTypeYouTube   = "youtube"
	ContentTypeTweet     = "tweet"
	ContentTypeArticle   = "article"
	ContentTypeInstagram = "instagram"
	ContentTypeImage     = "image"
	ContentTypeText      = "text"
	ContentTypeGeneric   = "generic"
)

// Library entry lifecycle states. Deletion is a hard delete.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

type LibraryEntry struct {
	ID              string                 `json:"id" db:"id"`
	UserID          string                 `json:"-" db:"user_id"`
	URL             *string                `json:"url" db:"url"`
	Title           string                 `json:"title" db:"title"`
	Description     string                 `json:"description,omitempty" db:"description"`
	Thumbnail       string                 `json:"thumbnail,omitempty" db:"thumbnail"`
	SiteName        string                 `json:"siteName,omitempty" db:"site_name"`
	ContentType     string                 `json:"contentType" db:"content_type"`
	TextContent     string                 `json:"textContent,omitempty" db:"text_content"`
	ImageData       *string                `json:"imageData,omitempty" db:"image_data"`
	Categories      []string               `json:"categories" db:"categories"`
	AISummary       string                 `json:"aiSummary,omitempty" db:"ai_summary"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	Embedding       []float32              `json:"-" db:"embedding"`
	Status          string                 `json:"status" db:"status"`
	AddedAt         time.Time              `json:"addedAt" db:"added_at"`
	ArchivedAt      *time.Time             `json:"archivedAt,omitempty" db:"archived_at"`
	LastShownAt     *time.Time             `json:"lastShownAt,omitempty" db:"last_shown_at"`
	ShownCount      int                    `json:"shownCount" db:"shown_count"`
	EngagementScore float64                `json:"engagementScore" db:"engagement_score"`
	AvgDwellMs      float64                `json:"avgDwellMs" db:"avg_dwell_ms"`
	OpenCount       int                    `json:"openCount" db:"open_count"`
	LikedAt         *time.Time             `json:"likedAt,omitempty" db:"liked_at"`
}

// PrimaryCategory is the category the diversity pass keys on.
func (e *LibraryEntry) PrimaryCategory() string {
	if len(e.Categories) == 0 {
		return ""
	}
	return e.Categories[0]
}

func (e *LibraryEntry) Liked() bool {
	return e.LikedAt != nil
}

type CreateLinkRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// Upload payload types for non-URL content.
const (
	UploadTypeImage = "image"
	UploadTypeText  = "text"
)

type UploadRequest struct {
	Type        string `json:"type" validate:"required,oneof=image text"`
	Title       string `json:"title" validate:"omitempty,max=300"`
	TextContent string `json:"textContent" validate:"required_if=Type text,max=10000"`
	ImageData   string `json:"imageData" validate:"required_if=Type image"`
}

type BulkUploadRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,max=50,dive,max=2048"`
}

// Bulk upload per-item outcomes.
const (
	BulkItemAdded     = "added"
	BulkItemDuplicate = "duplicate"
	BulkItemError     = "error"
)

type BulkUploadResult struct {
	URL    string `json:"url"`
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type BulkUploadSummary struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

type BulkUploadResponse struct {
	Results []BulkUploadResult `json:"results"`
	Summary BulkUploadSummary  `json:"summary"`
}

type UpdateEntryRequest struct {
	Status         *string `json:"status" validate:"omitempty,oneof=active archived"`
	ShownCount     *int    `json:"shownCount" validate:"omitempty,min=0"`
	IncrementShown *bool   `json:"incrementShown"`
	Liked          *bool   `json:"liked"`
}

type LibraryStats struct {
	Active     int      `json:"active"`
	Archived   int      `json:"archived"`
	Total      int      `json:"total"`
	Categories []string `json:"categories"`
}

type UnfurlRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// UnfurlResult is the preview metadata for a URL.
type UnfurlResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	SiteName    string `json:"siteName"`
	ContentType string `json:"contentType"`
	VideoID     string `json:"videoId,omitempty"`
	IsFallback  bool   `json:"isFallback"`
}
