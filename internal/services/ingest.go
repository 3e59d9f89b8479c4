package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/internal/unfurl"
	"github.com/lanefeed/lanefeed/pkg/models"
)

// Unfurler fetches preview metadata for a URL.
type Unfurler interface {
	Unfurl(ctx context.Context, rawURL string) (*models.UnfurlResult, error)
}

// AIClient labels and embeds content; both calls degrade internally and
// never fail ingestion.
type AIClient interface {
	Categorize(ctx context.Context, title, content string) []string
	Embed(ctx context.Context, text string) []float32
}

type IngestService struct {
	db       *database.Database
	unfurler Unfurler
	ai       AIClient
	logger   *logrus.Logger
}

func NewIngestService(db *database.Database, unfurler Unfurler, ai AIClient, logger *logrus.Logger) *IngestService {
	return &IngestService{
		db:       db,
		unfurler: unfurler,
		ai:       ai,
		logger:   logger,
	}
}

// Preview unfurls a URL without saving anything.
func (s *IngestService) Preview(ctx context.Context, rawURL string) (*models.UnfurlResult, error) {
	return s.unfurler.Unfurl(ctx, rawURL)
}

// SaveURL ingests one link: unfurl, categorize, embed, insert. The
// duplicate check runs before the network work so re-saves are cheap,
// and again at insert time to close the race.
func (s *IngestService) SaveURL(ctx context.Context, userID, rawURL string) (*models.LibraryEntry, error) {
	trimmed := strings.TrimSpace(rawURL)
	if _, err := unfurl.ParseURL(trimmed); err != nil {
		return nil, err
	}

	if existing, err := s.findByURL(ctx, userID, trimmed); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &DuplicateLinkError{Existing: existing}
	}

	result, err := s.unfurler.Unfurl(ctx, trimmed)
	if err != nil {
		return nil, err
	}

	categories := s.ai.Categorize(ctx, result.Title, result.Description)
	embedding := s.ai.Embed(ctx, embedText(result.Title, result.Description, categories, result.SiteName))

	metadata := map[string]interface{}{}
	if result.VideoID != "" {
		metadata["videoId"] = result.VideoID
	}
	if result.IsFallback {
		metadata["unfurlFallback"] = true
	}

	entry := &models.LibraryEntry{
		ID:          models.NewID(),
		UserID:      userID,
		URL:         &trimmed,
		Title:       result.Title,
		Description: result.Description,
		Thumbnail:   result.Thumbnail,
		SiteName:    result.SiteName,
		ContentType: result.ContentType,
		Categories:  categories,
		Metadata:    metadata,
		Embedding:   embedding,
		Status:      models.StatusActive,
		AddedAt:     time.Now(),
	}

	inserted, err := s.insertEntry(ctx, entry)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race to a concurrent save of the same URL.
		existing, err := s.findByURL(ctx, userID, trimmed)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("insert conflicted but existing row not found")
		}
		return nil, &DuplicateLinkError{Existing: existing}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":      userID,
		"link_id":      entry.ID,
		"content_type": entry.ContentType,
		"categories":   entry.Categories,
	}).Info("Link saved")

	return entry, nil
}

// SaveUpload ingests direct text or image content. No URL, no unfurl.
func (s *IngestService) SaveUpload(ctx context.Context, userID string, req *models.UploadRequest) (*models.LibraryEntry, error) {
	entry := &models.LibraryEntry{
		ID:       models.NewID(),
		UserID:   userID,
		Title:    strings.TrimSpace(req.Title),
		Metadata: map[string]interface{}{},
		Status:   models.StatusActive,
		AddedAt:  time.Now(),
	}

	switch req.Type {
	case models.UploadTypeText:
		entry.ContentType = models.ContentTypeText
		entry.TextContent = strings.TrimSpace(req.TextContent)
		if entry.Title == "" {
			entry.Title = deriveTitle(entry.TextContent)
		}
	case models.UploadTypeImage:
		entry.ContentType = models.ContentTypeImage
		imageData := strings.TrimSpace(req.ImageData)
		entry.ImageData = &imageData
		if entry.Title == "" {
			entry.Title = "Saved image"
		}
	default:
		return nil, fmt.Errorf("unsupported upload type %q", req.Type)
	}

	entry.Categories = s.ai.Categorize(ctx, entry.Title, entry.TextContent)
	entry.Embedding = s.ai.Embed(ctx, embedText(entry.Title, entry.TextContent, entry.Categories, ""))

	if _, err := s.insertEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":      userID,
		"link_id":      entry.ID,
		"content_type": entry.ContentType,
	}).Info("Upload saved")

	return entry, nil
}

// SaveBulk ingests up to the batch cap of URLs sequentially; one bad
// URL never aborts the rest.
func (s *IngestService) SaveBulk(ctx context.Context, userID string, urls []string) *models.BulkUploadResponse {
	resp := &models.BulkUploadResponse{Results: make([]models.BulkUploadResult, 0, len(urls))}

	for _, rawURL := range urls {
		item := models.BulkUploadResult{URL: strings.TrimSpace(rawURL)}

		entry, err := s.SaveURL(ctx, userID, rawURL)
		var dup *DuplicateLinkError
		switch {
		case err == nil:
			item.Status = models.BulkItemAdded
			item.ID = entry.ID
			resp.Summary.Added++
		case errors.As(err, &dup):
			item.Status = models.BulkItemDuplicate
			item.ID = dup.Existing.ID
			resp.Summary.Duplicates++
		case errors.Is(err, unfurl.ErrUnsafeURL):
			item.Status = models.BulkItemError
			item.Error = "invalid or unsafe URL"
			resp.Summary.Errors++
		default:
			s.logger.WithError(err).WithField("url", item.URL).Warn("Bulk item failed")
			item.Status = models.BulkItemError
			item.Error = "failed to save"
			resp.Summary.Errors++
		}

		resp.Results = append(resp.Results, item)
	}

	return resp
}

func (s *IngestService) findByURL(ctx context.Context, userID, url string) (*models.LibraryEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE user_id = $1 AND url = $2`, entryColumns)

	e, err := scanEntry(s.db.PG.QueryRow(ctx, query, userID, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	return e, nil
}

// insertEntry reports false when the (user_id, url) uniqueness index
// absorbed the insert.
func (s *IngestService) insertEntry(ctx context.Context, e *models.LibraryEntry) (bool, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tag, err := s.db.PG.Exec(ctx, `
		INSERT INTO links (
			id, user_id, url, title, description, thumbnail, site_name,
			content_type, text_content, image_data, categories, ai_summary,
			metadata, embedding, status, added_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id, url) WHERE url IS NOT NULL DO NOTHING`,
		e.ID, e.UserID, e.URL, e.Title, e.Description, e.Thumbnail, e.SiteName,
		e.ContentType, e.TextContent, e.ImageData, e.Categories, e.AISummary,
		metadata, e.Embedding, e.Status, e.AddedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// embedText concatenates the fields the embedding is computed over.
func embedText(title, description string, categories []string, siteName string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{title, description, strings.Join(categories, ", "), siteName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// deriveTitle takes the first line of pasted text, capped for display.
func deriveTitle(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "Saved note"
	}
	runes := []rune(line)
	if len(runes) > 80 {
		return string(runes[:80])
	}
	return line
}
