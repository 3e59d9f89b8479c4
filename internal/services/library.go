package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/pkg/models"
)

// entryColumns is the canonical select list for links rows; scanEntry
// must stay in column order with it.
const entryColumns = `id, user_id, url, title, description, thumbnail, site_name,
	content_type, text_content, image_data, categories, ai_summary, metadata,
	embedding, status, added_at, archived_at, last_shown_at, shown_count,
	engagement_score, avg_dwell_ms, open_count, liked_at`

type LibraryService struct {
	db     *database.Database
	logger *logrus.Logger
}

func NewLibraryService(db *database.Database, logger *logrus.Logger) *LibraryService {
	return &LibraryService{db: db, logger: logger}
}

func scanEntry(row pgx.Row) (*models.LibraryEntry, error) {
	var e models.LibraryEntry
	var metadata []byte

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.URL,
		&e.Title,
		&e.Description,
		&e.Thumbnail,
		&e.SiteName,
		&e.ContentType,
		&e.TextContent,
		&e.ImageData,
		&e.Categories,
		&e.AISummary,
		&metadata,
		&e.Embedding,
		&e.Status,
		&e.AddedAt,
		&e.ArchivedAt,
		&e.LastShownAt,
		&e.ShownCount,
		&e.EngagementScore,
		&e.AvgDwellMs,
		&e.OpenCount,
		&e.LikedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
		}
	}

	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]models.LibraryEntry, error) {
	defer rows.Close()

	var entries []models.LibraryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// List returns the user's entries for one status, newest first.
func (s *LibraryService) List(ctx context.Context, userID, status string, limit int) ([]models.LibraryEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE user_id = $1 AND status = $2 ORDER BY added_at DESC`, entryColumns)
	args := []interface{}{userID, status}

	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.db.PG.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanEntries(rows)
}

func (s *LibraryService) Get(ctx context.Context, userID, id string) (*models.LibraryEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE user_id = $1 AND id = $2`, entryColumns)

	e, err := scanEntry(s.db.PG.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}
	return e, nil
}

// Stats summarizes the library for the client's archive view.
func (s *LibraryService) Stats(ctx context.Context, userID string) (*models.LibraryStats, error) {
	var stats models.LibraryStats
	err := s.db.PG.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'archived'),
			COUNT(*)
		FROM links WHERE user_id = $1`,
		userID,
	).Scan(&stats.Active, &stats.Archived, &stats.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	categories, err := s.ActiveCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.Categories = categories

	return &stats, nil
}

// ActiveCategories returns the distinct categories across active
// entries, sorted, for the feed's tab list and library stats.
func (s *LibraryService) ActiveCategories(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.PG.Query(ctx, `
		SELECT DISTINCT unnest(categories) AS category
		FROM links
		WHERE user_id = $1 AND status = 'active'
		ORDER BY category`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Update applies the PATCH fields and returns the updated row. Rows
// belonging to other users are indistinguishable from missing ones.
func (s *LibraryService) Update(ctx context.Context, userID, id string, req *models.UpdateEntryRequest) (*models.LibraryEntry, error) {
	now := time.Now()

	set := []string{}
	args := []interface{}{userID, id}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if req.Status != nil {
		set = append(set, "status = "+arg(*req.Status))
		if *req.Status == models.StatusArchived {
			set = append(set, "archived_at = "+arg(now))
		} else {
			set = append(set, "archived_at = NULL")
		}
	}
	if req.ShownCount != nil {
		set = append(set, "shown_count = "+arg(*req.ShownCount))
	}
	if req.IncrementShown != nil && *req.IncrementShown {
		set = append(set, "shown_count = shown_count + 1", "last_shown_at = "+arg(now))
	}
	if req.Liked != nil {
		if *req.Liked {
			set = append(set, "liked_at = "+arg(now))
		} else {
			set = append(set, "liked_at = NULL")
		}
	}

	if len(set) == 0 {
		return s.Get(ctx, userID, id)
	}

	query := "UPDATE links SET "
	for i, clause := range set {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += fmt.Sprintf(" WHERE user_id = $1 AND id = $2 RETURNING %s", entryColumns)

	e, err := scanEntry(s.db.PG.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}
	return e, nil
}

// Delete removes the entry permanently; engagement rows cascade.
func (s *LibraryService) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.db.PG.Exec(ctx, `DELETE FROM links WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.WithFields(logrus.Fields{"user_id": userID, "link_id": id}).Info("Entry deleted")
	return nil
}
