package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/internal/messaging"
	"github.com/lanefeed/lanefeed/pkg/models"
)

// dwellUpdateSQL folds one interaction score into the entry's running
// means. The expressions read shown_count server-side so concurrent
// batches on the same entry never lose updates; engagement_score stays
// clamped to [0,1].
const dwellUpdateSQL = `
	UPDATE links SET
		engagement_score = LEAST(1, GREATEST(0,
			CASE WHEN shown_count <= 1 THEN $3
			     ELSE (engagement_score * (shown_count - 1) + $3) / shown_count END)),
		avg_dwell_ms =
			CASE WHEN shown_count <= 1 THEN $4
			     ELSE (avg_dwell_ms * (shown_count - 1) + $4) / shown_count END
	WHERE user_id = $1 AND id = $2
	RETURNING categories`

// timePreferenceUpsertSQL merges one request's per-category
// contribution {sum=$5, count=$6} into the stored running mean.
const timePreferenceUpsertSQL = `
	INSERT INTO time_preferences (user_id, hour_slot, day_type, category, avg_engagement, sample_count, updated_at)
	VALUES ($1, $2, $3, $4, $7, $6, $8)
	ON CONFLICT (user_id, hour_slot, day_type, category) DO UPDATE SET
		avg_engagement = (time_preferences.avg_engagement * time_preferences.sample_count + $5)
			/ (time_preferences.sample_count + $6),
		sample_count = time_preferences.sample_count + $6,
		updated_at = $8`

type EngagementService struct {
	db     *database.Database
	stream *messaging.EventStream
	logger *logrus.Logger
}

func NewEngagementService(db *database.Database, stream *messaging.EventStream, logger *logrus.Logger) *EngagementService {
	return &EngagementService{db: db, stream: stream, logger: logger}
}

// Ingest applies one engagement batch atomically: log every event with
// server-stamped time fields, bump impression/open counters, fold dwell
// scores into the running means, and update time-of-day preferences.
// Events referencing links that no longer exist are dropped; a batch
// with no valid events at all is rejected.
func (s *EngagementService) Ingest(ctx context.Context, userID string, events []models.EngagementEvent) (int, error) {
	valid := make([]models.EngagementEvent, 0, len(events))
	for _, ev := range events {
		if ev.LinkID != "" && models.ValidEventType(ev.EventType) {
			valid = append(valid, ev)
		}
	}
	if len(valid) == 0 {
		return 0, ErrNoValidEvents
	}

	now := time.Now()
	hourOfDay := now.Hour()
	dayOfWeek := int(now.Weekday()) // 0 = Sunday
	dayType := models.DayTypeFor(now)

	tx, err := s.db.PG.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Deleted links are a normal race against a client's pending flush;
	// their events are silently dropped rather than failing the batch.
	valid, err = s.filterKnownLinks(ctx, tx, userID, valid)
	if err != nil {
		return 0, err
	}
	if len(valid) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return 0, nil
	}

	for _, ev := range valid {
		_, err := tx.Exec(ctx, `
			INSERT INTO engagements (
				id, user_id, link_id, event_type, dwell_time_ms, swipe_velocity,
				card_index, hour_of_day, day_of_week, session_id, feed_request_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.New(), userID, ev.LinkID, ev.EventType, ev.DwellTimeMs, ev.SwipeVelocity,
			ev.CardIndex, hourOfDay, dayOfWeek, nullable(ev.SessionID), nullable(ev.FeedRequestID), now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert engagement event: %w", err)
		}
	}

	// Impression and open counters, aggregated per link. Impressions run
	// before dwell updates so the running means divide by the shown count
	// that includes this batch's renders.
	linkOrder, counters := aggregateCounters(valid)
	for _, linkID := range linkOrder {
		c := counters[linkID]
		if c.impressions > 0 {
			_, err := tx.Exec(ctx,
				`UPDATE links SET shown_count = shown_count + $3, last_shown_at = $4 WHERE user_id = $1 AND id = $2`,
				userID, linkID, c.impressions, now,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to update shown count: %w", err)
			}
		}
		if c.opens > 0 {
			_, err := tx.Exec(ctx,
				`UPDATE links SET open_count = open_count + $3 WHERE user_id = $1 AND id = $2`,
				userID, linkID, c.opens,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to update open count: %w", err)
			}
		}
	}

	// Dwell events, sequentially in arrival order.
	prefs := map[string]*categoryContribution{}
	for i := range valid {
		ev := &valid[i]
		if ev.EventType != models.EventDwell || ev.DwellTimeMs == nil || *ev.DwellTimeMs <= 0 {
			continue
		}

		score := interactionScore(*ev.DwellTimeMs, ev.SwipeVelocity)

		var categories []string
		err := tx.QueryRow(ctx, dwellUpdateSQL, userID, ev.LinkID, score, float64(*ev.DwellTimeMs)).Scan(&categories)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return 0, fmt.Errorf("failed to apply dwell update: %w", err)
		}

		for _, category := range categories {
			contrib, ok := prefs[category]
			if !ok {
				contrib = &categoryContribution{}
				prefs[category] = contrib
			}
			contrib.sum += score
			contrib.count++
		}
	}

	// Time-preference upserts, one per touched category.
	for _, category := range sortedKeys(prefs) {
		contrib := prefs[category]
		_, err := tx.Exec(ctx, timePreferenceUpsertSQL,
			userID, hourOfDay, dayType, category,
			contrib.sum, contrib.count, contrib.sum/float64(contrib.count), now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert time preference: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.stream.PublishEngagement(userID, valid)
	engagementEventsTotal.Add(float64(len(valid)))

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"processed": len(valid),
	}).Debug("Engagement batch ingested")

	return len(valid), nil
}

type linkCounters struct {
	impressions int
	opens       int
}

func aggregateCounters(events []models.EngagementEvent) ([]string, map[string]*linkCounters) {
	order := []string{}
	counters := map[string]*linkCounters{}

	for _, ev := range events {
		c, ok := counters[ev.LinkID]
		if !ok {
			c = &linkCounters{}
			counters[ev.LinkID] = c
			order = append(order, ev.LinkID)
		}
		switch ev.EventType {
		case models.EventImpression:
			c.impressions++
		case models.EventOpen:
			c.opens++
		}
	}
	return order, counters
}

type categoryContribution struct {
	sum   float64
	count int
}

func (s *EngagementService) filterKnownLinks(ctx context.Context, tx pgx.Tx, userID string, events []models.EngagementEvent) ([]models.EngagementEvent, error) {
	ids := make([]string, 0, len(events))
	seen := map[string]bool{}
	for _, ev := range events {
		if !seen[ev.LinkID] {
			seen[ev.LinkID] = true
			ids = append(ids, ev.LinkID)
		}
	}

	rows, err := tx.Query(ctx, `SELECT id FROM links WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event links: %w", err)
	}
	defer rows.Close()

	known := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan link id: %w", err)
		}
		known[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kept := events[:0]
	for _, ev := range events {
		if known[ev.LinkID] {
			kept = append(kept, ev)
		}
	}
	return kept, nil
}

// interactionScore maps a dwell measurement onto [0,1]: log-scaled
// dwell time saturating at two minutes, discounted by fast swiping.
func interactionScore(dwellMs int, velocity *float64) float64 {
	seconds := float64(dwellMs) / 1000.0
	dwellComponent := math.Min(0.7, math.Log(1+seconds)/math.Log(121)*0.7)

	velocityPenalty := 0.0
	if velocity != nil {
		velocityPenalty = math.Min(0.2, math.Max(0, (*velocity-0.5)*0.1))
	}

	score := dwellComponent - velocityPenalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sortedKeys(m map[string]*categoryContribution) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
