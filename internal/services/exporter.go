package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/database"
)

// exportQuerySQL joins each ranking event with the engagement outcomes
// observed for the same (user, link) within six hours after it, scoped
// to the event's session when it has one and to the feed request when
// the engagement row recorded one.
const exportQuerySQL = `
	SELECT
		r.feed_request_id, r.user_id, r.session_id, r.link_id,
		r.algorithm_version, r.reranker_version, r.active_category,
		r.candidate_rank, r.served_rank, r.base_score, r.rerank_score,
		r.final_score, r.features, r.created_at,
		l.content_type, l.categories, l.liked_at IS NOT NULL,
		COALESCE(e.open_count, 0)::int,
		COALESCE(e.max_dwell_ms, 0)::int,
		COALESCE(e.avg_dwell_ms, 0)::float8,
		COALESCE(e.fast_skip_count, 0)::int
	FROM ranking_events r
	JOIN links l ON l.id = r.link_id
	LEFT JOIN LATERAL (
		SELECT
			COUNT(*) FILTER (WHERE ev.event_type = 'open') AS open_count,
			MAX(ev.dwell_time_ms) FILTER (WHERE ev.event_type = 'dwell') AS max_dwell_ms,
			AVG(ev.dwell_time_ms) FILTER (WHERE ev.event_type = 'dwell') AS avg_dwell_ms,
			COUNT(*) FILTER (WHERE ev.event_type = 'dwell' AND ev.dwell_time_ms < 1500) AS fast_skip_count
		FROM engagements ev
		WHERE ev.user_id = r.user_id
		  AND ev.link_id = r.link_id
		  AND ev.created_at >= r.created_at
		  AND ev.created_at < r.created_at + INTERVAL '6 hours'
		  AND (r.session_id IS NULL OR ev.session_id = r.session_id)
		  AND (ev.feed_request_id IS NULL OR ev.feed_request_id = r.feed_request_id)
	) e ON true
	WHERE r.created_at >= $1`

// DatasetRow is one JSONL record of the training dataset. Key names
// are the contract the reranker training script parses.
type DatasetRow struct {
	FeedRequestID    string             `json:"feed_request_id"`
	UserID           string             `json:"user_id"`
	SessionID        *string            `json:"session_id"`
	LinkID           string             `json:"link_id"`
	AlgorithmVersion string             `json:"algorithm_version"`
	RerankerVersion  *string            `json:"reranker_version"`
	ActiveCategory   string             `json:"active_category"`
	CandidateRank    int                `json:"candidate_rank"`
	ServedRank       *int               `json:"served_rank"`
	BaseScore        float64            `json:"base_score"`
	RerankScore      *float64           `json:"rerank_score"`
	FinalScore       float64            `json:"final_score"`
	CreatedAt        time.Time          `json:"created_at"`
	ContentType      string             `json:"content_type"`
	Categories       []string           `json:"categories"`
	OpenCount        int                `json:"open_count"`
	MaxDwellMs       int                `json:"max_dwell_ms"`
	AvgDwellMs       float64            `json:"avg_dwell_ms"`
	FastSkipCount    int                `json:"fast_skip_count"`
	Liked            bool               `json:"liked"`
	Reward           float64            `json:"reward"`
	Features         map[string]float64 `json:"features"`
}

type ExportOptions struct {
	Days   int
	UserID string // empty = all users
}

type ExportService struct {
	db     *database.Database
	logger *logrus.Logger
}

func NewExportService(db *database.Database, logger *logrus.Logger) *ExportService {
	return &ExportService{db: db, logger: logger}
}

// Export streams the labeled dataset as JSONL and returns the number
// of rows written.
func (s *ExportService) Export(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	days := opts.Days
	if days <= 0 {
		days = 14
	}
	since := time.Now().AddDate(0, 0, -days)

	query := exportQuerySQL
	args := []interface{}{since}
	if opts.UserID != "" {
		query += " AND r.user_id = $2"
		args = append(args, opts.UserID)
	}
	query += " ORDER BY r.created_at, r.feed_request_id, r.candidate_rank"

	rows, err := s.db.PG.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to query ranking events: %w", err)
	}
	defer rows.Close()

	encoder := json.NewEncoder(w)
	count := 0
	for rows.Next() {
		var row DatasetRow
		var features []byte

		err := rows.Scan(
			&row.FeedRequestID, &row.UserID, &row.SessionID, &row.LinkID,
			&row.AlgorithmVersion, &row.RerankerVersion, &row.ActiveCategory,
			&row.CandidateRank, &row.ServedRank, &row.BaseScore, &row.RerankScore,
			&row.FinalScore, &features, &row.CreatedAt,
			&row.ContentType, &row.Categories, &row.Liked,
			&row.OpenCount, &row.MaxDwellMs, &row.AvgDwellMs, &row.FastSkipCount,
		)
		if err != nil {
			return count, fmt.Errorf("failed to scan dataset row: %w", err)
		}

		row.Features = map[string]float64{}
		if len(features) > 0 {
			if err := json.Unmarshal(features, &row.Features); err != nil {
				return count, fmt.Errorf("failed to unmarshal features: %w", err)
			}
		}
		if row.Categories == nil {
			row.Categories = []string{}
		}

		row.Reward = rewardLabel(row.ServedRank != nil, row.OpenCount, row.MaxDwellMs, row.Liked, row.FastSkipCount)

		if err := encoder.Encode(&row); err != nil {
			return count, fmt.Errorf("failed to write dataset row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	exportRowsTotal.Add(float64(count))

	s.logger.WithFields(logrus.Fields{
		"rows": count,
		"days": days,
	}).Info("Training dataset exported")

	return count, nil
}

// rewardLabel is the offline label: opens dominate, sustained dwell
// helps, a like helps, any fast skip hurts. Unserved candidates get 0
// because the user never saw them.
func rewardLabel(served bool, openCount, maxDwellMs int, liked bool, fastSkipCount int) float64 {
	if !served {
		return 0
	}

	r := 0.0
	if openCount > 0 {
		r += 0.6
	}

	dwell := float64(maxDwellMs) / 45000.0
	if dwell > 1 {
		dwell = 1
	}
	if dwell < 0 {
		dwell = 0
	}
	r += dwell * 0.35

	if liked {
		r += 0.35
	}
	if fastSkipCount > 0 {
		r -= 0.3
	}

	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
