package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/internal/messaging"
	"github.com/lanefeed/lanefeed/internal/ranking"
	"github.com/lanefeed/lanefeed/internal/reranker"
	"github.com/lanefeed/lanefeed/pkg/models"
)

type FeedService struct {
	db       *database.Database
	library  *LibraryService
	reranker *reranker.Reranker
	stream   *messaging.EventStream
	cfg      *config.Config
	logger   *logrus.Logger
}

func NewFeedService(db *database.Database, library *LibraryService, rr *reranker.Reranker, stream *messaging.EventStream, cfg *config.Config, logger *logrus.Logger) *FeedService {
	return &FeedService{
		db:       db,
		library:  library,
		reranker: rr,
		stream:   stream,
		cfg:      cfg,
		logger:   logger,
	}
}

// Feed assembles one ranked page: load candidates and context in
// parallel, score, rerank, diversify, paginate. Rendering a feed never
// modifies entries; impression effects arrive via engagement ingestion.
func (s *FeedService) Feed(ctx context.Context, userID string, q *models.FeedQuery) (*models.FeedResponse, error) {
	category := q.Category
	if category == "" {
		category = "All"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.Ranking.DefaultLimit
	}
	if limit > s.cfg.Ranking.MaxLimit {
		limit = s.cfg.Ranking.MaxLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	engagedIDs := recentIDs(q.EngagedIDs, s.cfg.Ranking.EngagedWindow)

	var (
		wg         sync.WaitGroup
		candidates []models.LibraryEntry
		categories []string
		embeddings [][]float32
		prefs      []models.TimePreference
		candErr    error
		catErr     error
		embErr     error
		prefErr    error
	)

	now := time.Now()

	wg.Add(4)
	go func() {
		defer wg.Done()
		candidates, candErr = s.loadCandidates(ctx, userID, category)
	}()
	go func() {
		defer wg.Done()
		categories, catErr = s.library.ActiveCategories(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		embeddings, embErr = s.loadEmbeddings(ctx, userID, engagedIDs)
	}()
	go func() {
		defer wg.Done()
		prefs, prefErr = s.loadTimePreferences(ctx, userID, now)
	}()
	wg.Wait()

	for _, err := range []error{candErr, catErr, embErr, prefErr} {
		if err != nil {
			return nil, err
		}
	}

	total := len(candidates)
	pool := excludeEntries(candidates, q.ExcludeIDs)

	sess := ranking.SessionContext{
		EngagedLinkIDs:    engagedIDs,
		EngagedCategories: q.EngagedCats,
		SkippedCategories: q.SkippedCats,
		EngagedEmbeddings: embeddings,
		CardsShown:        q.CardsShown,
	}

	cands, _ := ranking.Rank(pool, prefs, sess, now)
	rerankResult := s.reranker.Apply(cands)
	if s.cfg.Ranking.Reranker.Enabled {
		recordRerankerOutcome(rerankResult.Applied)
	}

	// candidateRank snapshots the score order before the diversity pass
	// reshuffles lanes.
	scoreRank := make(map[string]int, len(cands))
	for i, c := range cands {
		scoreRank[c.Entry.ID] = i + 1
	}

	cands = ranking.Diversify(cands)

	start := offset
	if start > len(cands) {
		start = len(cands)
	}
	end := start + limit
	if end > len(cands) {
		end = len(cands)
	}
	served := cands[start:end]

	links := make([]models.LibraryEntry, len(served))
	servedRank := make(map[string]int, len(served))
	servedIDs := make([]string, len(served))
	for i, c := range served {
		entry := *c.Entry
		entry.Embedding = nil
		links[i] = entry
		servedRank[entry.ID] = start + i + 1
		servedIDs[i] = entry.ID
	}

	feedRequestID := uuid.NewString()

	s.logRankingEvents(userID, feedRequestID, q, category, cands, scoreRank, servedRank, rerankResult, limit)

	s.stream.PublishFeedServed(messaging.FeedServed{
		UserID:          userID,
		FeedRequestID:   feedRequestID,
		SessionID:       q.SessionID,
		Category:        category,
		ServedLinkIDs:   servedIDs,
		CandidateCount:  len(cands),
		RerankerApplied: rerankResult.Applied,
		ServedAt:        now,
	})

	feedRequestsTotal.Inc()
	feedLatencySeconds.Observe(time.Since(now).Seconds())

	return &models.FeedResponse{
		Links:            links,
		Categories:       categories,
		Total:            total,
		Filtered:         len(pool),
		FeedRequestID:    feedRequestID,
		AlgorithmVersion: ranking.AlgorithmVersion,
		RerankerApplied:  rerankResult.Applied,
		RerankerVersion:  rerankResult.Version,
	}, nil
}

func (s *FeedService) loadCandidates(ctx context.Context, userID, category string) ([]models.LibraryEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE user_id = $1 AND status = 'active'`, entryColumns)
	args := []interface{}{userID}

	if category != "All" {
		query += " AND $2 = ANY(categories)"
		args = append(args, category)
	}
	query += fmt.Sprintf(" ORDER BY added_at DESC LIMIT %d", s.cfg.Ranking.CandidateCap)

	rows, err := s.db.PG.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	return scanEntries(rows)
}

func (s *FeedService) loadEmbeddings(ctx context.Context, userID string, linkIDs []string) ([][]float32, error) {
	if len(linkIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.PG.Query(ctx,
		`SELECT embedding FROM links WHERE user_id = $1 AND id = ANY($2) AND embedding IS NOT NULL`,
		userID, linkIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query engaged embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings [][]float32
	for rows.Next() {
		var embedding []float32
		if err := rows.Scan(&embedding); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		embeddings = append(embeddings, embedding)
	}
	return embeddings, rows.Err()
}

func (s *FeedService) loadTimePreferences(ctx context.Context, userID string, now time.Time) ([]models.TimePreference, error) {
	rows, err := s.db.PG.Query(ctx, `
		SELECT user_id, hour_slot, day_type, category, avg_engagement, sample_count, updated_at
		FROM time_preferences
		WHERE user_id = $1 AND hour_slot = $2 AND day_type = $3`,
		userID, now.Hour(), models.DayTypeFor(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query time preferences: %w", err)
	}
	defer rows.Close()

	var prefs []models.TimePreference
	for rows.Next() {
		var p models.TimePreference
		err := rows.Scan(&p.UserID, &p.HourSlot, &p.DayType, &p.Category, &p.AvgEngagement, &p.SampleCount, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// logRankingEvents snapshots the top candidates for offline training.
// Runs detached: a logging failure or slow insert never delays or
// fails the feed response.
func (s *FeedService) logRankingEvents(userID, feedRequestID string, q *models.FeedQuery, category string, cands []*ranking.Candidate, scoreRank, servedRank map[string]int, rr reranker.Result, limit int) {
	logCap := limit * 3
	if logCap < 60 {
		logCap = 60
	}
	if logCap > len(cands) {
		logCap = len(cands)
	}
	if logCap == 0 {
		return
	}

	events := make([]models.RankingEvent, 0, logCap)
	for _, c := range cands[:logCap] {
		ev := models.RankingEvent{
			UserID:           userID,
			FeedRequestID:    feedRequestID,
			LinkID:           c.Entry.ID,
			CandidateRank:    scoreRank[c.Entry.ID],
			BaseScore:        c.BaseScore,
			RerankScore:      c.RerankScore,
			FinalScore:       c.FinalScore,
			Features:         c.Features,
			AlgorithmVersion: ranking.AlgorithmVersion,
			RerankerVersion:  rr.Version,
			ActiveCategory:   category,
			CardsShown:       q.CardsShown,
			SessionID:        nullable(q.SessionID),
		}
		if rank, ok := servedRank[c.Entry.ID]; ok {
			ev.ServedRank = &rank
		}
		events = append(events, ev)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for i := range events {
			ev := &events[i]
			features, err := json.Marshal(ev.Features)
			if err != nil {
				s.logger.WithError(err).Warn("Failed to marshal ranking features")
				continue
			}

			_, err = s.db.PG.Exec(ctx, `
				INSERT INTO ranking_events (
					user_id, feed_request_id, link_id, candidate_rank, served_rank,
					base_score, rerank_score, final_score, features, algorithm_version,
					reranker_version, active_category, cards_shown, session_id, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
				ON CONFLICT (feed_request_id, link_id) DO NOTHING`,
				ev.UserID, ev.FeedRequestID, ev.LinkID, ev.CandidateRank, ev.ServedRank,
				ev.BaseScore, ev.RerankScore, ev.FinalScore, features, ev.AlgorithmVersion,
				ev.RerankerVersion, ev.ActiveCategory, ev.CardsShown, ev.SessionID,
			)
			if err != nil {
				s.logger.WithError(err).WithField("feed_request_id", feedRequestID).Warn("Failed to log ranking events")
				return
			}
		}
	}()
}

func excludeEntries(entries []models.LibraryEntry, excludeIDs []string) []models.LibraryEntry {
	if len(excludeIDs) == 0 {
		return entries
	}
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	kept := make([]models.LibraryEntry, 0, len(entries))
	for _, e := range entries {
		if _, skip := excluded[e.ID]; !skip {
			kept = append(kept, e)
		}
	}
	return kept
}

func recentIDs(ids []string, window int) []string {
	if window <= 0 || len(ids) <= window {
		return ids
	}
	return ids[len(ids)-window:]
}
