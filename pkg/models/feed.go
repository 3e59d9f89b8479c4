package models

import "time"

// FeedQuery carries the parsed GET /feed parameters. Session context
// fields mirror what the client accumulated since its last flush.
type FeedQuery struct {
	Category    string
	Limit       int
	Offset      int
	SessionID   string
	ExcludeIDs  []string
	EngagedIDs  []string
	EngagedCats []string
	SkippedCats []string
	CardsShown  int
}

type FeedResponse struct {
	Links            []LibraryEntry `json:"links"`
	Categories       []string       `json:"categories"`
	Total            int            `json:"total"`
	Filtered         int            `json:"filtered"`
	FeedRequestID    string         `json:"feedRequestId"`
	AlgorithmVersion string         `json:"algorithmVersion"`
	RerankerApplied  bool           `json:"rerankerApplied"`
	RerankerVersion  *string        `json:"rerankerVersion"`
}

// RankingEvent snapshots one candidate considered for one feed request,
// with the features that produced its score, for offline training.
type RankingEvent struct {
	ID               int64              `db:"id"`
	UserID           string             `db:"user_id"`
	FeedRequestID    string             `db:"feed_request_id"`
	LinkID           string             `db:"link_id"`
	CandidateRank    int                `db:"candidate_rank"`
	ServedRank       *int               `db:"served_rank"`
	BaseScore        float64            `db:"base_score"`
	RerankScore      *float64           `db:"rerank_score"`
	FinalScore       float64            `db:"final_score"`
	Features         map[string]float64 `db:"features"`
	AlgorithmVersion string             `db:"algorithm_version"`
	RerankerVersion  *string            `db:"reranker_version"`
	ActiveCategory   string             `db:"active_category"`
	CardsShown       int                `db:"cards_shown"`
	SessionID        *string            `db:"session_id"`
	CreatedAt        time.Time          `db:"created_at"`
}
