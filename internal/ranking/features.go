package ranking

import (
	"math"
	"time"

	"github.com/lanefeed/lanefeed/pkg/models"
)

// FeatureNames is the canonical feature vocabulary, in the order the
// dataset exporter and reranker documentation present it. Every scored
// candidate gets exactly these keys.
var FeatureNames = []string{
	"f_engagement",
	"f_semantic",
	"f_session",
	"f_time_pref",
	"f_freshness",
	"f_exploration",
	"f_shown_count_norm",
	"f_open_rate",
	"f_days_since_added_norm",
	"f_is_liked",
	"f_is_unseen",
	"f_category_count_norm",
	"f_has_embedding",
	"f_content_type_prior",
	"f_session_momentum",
	"f_session_skip_pressure",
	"f_session_fatigue",
	"f_session_same_lane_boost",
	"f_ucb_uncertainty",
	"f_category_novelty",
	"f_session_novelty",
}

// buildFeatures assembles the per-candidate feature map logged with
// ranking events and consumed by the reranker. All values are finite
// and the bounded ones live in [0,1].
func buildFeatures(
	e *models.LibraryEntry,
	signals SignalScores,
	session sessionTerms,
	exploration explorationTerms,
	stats *DatasetStats,
	now time.Time,
) map[string]float64 {
	shown := float64(e.ShownCount)

	isLiked := 0.0
	if e.LikedAt != nil {
		isLiked = 1
	}
	isUnseen := 0.0
	if e.ShownCount == 0 {
		isUnseen = 1
	}
	hasEmbedding := 0.0
	if len(e.Embedding) > 0 {
		hasEmbedding = 1
	}

	return map[string]float64{
		"f_engagement":              signals.Engagement,
		"f_semantic":                signals.Semantic,
		"f_session":                 signals.Session,
		"f_time_pref":               signals.TimePref,
		"f_freshness":               signals.Freshness,
		"f_exploration":             signals.Exploration,
		"f_shown_count_norm":        clamp01(shown / 20),
		"f_open_rate":               clamp01(float64(e.OpenCount) / math.Max(1, shown)),
		"f_days_since_added_norm":   clamp01(daysSince(now, e.AddedAt) / 120),
		"f_is_liked":                isLiked,
		"f_is_unseen":               isUnseen,
		"f_category_count_norm":     clamp01(float64(len(e.Categories)) / 4),
		"f_has_embedding":           hasEmbedding,
		"f_content_type_prior":      stats.TypeMean(e.ContentType),
		"f_session_momentum":        clamp01(session.momentum / 5),
		"f_session_skip_pressure":   clamp01(session.skipPressure / 5),
		"f_session_fatigue":         clamp01(session.fatigue / 4),
		"f_session_same_lane_boost": session.sameLane,
		"f_ucb_uncertainty":         clamp01(exploration.uncertainty / 3),
		"f_category_novelty":        clamp01(exploration.categoryNovelty),
		"f_session_novelty":         exploration.sessionNovelty,
	}
}
