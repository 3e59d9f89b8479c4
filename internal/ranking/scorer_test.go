package ranking

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanefeed/lanefeed/pkg/models"
)

func TestRank_ColdStartDefaults(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	entries := []models.LibraryEntry{
		{
			ID:          "fresh",
			ContentType: models.ContentTypeArticle,
			Categories:  []string{"Tech"},
			AddedAt:     now.Add(-2 * time.Hour),
		},
	}

	cands, weights := Rank(entries, nil, SessionContext{}, now)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.InDelta(t, 0.58, c.Signals.Engagement, 0.001)
	assert.InDelta(t, 0.5, c.Signals.Semantic, 0.001)
	assert.InDelta(t, 0.5, c.Signals.Session, 0.001)
	assert.InDelta(t, 0.5, c.Signals.TimePref, 0.001)
	assert.InDelta(t, 0.72, c.Signals.Freshness, 0.001)
	assert.InDelta(t, 0.9531, c.Signals.Exploration, 0.001)

	// No embeddings, no time prefs, zero cards shown.
	assert.InDelta(t, 0.46, weights.Engagement, 0.0001)
	assert.InDelta(t, 0.318, weights.Freshness, 0.0001)
	assert.InDelta(t, 0.222, weights.Exploration, 0.0001)

	assert.InDelta(t, 0.7074, c.BaseScore, 0.001)
	assert.Equal(t, c.BaseScore, c.FinalScore)
	assert.Nil(t, c.RerankScore)
}

func TestRank_SessionAdaptation(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	added := now.Add(-3 * 24 * time.Hour)
	entries := []models.LibraryEntry{
		{ID: "crypto", ContentType: models.ContentTypeArticle, Categories: []string{"Crypto"}, AddedAt: added},
		{ID: "tech", ContentType: models.ContentTypeArticle, Categories: []string{"Tech"}, AddedAt: added},
	}

	sess := SessionContext{
		EngagedCategories: []string{"Tech"},
		SkippedCategories: []string{"Crypto"},
		CardsShown:        4,
	}

	cands, weights := Rank(entries, nil, sess, now)
	require.Len(t, cands, 2)

	assert.Equal(t, "tech", cands[0].Entry.ID)
	assert.Equal(t, "crypto", cands[1].Entry.ID)

	// The two candidates differ only in the session signal, so the score
	// gap is exactly the session delta times its weight.
	sessionGap := cands[0].Signals.Session - cands[1].Signals.Session
	assert.InDelta(t, 0.21, sessionGap, 0.001)
	assert.InDelta(t, sessionGap*weights.Session, cands[0].BaseScore-cands[1].BaseScore, 0.0001)
}

func TestRank_SessionMomentum(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	added := now.Add(-3 * 24 * time.Hour)
	entries := []models.LibraryEntry{
		{ID: "music", ContentType: models.ContentTypeArticle, Categories: []string{"Music"}, AddedAt: added},
		{ID: "ai", ContentType: models.ContentTypeArticle, Categories: []string{"AI"}, AddedAt: added},
	}

	sess := SessionContext{
		EngagedCategories: []string{"AI", "AI", "AI"},
		CardsShown:        6,
	}

	cands, _ := Rank(entries, nil, sess, now)
	require.Len(t, cands, 2)
	assert.Equal(t, "ai", cands[0].Entry.ID)

	// Three engagements weigh 0.92^2 + 0.92 + 1 = 2.7664.
	ai := findCandidate(t, cands, "ai")
	assert.InDelta(t, 2.7664/5, ai.Features["f_session_momentum"], 0.0001)

	music := findCandidate(t, cands, "music")
	assert.Zero(t, music.Features["f_session_momentum"])
}

func TestRank_FeatureContract(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	liked := now.Add(-time.Hour)
	shownAt := now.Add(-6 * time.Hour)

	entries := []models.LibraryEntry{
		{
			ID:          "embedded",
			ContentType: models.ContentTypeYouTube,
			Categories:  []string{"Tech", "Music"},
			Embedding:   []float32{0.3, 0.4, 0.5},
			AddedAt:     now.Add(-20 * 24 * time.Hour),
		},
		{
			ID:              "veteran",
			ContentType:     models.ContentTypeArticle,
			Categories:      []string{"Tech"},
			ShownCount:      18,
			OpenCount:       6,
			EngagementScore: 0.75,
			LastShownAt:     &shownAt,
			LikedAt:         &liked,
			AddedAt:         now.Add(-90 * 24 * time.Hour),
		},
		{
			ID:          "bare",
			ContentType: models.ContentTypeText,
			AddedAt:     now.Add(-time.Hour),
		},
	}

	sess := SessionContext{
		EngagedCategories: []string{"Tech", "Tech", "Music"},
		SkippedCategories: []string{"Crypto"},
		EngagedEmbeddings: [][]float32{{0.3, 0.4, 0.5}, {0.1, 0.9, 0.2}},
		CardsShown:        7,
	}

	cands, _ := Rank(entries, nil, sess, now)
	require.Len(t, cands, 3)

	for _, c := range cands {
		assert.Len(t, c.Features, len(FeatureNames), "entry %s", c.Entry.ID)
		for _, name := range FeatureNames {
			v, ok := c.Features[name]
			require.True(t, ok, "entry %s missing %s", c.Entry.ID, name)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "entry %s feature %s not finite", c.Entry.ID, name)
			assert.GreaterOrEqual(t, v, 0.0, "entry %s feature %s", c.Entry.ID, name)
			assert.LessOrEqual(t, v, 1.0, "entry %s feature %s", c.Entry.ID, name)
		}
		assert.GreaterOrEqual(t, c.BaseScore, 0.0)
		assert.LessOrEqual(t, c.BaseScore, 1.0)
	}

	// Spot-check the bookkeeping features against the veteran entry.
	veteran := findCandidate(t, cands, "veteran")
	assert.InDelta(t, 0.9, veteran.Features["f_shown_count_norm"], 0.0001)
	assert.InDelta(t, float64(6)/18, veteran.Features["f_open_rate"], 0.0001)
	assert.InDelta(t, 0.75, veteran.Features["f_days_since_added_norm"], 0.0001)
	assert.InDelta(t, 1.0, veteran.Features["f_is_liked"], 0.0001)
	assert.InDelta(t, 0.0, veteran.Features["f_is_unseen"], 0.0001)
	assert.InDelta(t, 0.0, veteran.Features["f_has_embedding"], 0.0001)
	assert.InDelta(t, 0.25, veteran.Features["f_category_count_norm"], 0.0001)

	bare := findCandidate(t, cands, "bare")
	assert.InDelta(t, 1.0, bare.Features["f_is_unseen"], 0.0001)
	assert.InDelta(t, 0.08, bare.Features["f_session_novelty"], 0.0001)
	assert.InDelta(t, 0.0, bare.Features["f_session_same_lane_boost"], 0.0001)

	embedded := findCandidate(t, cands, "embedded")
	assert.InDelta(t, 1.0, embedded.Features["f_has_embedding"], 0.0001)
	assert.InDelta(t, 0.04, embedded.Features["f_session_same_lane_boost"], 0.0001)
}

func TestRank_StableTies(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	added := now.Add(-2 * 24 * time.Hour)
	entries := []models.LibraryEntry{
		{ID: "first", ContentType: models.ContentTypeArticle, Categories: []string{"Tech"}, AddedAt: added},
		{ID: "second", ContentType: models.ContentTypeArticle, Categories: []string{"Tech"}, AddedAt: added},
		{ID: "third", ContentType: models.ContentTypeArticle, Categories: []string{"Tech"}, AddedAt: added},
	}

	cands, _ := Rank(entries, nil, SessionContext{}, now)
	require.Len(t, cands, 3)
	assert.Equal(t, cands[0].BaseScore, cands[1].BaseScore)
	assert.Equal(t, cands[1].BaseScore, cands[2].BaseScore)
	assert.Equal(t, []string{"first", "second", "third"}, candIDs(cands))

	// A fully tied single-lane page keeps its order through diversity.
	assert.Equal(t, []string{"first", "second", "third"}, candIDs(Diversify(cands)))
}

func TestRank_EmptyInput(t *testing.T) {
	cands, weights := Rank(nil, nil, SessionContext{}, time.Now())
	assert.Empty(t, cands)
	assert.InDelta(t, 1.0, weights.Sum(), 1e-9)
}

func findCandidate(t *testing.T, cands []*Candidate, id string) *Candidate {
	t.Helper()
	for _, c := range cands {
		if c.Entry.ID == id {
			return c
		}
	}
	t.Fatalf("candidate %s not found", id)
	return nil
}

func benchmarkEntries(n int) []models.LibraryEntry {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cats := []string{"Tech", "AI", "Music", "Art", "Science", "Food", "Travel", "Fun"}

	entries := make([]models.LibraryEntry, n)
	for i := range entries {
		e := models.LibraryEntry{
			ID:          fmt.Sprintf("entry-%d", i),
			ContentType: models.ContentTypeArticle,
			Categories:  []string{cats[i%len(cats)]},
			AddedAt:     now.Add(-time.Duration(i%90) * 24 * time.Hour),
			ShownCount:  i % 15,
		}
		if e.ShownCount > 0 {
			e.EngagementScore = float64(i%10) / 10
			e.OpenCount = i % 3
		}
		if i%3 == 0 {
			e.Embedding = []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
		}
		entries[i] = e
	}
	return entries
}

func BenchmarkRank(b *testing.B) {
	entries := benchmarkEntries(300)
	sess := SessionContext{
		EngagedCategories: []string{"Tech", "AI", "Tech", "Music"},
		SkippedCategories: []string{"Food"},
		EngagedEmbeddings: [][]float32{
			{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
			{0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1},
		},
		CardsShown: 12,
	}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Rank(entries, nil, sess, now)
	}
}
