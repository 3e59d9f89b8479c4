package ranking

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/lanefeed/lanefeed/pkg/models"
)

// SignalScores is the tagged record of the six per-candidate signals,
// each in [0,1] with 0.5 meaning "neutral / no evidence".
type SignalScores struct {
	Engagement  float64 `json:"engagement"`
	Semantic    float64 `json:"semantic"`
	Session     float64 `json:"session"`
	TimePref    float64 `json:"timePref"`
	Freshness   float64 `json:"freshness"`
	Exploration float64 `json:"exploration"`
}

// sessionTerms carries the session signal's intermediate sums into the
// feature map.
type sessionTerms struct {
	momentum     float64
	skipPressure float64
	fatigue      float64
	sameLane     float64
}

// explorationTerms carries the UCB intermediates into the feature map.
type explorationTerms struct {
	uncertainty     float64
	categoryNovelty float64
	sessionNovelty  float64
}

// engagementSignal predicts engagement from the entry's own history.
// Unseen entries get a mild optimistic prior shaped by their content
// type's observed mean.
func engagementSignal(e *models.LibraryEntry, stats *DatasetStats, now time.Time) float64 {
	typeMean := stats.TypeMean(e.ContentType)

	likedBoost := 0.0
	if e.LikedAt != nil {
		likedBoost = 0.08
	}

	if e.ShownCount == 0 {
		return clamp01(0.58 + (typeMean-0.5)*0.2 + likedBoost)
	}

	var baseline float64
	if e.EngagementScore > 0 {
		baseline = e.EngagementScore*0.72 + typeMean*0.28
	} else {
		baseline = typeMean * 0.9
	}

	recency := 0.55
	if e.LastShownAt != nil {
		recency = math.Exp(-daysSince(now, *e.LastShownAt) / 30)
	}

	shown := float64(e.ShownCount)
	openSignal := math.Min(1, float64(e.OpenCount)/math.Max(1, shown)) * 0.2
	overShownPenalty := math.Min(0.22, math.Max(0, shown-10)*0.015)

	return clamp01(baseline*0.67 + recency*0.23 + openSignal + likedBoost - overShownPenalty)
}

// engagedEmbeddings precomputes float64 vectors and norms for the
// session's engaged entries so each candidate pays conversion cost once.
type engagedEmbeddings struct {
	vecs  [][]float64
	norms []float64
}

func newEngagedEmbeddings(raw [][]float32) *engagedEmbeddings {
	set := &engagedEmbeddings{}
	for _, emb := range raw {
		if len(emb) == 0 {
			continue
		}
		vec := toFloat64(emb)
		norm := floats.Norm(vec, 2)
		if norm == 0 {
			continue
		}
		set.vecs = append(set.vecs, vec)
		set.norms = append(set.norms, norm)
	}
	return set
}

func (s *engagedEmbeddings) empty() bool { return len(s.vecs) == 0 }

// semanticSignal measures similarity to what the session engaged with:
// per engaged embedding, cosine mapped from [-1,1] to [0,1]; blended as
// max·0.65 + mean·0.35 so one strong match dominates but breadth counts.
func semanticSignal(e *models.LibraryEntry, engaged *engagedEmbeddings) float64 {
	if len(e.Embedding) == 0 || engaged == nil || engaged.empty() {
		return 0.5
	}

	vec := toFloat64(e.Embedding)
	norm := floats.Norm(vec, 2)
	if norm == 0 {
		return 0.5
	}

	var best, sum float64
	n := 0
	for i, other := range engaged.vecs {
		if len(other) != len(vec) {
			continue
		}
		cos := floats.Dot(vec, other) / (norm * engaged.norms[i])
		sim := clamp01((cos + 1) / 2)
		if sim > best {
			best = sim
		}
		sum += sim
		n++
	}
	if n == 0 {
		return 0.5
	}

	return best*0.65 + (sum/float64(n))*0.35
}

// sessionSignal adapts to the current swipe session: recency-weighted
// category momentum pushes up, skip pressure and same-category fatigue
// push down.
func sessionSignal(e *models.LibraryEntry, sess sessionSignals, cardsShown int) (float64, sessionTerms) {
	var terms sessionTerms
	if cardsShown == 0 || len(e.Categories) == 0 {
		return 0.5, terms
	}

	for _, cat := range e.Categories {
		if w, ok := sess.engagedWeights[cat]; ok {
			terms.momentum += w
			terms.fatigue += math.Max(0, w-2)
		}
		if w, ok := sess.skippedWeights[cat]; ok {
			terms.skipPressure += w
		}
		if _, ok := sess.engagedSet[cat]; ok {
			terms.sameLane = 0.04
		}
	}

	score := 0.5 +
		math.Min(0.32, terms.momentum*0.07) -
		math.Min(0.34, terms.skipPressure*0.1) -
		math.Min(0.2, terms.fatigue*0.04) +
		terms.sameLane

	return clamp01(score), terms
}

// timePrefSignal reads the learned (hourSlot, dayType) aggregates: the
// best avgEngagement over the entry's categories, ignoring rows with
// fewer than 3 samples.
func timePrefSignal(e *models.LibraryEntry, prefs []models.TimePreference) float64 {
	if len(e.Categories) == 0 || len(prefs) == 0 {
		return 0.5
	}

	best := -1.0
	for _, p := range prefs {
		if p.SampleCount < 3 {
			continue
		}
		for _, cat := range e.Categories {
			if p.Category == cat && p.AvgEngagement > best {
				best = p.AvgEngagement
			}
		}
	}
	if best < 0 {
		return 0.5
	}
	return clamp01(best)
}

// freshnessSignal is piecewise by age: brand-new entries rate high,
// week-old ones sag, the 2-8 week band gets a forgotten-gem boost, and
// old content decays. Repeated exposure subtracts, a like adds.
func freshnessSignal(e *models.LibraryEntry, now time.Time) float64 {
	days := daysSince(now, e.AddedAt)

	var score float64
	switch {
	case days < 1:
		score = 0.72
	case days < 14:
		score = 0.56
	case days <= 56:
		score = 0.88
	case days <= 120:
		score = 0.42
	default:
		score = 0.25
	}

	score -= math.Min(0.35, float64(e.ShownCount)*0.028)
	if e.LikedAt != nil {
		score += 0.08
	}

	return clamp01(score)
}

// explorationSignal is the UCB term: an engagement estimate plus an
// uncertainty bonus that shrinks with observations, plus category and
// session novelty bonuses.
func explorationSignal(e *models.LibraryEntry, stats *DatasetStats, sess sessionSignals) (float64, explorationTerms) {
	var terms explorationTerms

	var meanEstimate float64
	if e.ShownCount > 0 {
		meanEstimate = e.EngagementScore
	} else {
		meanEstimate = stats.categoryPrior(e.Categories)
	}

	terms.uncertainty = math.Sqrt(math.Log(float64(stats.TotalShown)+2) / float64(e.ShownCount+1))

	terms.categoryNovelty = 1.0
	if len(e.Categories) > 0 {
		terms.categoryNovelty = 0
		for _, cat := range e.Categories {
			novelty := 1 / math.Sqrt(float64(stats.CategoryBandits[cat].Shown)+1)
			if novelty > terms.categoryNovelty {
				terms.categoryNovelty = novelty
			}
		}
	}

	inSession := false
	for _, cat := range e.Categories {
		if _, ok := sess.engagedSet[cat]; ok {
			inSession = true
			break
		}
		if _, ok := sess.skippedSet[cat]; ok {
			inSession = true
			break
		}
	}
	if !inSession {
		terms.sessionNovelty = 0.08
	}

	score := meanEstimate + 0.28*terms.uncertainty + 0.14*terms.categoryNovelty + terms.sessionNovelty
	return clamp01(score), terms
}

func daysSince(now, t time.Time) float64 {
	days := now.Sub(t).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
