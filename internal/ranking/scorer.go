package ranking

import (
	"sort"
	"time"

	"github.com/lanefeed/lanefeed/pkg/models"
)

// AlgorithmVersion tags feed responses and ranking events so exported
// training rows can be partitioned by scoring generation.
const AlgorithmVersion = "rank-v2"

// Candidate pairs a library entry with its scoring artifacts as it
// moves through the pipeline: base score from the weighted signals,
// optional rerank score, and the final score the feed orders by.
type Candidate struct {
	Entry       *models.LibraryEntry
	Signals     SignalScores
	Features    map[string]float64
	BaseScore   float64
	RerankScore *float64
	FinalScore  float64
}

// Rank scores every candidate against the session and returns them in
// descending final-score order along with the weight profile used.
// Ties keep their input order, so equal inputs rank deterministically.
func Rank(entries []models.LibraryEntry, prefs []models.TimePreference, sess SessionContext, now time.Time) ([]*Candidate, SignalWeights) {
	stats := BuildStats(entries)
	sessSig := buildSessionSignals(sess)
	engaged := newEngagedEmbeddings(sess.EngagedEmbeddings)

	weights := DeriveWeights(CapabilityFlags{
		HasEngagedEmbeddings: !engaged.empty(),
		HasUsableTimePrefs:   hasUsableTimePrefs(prefs),
		CardsShown:           sess.CardsShown,
	})

	cands := make([]*Candidate, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		sessionScore, sessTerms := sessionSignal(e, sessSig, sess.CardsShown)
		explScore, explTerms := explorationSignal(e, stats, sessSig)

		sig := SignalScores{
			Engagement:  engagementSignal(e, stats, now),
			Semantic:    semanticSignal(e, engaged),
			Session:     sessionScore,
			TimePref:    timePrefSignal(e, prefs),
			Freshness:   freshnessSignal(e, now),
			Exploration: explScore,
		}

		base := clamp01(sig.Engagement*weights.Engagement +
			sig.Semantic*weights.Semantic +
			sig.Session*weights.Session +
			sig.TimePref*weights.TimePref +
			sig.Freshness*weights.Freshness +
			sig.Exploration*weights.Exploration)

		cands = append(cands, &Candidate{
			Entry:      e,
			Signals:    sig,
			Features:   buildFeatures(e, sig, sessTerms, explTerms, stats, now),
			BaseScore:  base,
			FinalScore: base,
		})
	}

	SortByFinal(cands)
	return cands, weights
}

// SortByFinal orders candidates by final score, descending, keeping
// input order for ties. The reranker re-sorts through this after
// blending model scores in.
func SortByFinal(cands []*Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].FinalScore > cands[j].FinalScore
	})
}

func hasUsableTimePrefs(prefs []models.TimePreference) bool {
	for _, p := range prefs {
		if p.SampleCount >= 3 {
			return true
		}
	}
	return false
}
