package ranking

import "math"

// Session history caps. The client accumulates these lists between
// engagement flushes; anything beyond the cap is stale enough to ignore.
const (
	maxSessionCategories = 200
	maxEngagedIDs        = 200
)

// recencyDecay weights the i-th of n session occurrences by
// 0.92^(n-1-i), so the most recent occurrence always weighs 1.
const recencyDecay = 0.92

// SessionContext is the short-lived signal bundle for the current swipe
// session, built from feed request parameters. Category lists are ordered
// oldest to newest.
type SessionContext struct {
	EngagedLinkIDs    []string
	EngagedCategories []string
	SkippedCategories []string
	EngagedEmbeddings [][]float32
	CardsShown        int
}

// sessionSignals are the derived per-category maps the session and
// exploration signals read.
type sessionSignals struct {
	engagedSet     map[string]struct{}
	skippedSet     map[string]struct{}
	engagedWeights map[string]float64
	skippedWeights map[string]float64
}

func buildSessionSignals(sc SessionContext) sessionSignals {
	engaged := tail(sc.EngagedCategories, maxSessionCategories)
	skipped := tail(sc.SkippedCategories, maxSessionCategories)

	return sessionSignals{
		engagedSet:     categorySet(engaged),
		skippedSet:     categorySet(skipped),
		engagedWeights: recencyWeights(engaged),
		skippedWeights: recencyWeights(skipped),
	}
}

// recencyWeights sums 0.92^(n-1-i) per category over an ordered
// occurrence list.
func recencyWeights(categories []string) map[string]float64 {
	weights := make(map[string]float64, len(categories))
	n := len(categories)
	for i, cat := range categories {
		weights[cat] += math.Pow(recencyDecay, float64(n-1-i))
	}
	return weights
}

func categorySet(categories []string) map[string]struct{} {
	set := make(map[string]struct{}, len(categories))
	for _, cat := range categories {
		set[cat] = struct{}{}
	}
	return set
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
