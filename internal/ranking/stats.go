package ranking

import "github.com/lanefeed/lanefeed/pkg/models"

// CategoryBandit tracks per-category observation volume and engagement
// mass across the candidate set, feeding the UCB exploration signal.
type CategoryBandit struct {
	Shown         int
	EngagementSum float64
}

// DatasetStats are computed once per feed request over the candidate set.
// Means are weighted by impression counts so heavily-shown entries
// dominate the priors. Note that contentTypeMeans therefore vary with the
// active query (e.g. a category filter); this locality is intentional.
type DatasetStats struct {
	TotalShown           int
	GlobalEngagementMean float64
	ContentTypeMeans     map[string]float64
	CategoryBandits      map[string]CategoryBandit
}

type typeAccumulator struct {
	shown int
	sum   float64
}

func BuildStats(entries []models.LibraryEntry) *DatasetStats {
	stats := &DatasetStats{
		ContentTypeMeans: make(map[string]float64),
		CategoryBandits:  make(map[string]CategoryBandit),
	}

	types := make(map[string]*typeAccumulator)
	var weightedSum float64

	for i := range entries {
		e := &entries[i]
		if e.ShownCount <= 0 {
			continue
		}
		shown := e.ShownCount
		mass := clamp01(e.EngagementScore) * float64(shown)

		stats.TotalShown += shown
		weightedSum += mass

		acc, ok := types[e.ContentType]
		if !ok {
			acc = &typeAccumulator{}
			types[e.ContentType] = acc
		}
		acc.shown += shown
		acc.sum += mass

		for _, cat := range e.Categories {
			bandit := stats.CategoryBandits[cat]
			bandit.Shown += shown
			bandit.EngagementSum += mass
			stats.CategoryBandits[cat] = bandit
		}
	}

	if stats.TotalShown > 0 {
		stats.GlobalEngagementMean = weightedSum / float64(stats.TotalShown)
	} else {
		stats.GlobalEngagementMean = 0.5
	}

	for ct, acc := range types {
		if acc.shown > 0 {
			stats.ContentTypeMeans[ct] = acc.sum / float64(acc.shown)
		}
	}

	return stats
}

// TypeMean returns the impression-weighted engagement mean for a content
// type, falling back to the global mean when the type was never shown.
func (s *DatasetStats) TypeMean(contentType string) float64 {
	if m, ok := s.ContentTypeMeans[contentType]; ok {
		return m
	}
	return s.GlobalEngagementMean
}

// categoryPrior estimates engagement for an unseen entry from its
// categories' bandit arms; unobserved categories fall back to the global
// mean.
func (s *DatasetStats) categoryPrior(categories []string) float64 {
	best := -1.0
	for _, cat := range categories {
		bandit, ok := s.CategoryBandits[cat]
		if !ok || bandit.Shown <= 0 {
			continue
		}
		mean := bandit.EngagementSum / float64(bandit.Shown)
		if mean > best {
			best = mean
		}
	}
	if best < 0 {
		return s.GlobalEngagementMean
	}
	return best
}
