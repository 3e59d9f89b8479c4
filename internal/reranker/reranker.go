package reranker

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/ranking"
)

// blend coefficients between the heuristic base score and the model
// score once a model is live.
const (
	baseBlend  = 0.35
	modelBlend = 0.65
)

// Result reports what the reranker did to a candidate list.
type Result struct {
	Applied bool
	Version *string
}

// Reranker lazily loads the configured model and rescores ranked
// candidates. The loaded model is cached per path; changing the path
// evicts it, and a failed load degrades to pass-through rather than
// failing feeds.
type Reranker struct {
	cfg    config.RerankerConfig
	logger *logrus.Logger

	mu    sync.RWMutex
	path  string
	model *Model
}

func New(cfg config.RerankerConfig, logger *logrus.Logger) *Reranker {
	return &Reranker{cfg: cfg, logger: logger}
}

// Apply rescores candidates in place and re-sorts by the blended final
// score. Pass-through (no mutation) when disabled, unconfigured, or the
// model cannot be loaded.
func (r *Reranker) Apply(cands []*ranking.Candidate) Result {
	if !r.cfg.Enabled || r.cfg.ModelPath == "" || len(cands) == 0 {
		return Result{}
	}

	model := r.load(r.cfg.ModelPath)
	if model == nil {
		return Result{}
	}

	raw := make([]float64, len(cands))
	for i, c := range cands {
		raw[i] = model.Score(c.Features)
	}

	scores := normalize(raw)
	for i, c := range cands {
		s := scores[i]
		c.RerankScore = &s
		c.FinalScore = c.BaseScore*baseBlend + s*modelBlend
	}
	ranking.SortByFinal(cands)

	version := model.Version
	return Result{Applied: true, Version: &version}
}

// load returns the cached model for path, loading it on first use or
// after a path change. A failed load is cached as nil for the path so a
// broken file is not re-read on every request.
func (r *Reranker) load(path string) *Model {
	r.mu.RLock()
	if r.path == path {
		model := r.model
		r.mu.RUnlock()
		return model
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == path {
		return r.model
	}

	model, err := LoadModel(path)
	if err != nil {
		r.logger.WithError(err).WithField("path", path).
			Warn("Reranker model unavailable, serving base scores")
		r.path = path
		r.model = nil
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"path":    path,
		"version": model.Version,
		"trees":   len(model.Trees),
	}).Info("Reranker model loaded")

	r.path = path
	r.model = model
	return model
}

// normalize min-max scales raw model outputs onto [0,1]. A degenerate
// spread (all equal, or any non-finite output) flattens to 0.5 so the
// blend falls back toward base-score order.
func normalize(raw []float64) []float64 {
	lo, hi := raw[0], raw[0]
	degenerate := false
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			degenerate = true
			break
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := make([]float64, len(raw))
	if degenerate || hi <= lo {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}

	span := hi - lo
	for i, v := range raw {
		out[i] = (v - lo) / span
	}
	return out
}
