package ranking

// SignalWeights are the blend coefficients for the six signals. After
// derivation they are non-negative and sum to 1.
type SignalWeights struct {
	Engagement  float64
	Semantic    float64
	Session     float64
	TimePref    float64
	Freshness   float64
	Exploration float64
}

// CapabilityFlags describe what evidence this request actually has;
// weight derivation is a pure function of them.
type CapabilityFlags struct {
	HasEngagedEmbeddings bool
	HasUsableTimePrefs   bool
	CardsShown           int
}

var baseWeights = SignalWeights{
	Engagement:  0.30,
	Semantic:    0.25,
	Session:     0.20,
	TimePref:    0.10,
	Freshness:   0.10,
	Exploration: 0.05,
}

// DeriveWeights mutates the base weights by capability, then normalizes
// to sum 1. Falls back to the base weights if mutations zero everything
// out.
func DeriveWeights(flags CapabilityFlags) SignalWeights {
	w := baseWeights

	if !flags.HasEngagedEmbeddings {
		w.Semantic = 0
		w.Engagement += 0.11
		w.Session += 0.08
		w.Exploration += 0.06
	}

	if !flags.HasUsableTimePrefs {
		w.TimePref = 0
		w.Engagement += 0.05
		w.Freshness += 0.05
	}

	if flags.CardsShown == 0 {
		moved := w.Session
		w.Session = 0
		w.Freshness += moved * 0.6
		w.Exploration += moved * 0.4
	}

	if flags.CardsShown > 24 {
		moved := w.Exploration * 0.5
		w.Exploration -= moved
		w.Engagement += moved * 0.6
		w.Session += moved * 0.4
	}

	sum := w.Engagement + w.Semantic + w.Session + w.TimePref + w.Freshness + w.Exploration
	if sum <= 0 {
		return baseWeights
	}

	w.Engagement /= sum
	w.Semantic /= sum
	w.Session /= sum
	w.TimePref /= sum
	w.Freshness /= sum
	w.Exploration /= sum
	return w
}

// Sum is primarily a test hook; derived weights sum to 1 up to
// floating-point tolerance.
func (w SignalWeights) Sum() float64 {
	return w.Engagement + w.Semantic + w.Session + w.TimePref + w.Freshness + w.Exploration
}
