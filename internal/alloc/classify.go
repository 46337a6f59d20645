package alloc

import (
	"sort"
)

// Volatility ceilings per strategy (0-100 opportunity scale): instant flips
// tolerate choppy items, patient offers do not
const (
	maxInstantVolatility = 50.0
	maxPatientVolatility = 30.0
)

// RankFunc orders candidates for greedy allocation; it reports whether a
// should be allocated before b
type RankFunc func(a, b Opportunity) bool

// RankByProfitPerHour prefers the fastest gp/hour compounders; default
// ordering for instant flips
func RankByProfitPerHour(a, b Opportunity) bool {
	return a.ProfitPerHour > b.ProfitPerHour
}

// RankByMargin prefers the fattest margins; default ordering for patient
// offers
func RankByMargin(a, b Opportunity) bool {
	return a.MarginPercent > b.MarginPercent
}

// CandidateSet holds the per-strategy candidate lists. The two filters run
// independently: an opportunity can qualify for neither, one, or both
// strategies.
type CandidateSet struct {
	Instant []Opportunity `json:"instant"`
	Patient []Opportunity `json:"patient"`
}

// Classifier splits an opportunity pool into instant-flip and patient-offer
// candidates using strategy-specific thresholds, then ranks each list for the
// greedy allocation pass
type Classifier struct {
	config      Config
	instantRank RankFunc
	patientRank RankFunc
}

// NewClassifier creates a classifier with the default per-strategy orderings
func NewClassifier(config Config) *Classifier {
	return NewClassifierWithRanking(config, RankByProfitPerHour, RankByMargin)
}

// NewClassifierWithRanking creates a classifier with custom orderings so
// alternative rankings can be exercised without touching the allocation loop
func NewClassifierWithRanking(config Config, instantRank, patientRank RankFunc) *Classifier {
	return &Classifier{
		config:      config,
		instantRank: instantRank,
		patientRank: patientRank,
	}
}

// Classify normalizes each opportunity, applies both strategy filters and
// returns the ranked candidate lists. Sorting is stable so equal-key
// candidates keep their input order.
func (c *Classifier) Classify(opportunities []Opportunity, analysis MarketAnalysis) CandidateSet {
	set := CandidateSet{
		Instant: make([]Opportunity, 0, len(opportunities)),
		Patient: make([]Opportunity, 0, len(opportunities)),
	}

	for _, raw := range opportunities {
		opp := raw.Normalized()
		if c.passesInstantFilter(opp, analysis) {
			set.Instant = append(set.Instant, opp)
		}
		if c.passesPatientFilter(opp) {
			set.Patient = append(set.Patient, opp)
		}
	}

	sort.SliceStable(set.Instant, func(i, j int) bool {
		return c.instantRank(set.Instant[i], set.Instant[j])
	})
	sort.SliceStable(set.Patient, func(i, j int) bool {
		return c.patientRank(set.Patient[i], set.Patient[j])
	})

	return set
}

// passesInstantFilter applies the speed-biased entry bar: thin margins are
// acceptable but the flip must be fast and liquid, and a HIGH-risk item is
// rejected only when the market itself is also running hot
func (c *Classifier) passesInstantFilter(opp Opportunity, analysis MarketAnalysis) bool {
	if opp.MarginPercent < c.config.InstantFlipMinMargin*100 {
		return false
	}
	if opp.Volume < c.config.InstantFlipMinVolume {
		return false
	}
	if opp.TimeToFlip > c.config.InstantFlipMaxHours*60 {
		return false
	}
	if opp.Volatility > maxInstantVolatility {
		return false
	}
	if opp.RiskLevel == RiskHigh && analysis.RiskLevel == MarketRiskHigh {
		return false
	}
	return true
}

// passesPatientFilter applies the margin-biased entry bar: slower flips are
// acceptable but volatility and HIGH-risk items are rejected outright
func (c *Classifier) passesPatientFilter(opp Opportunity) bool {
	if opp.MarginPercent < c.config.PatientOfferMinMargin*100 {
		return false
	}
	if opp.Volume < c.config.PatientOfferMinVolume {
		return false
	}
	if opp.TimeToFlip > c.config.PatientOfferMaxHours*60 {
		return false
	}
	if opp.Volatility > maxPatientVolatility {
		return false
	}
	if opp.RiskLevel == RiskHigh {
		return false
	}
	return true
}
