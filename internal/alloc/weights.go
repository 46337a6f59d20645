package alloc

import (
	"strings"
)

// Weight clamp bounds: no strategy is ever starved below 20% or handed more
// than 80% of capital, whatever the market does
const (
	minStrategyWeight = 0.2
	maxStrategyWeight = 0.8
)

// calmVolatility is the floor below which the market is considered quiet
// enough to favor patient offers
const calmVolatility = 0.05

// WeightDecision is the adjusted strategy split plus the audit trail of why.
// Reason is human-readable, never machine-parsed.
type WeightDecision struct {
	InstantPct float64 `json:"instant_pct"`
	PatientPct float64 `json:"patient_pct"`
	Reason     string  `json:"adjustment_reason"`
}

// WeightAdjuster perturbs the configured strategy split in response to the
// market snapshot, then clamps and renormalizes so the pair always sums to 1.0
type WeightAdjuster struct {
	config Config
}

// NewWeightAdjuster creates a weight adjuster bound to the given thresholds
func NewWeightAdjuster(config Config) *WeightAdjuster {
	return &WeightAdjuster{config: config}
}

// Adjust applies each nudge rule in a fixed order, recording every rule that
// fired. Nudges are additive and independent; clamping to [0.2, 0.8] and
// renormalization happen once at the end.
func (wa *WeightAdjuster) Adjust(baseInstant, basePatient float64, analysis MarketAnalysis) WeightDecision {
	instant := baseInstant
	patient := basePatient
	reasons := make([]string, 0, 4)

	if analysis.Volatility > wa.config.VolatilityThreshold {
		instant += 0.10
		patient -= 0.10
		reasons = append(reasons, "high volatility favors instant flips")
	} else if analysis.Volatility < calmVolatility {
		instant -= 0.10
		patient += 0.10
		reasons = append(reasons, "calm market favors patient offers")
	}

	if analysis.Liquidity < wa.config.LiquidityThreshold {
		instant -= 0.05
		patient += 0.05
		reasons = append(reasons, "thin liquidity favors patient offers")
	}

	if analysis.MarketSentiment == SentimentBearish {
		instant -= 0.05
		patient -= 0.05
		reasons = append(reasons, "bearish sentiment trims both strategies")
	} else if analysis.MarketSentiment == SentimentBullish {
		instant += 0.05
		patient -= 0.05
		reasons = append(reasons, "bullish sentiment favors instant flips")
	}

	switch analysis.TimeOfDay {
	case TimePeak:
		instant += 0.05
		patient -= 0.05
		reasons = append(reasons, "peak hours favor instant flips")
	case TimeOffPeak:
		instant -= 0.05
		patient += 0.05
		reasons = append(reasons, "off-peak hours favor patient offers")
	}

	instant = clampWeight(instant)
	patient = clampWeight(patient)

	sum := instant + patient
	instant /= sum
	patient /= sum

	reason := "no adjustment"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return WeightDecision{
		InstantPct: instant,
		PatientPct: patient,
		Reason:     reason,
	}
}

func clampWeight(w float64) float64 {
	if w < minStrategyWeight {
		return minStrategyWeight
	}
	if w > maxStrategyWeight {
		return maxStrategyWeight
	}
	return w
}
