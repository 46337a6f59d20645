package alloc

// basePositionPct is the fraction of the remaining budget a position starts
// from before risk, strategy and confidence multipliers apply
const basePositionPct = 0.10

// Sizer converts an opportunity plus a remaining budget into a bounded
// position size in gp
type Sizer struct {
	maxRiskPerTrade float64
}

// NewSizer creates a sizer with the given per-trade risk ceiling (fraction of
// the remaining budget)
func NewSizer(maxRiskPerTrade float64) *Sizer {
	return &Sizer{maxRiskPerTrade: maxRiskPerTrade}
}

// Size returns the gp amount to commit to the opportunity, or 0 when even a
// single unit does not fit the remaining budget. The result is capped at the
// per-trade risk ceiling, then floored at one unit's cost; the floor wins so
// an affordable item is never sized out of its own buy price. Callers convert
// the amount to quantity = floor(size / buyPrice).
func (s *Sizer) Size(opp Opportunity, remainingBudget float64, strategy Strategy) float64 {
	if remainingBudget <= 0 || opp.BuyPrice > remainingBudget {
		return 0
	}

	confidence := opp.Confidence
	if confidence == 0 {
		confidence = defaultConfidence
	}

	size := remainingBudget * basePositionPct
	size *= opp.RiskLevel.Multiplier()
	size *= strategy.Multiplier()
	size *= confidence

	if maxRisk := remainingBudget * s.maxRiskPerTrade; size > maxRisk {
		size = maxRisk
	}
	if size < opp.BuyPrice {
		size = opp.BuyPrice
	}

	return size
}
