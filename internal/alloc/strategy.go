package alloc

import (
	"math"
	"time"
)

// StrategyResult aggregates the trades and capital accounting for one
// strategy's allocation pass
type StrategyResult struct {
	Trades              []Trade `json:"trades"`
	TotalAllocated      float64 `json:"total_allocated"`
	TotalExpectedProfit float64 `json:"total_expected_profit"`
	AverageMargin       float64 `json:"average_margin"`
	AverageRisk         float64 `json:"average_risk"`
	Utilization         float64 `json:"utilization"`
	TargetAllocation    float64 `json:"target_allocation"`
	ActualAllocation    float64 `json:"actual_allocation"`
}

// StrategyAllocator greedily spends one strategy's budget slice against its
// ranked candidate list. Greedy-by-rank is the documented trade-off: it is
// deterministic and O(n) over a pre-sorted list, not a provably optimal
// knapsack solution.
type StrategyAllocator struct {
	sizer *Sizer
}

// NewStrategyAllocator creates an allocator backed by the given sizer
func NewStrategyAllocator(sizer *Sizer) *StrategyAllocator {
	return &StrategyAllocator{sizer: sizer}
}

// Allocate walks the candidates in rank order, sizing each against the budget
// still unspent. Single pass, no backtracking: a candidate that cannot afford
// one unit is skipped and never retried, and the walk stops once the budget
// is exhausted.
func (sa *StrategyAllocator) Allocate(budget float64, candidates []Opportunity, strategy Strategy, now time.Time) StrategyResult {
	result := StrategyResult{
		Trades: make([]Trade, 0, len(candidates)),
	}

	var marginSum, riskSum float64
	for _, opp := range candidates {
		if result.TotalAllocated >= budget {
			break
		}

		remaining := budget - result.TotalAllocated
		size := sa.sizer.Size(opp, remaining, strategy)
		quantity := int64(math.Floor(size / opp.BuyPrice))
		if quantity < 1 {
			continue
		}

		trade := Trade{
			ItemID:           opp.ItemID,
			ItemName:         opp.ItemName,
			Strategy:         strategy,
			BuyPrice:         opp.BuyPrice,
			SellPrice:        opp.SellPrice,
			Quantity:         quantity,
			CapitalAllocated: float64(quantity) * opp.BuyPrice,
			ExpectedProfit:   opp.NetProfitGP * float64(quantity),
			MarginPercent:    opp.MarginPercent,
			RiskLevel:        opp.RiskLevel,
			TimeToFlip:       opp.TimeToFlip,
			Confidence:       opp.Confidence,
			Timestamp:        now,
		}

		result.Trades = append(result.Trades, trade)
		result.TotalAllocated += trade.CapitalAllocated
		result.TotalExpectedProfit += trade.ExpectedProfit
		marginSum += trade.MarginPercent
		riskSum += trade.RiskLevel.Score()
	}

	if n := len(result.Trades); n > 0 {
		result.AverageMargin = marginSum / float64(n)
		result.AverageRisk = riskSum / float64(n)
	}
	if budget > 0 {
		result.Utilization = result.TotalAllocated / budget
	}

	return result
}
