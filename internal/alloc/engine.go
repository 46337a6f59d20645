package alloc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Utilization bands that trigger advisory recommendations
const (
	lowUtilization  = 0.5
	highUtilization = 0.9
)

// Recommendation is an advisory follow-up attached to a plan; informational
// only, never enforced by the engine
type Recommendation struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// AllocationPlan is the engine's output: both strategy results plus the
// market snapshot and weight decision that produced them
type AllocationPlan struct {
	TotalCapital         float64          `json:"total_capital"`
	TotalAllocated       float64          `json:"total_allocated"`
	RemainingCapital     float64          `json:"remaining_capital"`
	AllocationPercentage float64          `json:"allocation_percentage"`
	InstantFlips         StrategyResult   `json:"instant_flips"`
	PatientOffers        StrategyResult   `json:"patient_offers"`
	MarketAnalysis       MarketAnalysis   `json:"market_analysis"`
	AdjustedAllocation   WeightDecision   `json:"adjusted_allocation"`
	Recommendations      []Recommendation `json:"recommendations"`
	Timestamp            time.Time        `json:"timestamp"`
}

// Status is the engine's externally visible snapshot: last committed state,
// live configuration and the realized utilization rate
type Status struct {
	State           AllocationState `json:"state"`
	Config          Config          `json:"config"`
	UtilizationRate float64         `json:"utilization_rate"`
}

// Engine runs the full allocation pipeline and owns the allocation state.
// Each call computes its plan from local values; the only critical sections
// are the config read at the start and the state swap at the end, so
// concurrent calls never observe a half-built state.
type Engine struct {
	mu       sync.Mutex
	config   Config
	state    AllocationState
	analyzer *Analyzer
	clock    Clock
}

// NewEngine creates an engine on the system clock, failing fast on invalid
// configuration
func NewEngine(config Config) (*Engine, error) {
	return NewEngineWithClock(config, systemClock{}, DefaultTimeBands())
}

// NewEngineWithClock creates an engine with a custom clock and time bands
func NewEngineWithClock(config Config, clock Clock, bands TimeBands) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config:   config,
		analyzer: NewAnalyzerWithClock(clock, bands),
		clock:    clock,
	}, nil
}

// AllocateCapital runs the pipeline: analyze conditions, adjust the strategy
// split, classify candidates, spend both budget slices greedily and assemble
// the plan. Degenerate inputs (zero capital, empty pool, nothing qualifying)
// return a well-formed zero-trade plan, not an error; malformed opportunity
// records are rejected up front with a typed validation error.
func (e *Engine) AllocateCapital(ctx context.Context, totalCapital float64, opportunities []Opportunity, signals MarketSignals) (*AllocationPlan, error) {
	for i, opp := range opportunities {
		if err := opp.Validate(); err != nil {
			return nil, fmt.Errorf("opportunity %d: %w", i, err)
		}
	}

	e.mu.Lock()
	cfg := e.config
	e.mu.Unlock()

	now := e.clock.Now()
	analysis := e.analyzer.Analyze(signals)

	adjuster := NewWeightAdjuster(cfg)
	weights := adjuster.Adjust(cfg.InstantFlipAllocation, cfg.PatientOfferAllocation, analysis)

	classifier := NewClassifier(cfg)
	candidates := classifier.Classify(opportunities, analysis)

	allocator := NewStrategyAllocator(NewSizer(cfg.MaxRiskPerTrade))
	instant := allocator.Allocate(totalCapital*weights.InstantPct, candidates.Instant, StrategyInstantFlip, now)
	patient := allocator.Allocate(totalCapital*weights.PatientPct, candidates.Patient, StrategyPatientOffer, now)

	instant.TargetAllocation = weights.InstantPct
	patient.TargetAllocation = weights.PatientPct
	if totalCapital > 0 {
		instant.ActualAllocation = instant.TotalAllocated / totalCapital
		patient.ActualAllocation = patient.TotalAllocated / totalCapital
	}

	totalAllocated := instant.TotalAllocated + patient.TotalAllocated
	utilization := 0.0
	if totalCapital > 0 {
		utilization = totalAllocated / totalCapital
	}

	plan := &AllocationPlan{
		TotalCapital:         totalCapital,
		TotalAllocated:       totalAllocated,
		RemainingCapital:     totalCapital - totalAllocated,
		AllocationPercentage: utilization * 100.0,
		InstantFlips:         instant,
		PatientOffers:        patient,
		MarketAnalysis:       analysis,
		AdjustedAllocation:   weights,
		Recommendations:      buildRecommendations(utilization, analysis),
		Timestamp:            now,
	}

	state := AllocationState{
		InstantFlips:     instant.Trades,
		PatientOffers:    patient.Trades,
		TotalCapitalUsed: totalAllocated,
		AvailableCapital: totalCapital,
		TotalProfit:      instant.TotalExpectedProfit + patient.TotalExpectedProfit,
		LastRebalance:    now,
	}

	e.mu.Lock()
	e.state = state
	e.mu.Unlock()

	log.Debug().
		Float64("total_capital", totalCapital).
		Float64("total_allocated", totalAllocated).
		Int("instant_trades", len(instant.Trades)).
		Int("patient_trades", len(patient.Trades)).
		Str("market_risk", string(analysis.RiskLevel)).
		Str("adjustment", weights.Reason).
		Msg("allocation plan computed")

	return plan, nil
}

// Status returns the last committed allocation state plus live configuration
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	rate := 0.0
	if e.state.AvailableCapital > 0 {
		rate = e.state.TotalCapitalUsed / e.state.AvailableCapital
	}
	return Status{
		State:           e.state,
		Config:          e.config,
		UtilizationRate: rate,
	}
}

// Config returns a copy of the live configuration
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// UpdateConfig merges the patch into the live configuration. The merged
// result is validated before it replaces the active config; a rejected patch
// leaves the engine unchanged.
func (e *Engine) UpdateConfig(patch ConfigPatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	merged := e.config.Apply(patch)
	if err := merged.Validate(); err != nil {
		return err
	}
	e.config = merged

	log.Info().
		Float64("instant_flip_allocation", merged.InstantFlipAllocation).
		Float64("patient_offer_allocation", merged.PatientOfferAllocation).
		Float64("max_risk_per_trade", merged.MaxRiskPerTrade).
		Msg("allocation config updated")
	return nil
}

// buildRecommendations derives advisory follow-ups from realized utilization
// and the market snapshot
func buildRecommendations(utilization float64, analysis MarketAnalysis) []Recommendation {
	recs := make([]Recommendation, 0, 4)

	if utilization < lowUtilization {
		recs = append(recs, Recommendation{
			Type:     "allocation",
			Message:  "Low capital utilization - consider lowering minimum margin requirements to surface more candidates",
			Priority: "medium",
		})
	}
	if utilization > highUtilization {
		recs = append(recs, Recommendation{
			Type:     "risk",
			Message:  "Nearly all capital is committed - keep gp reserves for price swings",
			Priority: "high",
		})
	}
	if analysis.Volatility > highRiskVolatility {
		recs = append(recs, Recommendation{
			Type:     "risk",
			Message:  "High market volatility - reduce position sizes and favor faster flips",
			Priority: "high",
		})
	}
	if analysis.Liquidity < highRiskLiquidity {
		recs = append(recs, Recommendation{
			Type:     "liquidity",
			Message:  "Thin market liquidity - focus on high-volume items to avoid stuck offers",
			Priority: "medium",
		})
	}
	if analysis.IsWeekend {
		recs = append(recs, Recommendation{
			Type:     "timing",
			Message:  "Weekend trading - expect higher volume and faster fills",
			Priority: "low",
		})
	}

	return recs
}
