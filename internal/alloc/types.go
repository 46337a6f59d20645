package alloc

import (
	"errors"
	"fmt"
	"time"
)

// Strategy identifies which trading style a trade belongs to
type Strategy string

const (
	StrategyInstantFlip  Strategy = "instant_flip"
	StrategyPatientOffer Strategy = "patient_offer"
)

// Multiplier scales position size by trading style: instant flips lean
// larger to capture speed, patient offers lean smaller to ride out swings
func (s Strategy) Multiplier() float64 {
	switch s {
	case StrategyInstantFlip:
		return 1.2
	case StrategyPatientOffer:
		return 0.8
	default:
		return 1.0
	}
}

// RiskLevel grades an opportunity's downside exposure
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Multiplier scales position size by risk tier
func (r RiskLevel) Multiplier() float64 {
	switch r {
	case RiskLow:
		return 1.5
	case RiskHigh:
		return 0.5
	default:
		return 1.0
	}
}

// Score maps the tier to a numeric contribution for portfolio risk averaging
func (r RiskLevel) Score() float64 {
	switch r {
	case RiskLow:
		return 0.3
	case RiskHigh:
		return 0.9
	default:
		return 0.6
	}
}

func (r RiskLevel) known() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// defaultConfidence fills opportunities the signal generator emitted without
// a confidence estimate
const defaultConfidence = 0.7

var (
	// ErrInvalidOpportunity marks opportunity records whose required fields
	// are missing or out of range
	ErrInvalidOpportunity = errors.New("invalid opportunity")

	// ErrInvalidConfig marks allocation configuration rejected at
	// construction or update time
	ErrInvalidConfig = errors.New("invalid allocation config")
)

// Opportunity is a candidate trade surfaced by the external signal generator.
// Records are immutable value objects; zero values in the defaultable fields
// (confidence, risk level, profit per hour) mean "absent" and are filled by
// Normalized before any scoring math runs.
type Opportunity struct {
	ItemID        int       `json:"item_id"`
	ItemName      string    `json:"item_name"`
	BuyPrice      float64   `json:"buy_price"`
	SellPrice     float64   `json:"sell_price"`
	NetProfitGP   float64   `json:"net_profit_gp"` // Profit per unit after fees
	MarginPercent float64   `json:"margin_percent"`
	Volume        float64   `json:"volume"`          // Units observed in the reference window
	Volatility    float64   `json:"volatility"`      // 0-100 scale
	TimeToFlip    float64   `json:"time_to_flip"`    // Expected minutes for the full round trip
	RiskLevel     RiskLevel `json:"risk_level"`      // LOW/MEDIUM/HIGH
	Confidence    float64   `json:"confidence"`      // 0.0-1.0, default 0.7
	ProfitPerHour float64   `json:"profit_per_hour"` // Derived when absent
}

// Normalized returns a copy with the defaultable fields filled in
func (o Opportunity) Normalized() Opportunity {
	if o.Confidence == 0 {
		o.Confidence = defaultConfidence
	}
	if o.RiskLevel == "" {
		o.RiskLevel = RiskMedium
	}
	if o.ProfitPerHour == 0 && o.TimeToFlip > 0 {
		o.ProfitPerHour = o.NetProfitGP / (o.TimeToFlip / 60.0)
	}
	return o
}

// Validate rejects records whose required fields are missing or out of range.
// Defaultable fields are only checked when set, so records straight from the
// signal feed pass as long as identity, pricing and timing are sound.
func (o Opportunity) Validate() error {
	if o.ItemID <= 0 {
		return fmt.Errorf("%w: item id must be positive, got %d", ErrInvalidOpportunity, o.ItemID)
	}
	if o.ItemName == "" {
		return fmt.Errorf("%w: item %d has no name", ErrInvalidOpportunity, o.ItemID)
	}
	if o.BuyPrice <= 0 {
		return fmt.Errorf("%w: item %d buy price must be positive, got %.2f", ErrInvalidOpportunity, o.ItemID, o.BuyPrice)
	}
	if o.SellPrice <= 0 {
		return fmt.Errorf("%w: item %d sell price must be positive, got %.2f", ErrInvalidOpportunity, o.ItemID, o.SellPrice)
	}
	if o.MarginPercent < 0 {
		return fmt.Errorf("%w: item %d margin must be non-negative, got %.2f", ErrInvalidOpportunity, o.ItemID, o.MarginPercent)
	}
	if o.Volume < 0 {
		return fmt.Errorf("%w: item %d volume must be non-negative, got %.0f", ErrInvalidOpportunity, o.ItemID, o.Volume)
	}
	if o.Volatility < 0 || o.Volatility > 100 {
		return fmt.Errorf("%w: item %d volatility must be in [0,100], got %.2f", ErrInvalidOpportunity, o.ItemID, o.Volatility)
	}
	if o.TimeToFlip <= 0 {
		return fmt.Errorf("%w: item %d time to flip must be positive minutes, got %.2f", ErrInvalidOpportunity, o.ItemID, o.TimeToFlip)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("%w: item %d confidence must be in [0,1], got %.2f", ErrInvalidOpportunity, o.ItemID, o.Confidence)
	}
	if o.RiskLevel != "" && !o.RiskLevel.known() {
		return fmt.Errorf("%w: item %d has unknown risk level %q", ErrInvalidOpportunity, o.ItemID, o.RiskLevel)
	}
	return nil
}

// Trade is one sized, allocated position derived from an Opportunity
type Trade struct {
	ItemID           int       `json:"item_id"`
	ItemName         string    `json:"item_name"`
	Strategy         Strategy  `json:"strategy"`
	BuyPrice         float64   `json:"buy_price"`
	SellPrice        float64   `json:"sell_price"`
	Quantity         int64     `json:"quantity"`
	CapitalAllocated float64   `json:"capital_allocated"` // quantity x buy price
	ExpectedProfit   float64   `json:"expected_profit"`   // net profit per unit x quantity
	MarginPercent    float64   `json:"margin_percent"`
	RiskLevel        RiskLevel `json:"risk_level"`
	TimeToFlip       float64   `json:"time_to_flip"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
}

// AllocationState is the engine's process-scoped bookkeeping, replaced
// wholesale after each successful allocation run and never mutated in place
type AllocationState struct {
	InstantFlips     []Trade   `json:"instant_flips"`
	PatientOffers    []Trade   `json:"patient_offers"`
	TotalCapitalUsed float64   `json:"total_capital_used"`
	AvailableCapital float64   `json:"available_capital"`
	TotalProfit      float64   `json:"total_profit"`
	LastRebalance    time.Time `json:"last_rebalance"`
}
