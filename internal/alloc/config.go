package alloc

import (
	"fmt"
)

// Config holds the engine's allocation targets and strategy filter thresholds
type Config struct {
	// Strategy split targets (adjusted per market conditions before use)
	InstantFlipAllocation  float64 `yaml:"instant_flip_allocation" json:"instant_flip_allocation"`   // Default: 0.60
	PatientOfferAllocation float64 `yaml:"patient_offer_allocation" json:"patient_offer_allocation"` // Default: 0.40

	// Risk ceilings
	MaxRiskPerTrade float64 `yaml:"max_risk_per_trade" json:"max_risk_per_trade"` // Default: 0.05 (5% of remaining budget)
	MaxTotalRisk    float64 `yaml:"max_total_risk" json:"max_total_risk"`         // Default: 0.20, advisory only

	// Instant-flip candidate filter
	InstantFlipMinMargin float64 `yaml:"instant_flip_min_margin" json:"instant_flip_min_margin"` // Default: 0.02 (2%)
	InstantFlipMinVolume float64 `yaml:"instant_flip_min_volume" json:"instant_flip_min_volume"` // Default: 1000 units
	InstantFlipMaxHours  float64 `yaml:"instant_flip_max_hours" json:"instant_flip_max_hours"`   // Default: 2h round trip

	// Patient-offer candidate filter
	PatientOfferMinMargin float64 `yaml:"patient_offer_min_margin" json:"patient_offer_min_margin"` // Default: 0.05 (5%)
	PatientOfferMinVolume float64 `yaml:"patient_offer_min_volume" json:"patient_offer_min_volume"` // Default: 100 units
	PatientOfferMaxHours  float64 `yaml:"patient_offer_max_hours" json:"patient_offer_max_hours"`   // Default: 24h round trip

	// Weight adjustment triggers
	VolatilityThreshold float64 `yaml:"volatility_threshold" json:"volatility_threshold"` // Default: 0.15
	LiquidityThreshold  float64 `yaml:"liquidity_threshold" json:"liquidity_threshold"`   // Default: 0.50
}

// DefaultConfig returns the production allocation configuration
func DefaultConfig() Config {
	return Config{
		InstantFlipAllocation:  0.60,
		PatientOfferAllocation: 0.40,

		MaxRiskPerTrade: 0.05,
		MaxTotalRisk:    0.20,

		InstantFlipMinMargin: 0.02,
		InstantFlipMinVolume: 1000,
		InstantFlipMaxHours:  2,

		PatientOfferMinMargin: 0.05,
		PatientOfferMinVolume: 100,
		PatientOfferMaxHours:  24,

		VolatilityThreshold: 0.15,
		LiquidityThreshold:  0.50,
	}
}

// Validate rejects out-of-range configuration before it can produce silently
// wrong allocations
func (c Config) Validate() error {
	if c.InstantFlipAllocation <= 0 || c.InstantFlipAllocation >= 1 {
		return fmt.Errorf("%w: instant_flip_allocation must be in (0,1), got %.3f", ErrInvalidConfig, c.InstantFlipAllocation)
	}
	if c.PatientOfferAllocation <= 0 || c.PatientOfferAllocation >= 1 {
		return fmt.Errorf("%w: patient_offer_allocation must be in (0,1), got %.3f", ErrInvalidConfig, c.PatientOfferAllocation)
	}
	sum := c.InstantFlipAllocation + c.PatientOfferAllocation
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("%w: allocation targets must sum to 1.0, got %.3f", ErrInvalidConfig, sum)
	}
	if c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade > 0.5 {
		return fmt.Errorf("%w: max_risk_per_trade must be in (0,0.5], got %.3f", ErrInvalidConfig, c.MaxRiskPerTrade)
	}
	if c.MaxTotalRisk <= 0 || c.MaxTotalRisk > 1 {
		return fmt.Errorf("%w: max_total_risk must be in (0,1], got %.3f", ErrInvalidConfig, c.MaxTotalRisk)
	}
	if c.MaxTotalRisk < c.MaxRiskPerTrade {
		return fmt.Errorf("%w: max_total_risk %.3f below max_risk_per_trade %.3f", ErrInvalidConfig, c.MaxTotalRisk, c.MaxRiskPerTrade)
	}
	if c.InstantFlipMinMargin < 0 || c.InstantFlipMinMargin >= 1 {
		return fmt.Errorf("%w: instant_flip_min_margin must be a fraction in [0,1), got %.3f", ErrInvalidConfig, c.InstantFlipMinMargin)
	}
	if c.PatientOfferMinMargin < 0 || c.PatientOfferMinMargin >= 1 {
		return fmt.Errorf("%w: patient_offer_min_margin must be a fraction in [0,1), got %.3f", ErrInvalidConfig, c.PatientOfferMinMargin)
	}
	if c.InstantFlipMinVolume < 0 {
		return fmt.Errorf("%w: instant_flip_min_volume must be non-negative, got %.0f", ErrInvalidConfig, c.InstantFlipMinVolume)
	}
	if c.PatientOfferMinVolume < 0 {
		return fmt.Errorf("%w: patient_offer_min_volume must be non-negative, got %.0f", ErrInvalidConfig, c.PatientOfferMinVolume)
	}
	if c.InstantFlipMaxHours <= 0 {
		return fmt.Errorf("%w: instant_flip_max_hours must be positive, got %.2f", ErrInvalidConfig, c.InstantFlipMaxHours)
	}
	if c.PatientOfferMaxHours <= 0 {
		return fmt.Errorf("%w: patient_offer_max_hours must be positive, got %.2f", ErrInvalidConfig, c.PatientOfferMaxHours)
	}
	if c.VolatilityThreshold <= 0 || c.VolatilityThreshold >= 1 {
		return fmt.Errorf("%w: volatility_threshold must be in (0,1), got %.3f", ErrInvalidConfig, c.VolatilityThreshold)
	}
	if c.LiquidityThreshold <= 0 || c.LiquidityThreshold >= 1 {
		return fmt.Errorf("%w: liquidity_threshold must be in (0,1), got %.3f", ErrInvalidConfig, c.LiquidityThreshold)
	}
	return nil
}

// ConfigPatch carries optional overrides for a running engine. Nil fields
// leave the live value unchanged.
type ConfigPatch struct {
	InstantFlipAllocation  *float64 `json:"instant_flip_allocation,omitempty"`
	PatientOfferAllocation *float64 `json:"patient_offer_allocation,omitempty"`
	MaxRiskPerTrade        *float64 `json:"max_risk_per_trade,omitempty"`
	MaxTotalRisk           *float64 `json:"max_total_risk,omitempty"`
	InstantFlipMinMargin   *float64 `json:"instant_flip_min_margin,omitempty"`
	InstantFlipMinVolume   *float64 `json:"instant_flip_min_volume,omitempty"`
	InstantFlipMaxHours    *float64 `json:"instant_flip_max_hours,omitempty"`
	PatientOfferMinMargin  *float64 `json:"patient_offer_min_margin,omitempty"`
	PatientOfferMinVolume  *float64 `json:"patient_offer_min_volume,omitempty"`
	PatientOfferMaxHours   *float64 `json:"patient_offer_max_hours,omitempty"`
	VolatilityThreshold    *float64 `json:"volatility_threshold,omitempty"`
	LiquidityThreshold     *float64 `json:"liquidity_threshold,omitempty"`
}

// Apply returns a copy of c with every non-nil patch field merged in
func (c Config) Apply(patch ConfigPatch) Config {
	if patch.InstantFlipAllocation != nil {
		c.InstantFlipAllocation = *patch.InstantFlipAllocation
	}
	if patch.PatientOfferAllocation != nil {
		c.PatientOfferAllocation = *patch.PatientOfferAllocation
	}
	if patch.MaxRiskPerTrade != nil {
		c.MaxRiskPerTrade = *patch.MaxRiskPerTrade
	}
	if patch.MaxTotalRisk != nil {
		c.MaxTotalRisk = *patch.MaxTotalRisk
	}
	if patch.InstantFlipMinMargin != nil {
		c.InstantFlipMinMargin = *patch.InstantFlipMinMargin
	}
	if patch.InstantFlipMinVolume != nil {
		c.InstantFlipMinVolume = *patch.InstantFlipMinVolume
	}
	if patch.InstantFlipMaxHours != nil {
		c.InstantFlipMaxHours = *patch.InstantFlipMaxHours
	}
	if patch.PatientOfferMinMargin != nil {
		c.PatientOfferMinMargin = *patch.PatientOfferMinMargin
	}
	if patch.PatientOfferMinVolume != nil {
		c.PatientOfferMinVolume = *patch.PatientOfferMinVolume
	}
	if patch.PatientOfferMaxHours != nil {
		c.PatientOfferMaxHours = *patch.PatientOfferMaxHours
	}
	if patch.VolatilityThreshold != nil {
		c.VolatilityThreshold = *patch.VolatilityThreshold
	}
	if patch.LiquidityThreshold != nil {
		c.LiquidityThreshold = *patch.LiquidityThreshold
	}
	return c
}
