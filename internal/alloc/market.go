package alloc

import (
	"time"
)

// Trend labels the prevailing price direction reported by the signal feed
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Sentiment is the derived market mood
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// MarketRisk grades overall trading conditions (distinct from per-opportunity
// RiskLevel, which grades a single item)
type MarketRisk string

const (
	MarketRiskLow    MarketRisk = "low"
	MarketRiskMedium MarketRisk = "medium"
	MarketRiskHigh   MarketRisk = "high"
)

// TimeOfDay buckets the wall-clock hour into trading windows
type TimeOfDay string

const (
	TimePeak    TimeOfDay = "peak"
	TimeMorning TimeOfDay = "morning"
	TimeOffPeak TimeOfDay = "off_peak"
	TimeNormal  TimeOfDay = "normal"
)

// MarketSignals carries the raw, loosely populated market condition inputs.
// Zero values mean "absent" and are replaced by defaults during analysis;
// fields the rules do not consume are accepted and ignored.
type MarketSignals struct {
	Volatility     float64   `json:"volatility,omitempty"`
	Liquidity      float64   `json:"liquidity,omitempty"`
	Trend          Trend     `json:"trend,omitempty"`
	Sentiment      Sentiment `json:"sentiment,omitempty"`
	ActiveTraders  float64   `json:"active_traders,omitempty"`
	PriceStability float64   `json:"price_stability,omitempty"`
}

// MarketAnalysis is the normalized snapshot derived from raw signals,
// computed once per allocation call and embedded in the returned plan
type MarketAnalysis struct {
	Volatility      float64    `json:"volatility"`
	Liquidity       float64    `json:"liquidity"`
	Trend           Trend      `json:"trend"`
	MarketSentiment Sentiment  `json:"market_sentiment"`
	RiskLevel       MarketRisk `json:"risk_level"`
	TimeOfDay       TimeOfDay  `json:"time_of_day"`
	IsWeekend       bool       `json:"is_weekend"`
}

// Clock supplies the current time; injectable so tests can pin the trading
// window instead of depending on wall-clock execution time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TimeBands configures the hour boundaries for the time-of-day buckets.
// Bands are half-open [start, end) on the server-local hour and may wrap past
// midnight. Peak takes precedence over morning, morning over off-peak.
type TimeBands struct {
	PeakStart    int `yaml:"peak_start"`     // Default: 18
	PeakEnd      int `yaml:"peak_end"`       // Default: 22
	MorningStart int `yaml:"morning_start"`  // Default: 6
	MorningEnd   int `yaml:"morning_end"`    // Default: 10
	OffPeakStart int `yaml:"off_peak_start"` // Default: 22
	OffPeakEnd   int `yaml:"off_peak_end"`   // Default: 6 (wraps midnight)
}

// DefaultTimeBands returns the standard evening-peak trading windows
func DefaultTimeBands() TimeBands {
	return TimeBands{
		PeakStart:    18,
		PeakEnd:      22,
		MorningStart: 6,
		MorningEnd:   10,
		OffPeakStart: 22,
		OffPeakEnd:   6,
	}
}

// Defaults for absent market signals
const (
	defaultVolatility = 0.1
	defaultLiquidity  = 0.7
)

// Sentiment and risk classification thresholds
const (
	bullishMaxVolatility = 0.15
	bearishMinVolatility = 0.30
	highRiskVolatility   = 0.30
	highRiskLiquidity    = 0.30
	mediumRiskVolatility = 0.15
	mediumRiskLiquidity  = 0.50
)

// Analyzer normalizes raw market signals into a MarketAnalysis snapshot
type Analyzer struct {
	clock Clock
	bands TimeBands
}

// NewAnalyzer creates an analyzer on the system clock with default bands
func NewAnalyzer() *Analyzer {
	return NewAnalyzerWithClock(systemClock{}, DefaultTimeBands())
}

// NewAnalyzerWithClock creates an analyzer with a custom clock and bands
func NewAnalyzerWithClock(clock Clock, bands TimeBands) *Analyzer {
	return &Analyzer{clock: clock, bands: bands}
}

// Analyze fills defaults for absent signals and derives sentiment, risk and
// trading-window labels. It has no failure modes and always returns a fully
// populated snapshot; identical input under a frozen clock yields identical
// output.
func (a *Analyzer) Analyze(signals MarketSignals) MarketAnalysis {
	volatility := signals.Volatility
	if volatility == 0 {
		volatility = defaultVolatility
	}
	liquidity := signals.Liquidity
	if liquidity == 0 {
		liquidity = defaultLiquidity
	}
	trend := signals.Trend
	if trend == "" {
		trend = TrendNeutral
	}

	now := a.clock.Now()
	weekday := now.Weekday()

	return MarketAnalysis{
		Volatility:      volatility,
		Liquidity:       liquidity,
		Trend:           trend,
		MarketSentiment: deriveSentiment(trend, volatility),
		RiskLevel:       deriveMarketRisk(volatility, liquidity),
		TimeOfDay:       a.timeOfDay(now.Hour()),
		IsWeekend:       weekday == time.Saturday || weekday == time.Sunday,
	}
}

func deriveSentiment(trend Trend, volatility float64) Sentiment {
	switch {
	case trend == TrendBullish && volatility < bullishMaxVolatility:
		return SentimentBullish
	case trend == TrendBearish || volatility > bearishMinVolatility:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

func deriveMarketRisk(volatility, liquidity float64) MarketRisk {
	switch {
	case volatility > highRiskVolatility || liquidity < highRiskLiquidity:
		return MarketRiskHigh
	case volatility > mediumRiskVolatility || liquidity < mediumRiskLiquidity:
		return MarketRiskMedium
	default:
		return MarketRiskLow
	}
}

func (a *Analyzer) timeOfDay(hour int) TimeOfDay {
	switch {
	case inBand(hour, a.bands.PeakStart, a.bands.PeakEnd):
		return TimePeak
	case inBand(hour, a.bands.MorningStart, a.bands.MorningEnd):
		return TimeMorning
	case inBand(hour, a.bands.OffPeakStart, a.bands.OffPeakEnd):
		return TimeOffPeak
	default:
		return TimeNormal
	}
}

// inBand reports whether hour falls in [start, end), wrapping past midnight
// when start > end
func inBand(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
