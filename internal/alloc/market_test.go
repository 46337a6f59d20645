package alloc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock pins analyzer and engine tests to a known instant
type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// weekday returns a Wednesday 12:00 clock: normal trading window, not weekend
func weekdayNoon() fixedClock {
	return fixedClock{t: time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)}
}

func TestAnalyzer_Analyze_DefaultsForAbsentSignals(t *testing.T) {
	analyzer := NewAnalyzerWithClock(weekdayNoon(), DefaultTimeBands())

	analysis := analyzer.Analyze(MarketSignals{})

	assert.Equal(t, 0.1, analysis.Volatility, "absent volatility should default to 0.1")
	assert.Equal(t, 0.7, analysis.Liquidity, "absent liquidity should default to 0.7")
	assert.Equal(t, TrendNeutral, analysis.Trend)
	assert.Equal(t, SentimentNeutral, analysis.MarketSentiment)
	assert.Equal(t, MarketRiskLow, analysis.RiskLevel)
	assert.Equal(t, TimeNormal, analysis.TimeOfDay)
	assert.False(t, analysis.IsWeekend)
}

func TestAnalyzer_Analyze_SentimentRules(t *testing.T) {
	analyzer := NewAnalyzerWithClock(weekdayNoon(), DefaultTimeBands())

	tests := []struct {
		name     string
		signals  MarketSignals
		expected Sentiment
	}{
		{"bullish trend with calm volatility", MarketSignals{Trend: TrendBullish, Volatility: 0.10}, SentimentBullish},
		{"bullish trend with elevated volatility", MarketSignals{Trend: TrendBullish, Volatility: 0.20}, SentimentNeutral},
		{"bearish trend always bearish", MarketSignals{Trend: TrendBearish, Volatility: 0.05}, SentimentBearish},
		{"high volatility alone is bearish", MarketSignals{Trend: TrendNeutral, Volatility: 0.35}, SentimentBearish},
		{"neutral otherwise", MarketSignals{Trend: TrendNeutral, Volatility: 0.10}, SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := analyzer.Analyze(tt.signals)
			assert.Equal(t, tt.expected, analysis.MarketSentiment)
		})
	}
}

func TestAnalyzer_Analyze_RiskRules(t *testing.T) {
	analyzer := NewAnalyzerWithClock(weekdayNoon(), DefaultTimeBands())

	tests := []struct {
		name     string
		signals  MarketSignals
		expected MarketRisk
	}{
		{"high volatility", MarketSignals{Volatility: 0.35, Liquidity: 0.9}, MarketRiskHigh},
		{"thin liquidity", MarketSignals{Volatility: 0.05, Liquidity: 0.2}, MarketRiskHigh},
		{"elevated volatility", MarketSignals{Volatility: 0.20, Liquidity: 0.9}, MarketRiskMedium},
		{"soft liquidity", MarketSignals{Volatility: 0.05, Liquidity: 0.4}, MarketRiskMedium},
		{"calm and deep", MarketSignals{Volatility: 0.05, Liquidity: 0.9}, MarketRiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := analyzer.Analyze(tt.signals)
			assert.Equal(t, tt.expected, analysis.RiskLevel)
		})
	}
}

func TestAnalyzer_TimeOfDayBands(t *testing.T) {
	tests := []struct {
		hour     int
		expected TimeOfDay
	}{
		{18, TimePeak},
		{19, TimePeak},
		{21, TimePeak},
		{22, TimeOffPeak}, // peak band is half-open [18,22)
		{23, TimeOffPeak},
		{0, TimeOffPeak},
		{5, TimeOffPeak},
		{6, TimeMorning},
		{9, TimeMorning},
		{10, TimeNormal},
		{12, TimeNormal},
		{17, TimeNormal},
	}

	for _, tt := range tests {
		clock := fixedClock{t: time.Date(2024, 3, 13, tt.hour, 30, 0, 0, time.UTC)}
		analyzer := NewAnalyzerWithClock(clock, DefaultTimeBands())

		analysis := analyzer.Analyze(MarketSignals{})
		assert.Equal(t, tt.expected, analysis.TimeOfDay, "hour %d should be %s", tt.hour, tt.expected)
	}
}

func TestAnalyzer_Analyze_WeekendDetection(t *testing.T) {
	saturday := fixedClock{t: time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)}
	sunday := fixedClock{t: time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC)}

	assert.True(t, NewAnalyzerWithClock(saturday, DefaultTimeBands()).Analyze(MarketSignals{}).IsWeekend)
	assert.True(t, NewAnalyzerWithClock(sunday, DefaultTimeBands()).Analyze(MarketSignals{}).IsWeekend)
	assert.False(t, NewAnalyzerWithClock(weekdayNoon(), DefaultTimeBands()).Analyze(MarketSignals{}).IsWeekend)
}

func TestAnalyzer_Analyze_Idempotent(t *testing.T) {
	analyzer := NewAnalyzerWithClock(weekdayNoon(), DefaultTimeBands())
	signals := MarketSignals{Volatility: 0.22, Liquidity: 0.45, Trend: TrendBearish}

	first := analyzer.Analyze(signals)
	second := analyzer.Analyze(signals)

	require.Equal(t, first, second, "identical input under a frozen clock must yield identical output")
}

func TestAnalyzer_CustomBandsWrapMidnight(t *testing.T) {
	bands := TimeBands{
		PeakStart:    20,
		PeakEnd:      2, // wraps midnight
		MorningStart: 5,
		MorningEnd:   8,
		OffPeakStart: 2,
		OffPeakEnd:   5,
	}

	tests := []struct {
		hour     int
		expected TimeOfDay
	}{
		{21, TimePeak},
		{1, TimePeak},
		{3, TimeOffPeak},
		{6, TimeMorning},
		{12, TimeNormal},
	}

	for _, tt := range tests {
		clock := fixedClock{t: time.Date(2024, 3, 13, tt.hour, 0, 0, 0, time.UTC)}
		analyzer := NewAnalyzerWithClock(clock, bands)
		assert.Equal(t, tt.expected, analyzer.Analyze(MarketSignals{}).TimeOfDay, "hour %d", tt.hour)
	}
}
