package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flipCandidate returns an opportunity that passes both strategy filters
func flipCandidate(itemID int) Opportunity {
	return Opportunity{
		ItemID:        itemID,
		ItemName:      "Abyssal whip",
		BuyPrice:      1_800_000,
		SellPrice:     1_950_000,
		NetProfitGP:   110_000,
		MarginPercent: 8.0,
		Volume:        2500,
		Volatility:    15,
		TimeToFlip:    45,
		RiskLevel:     RiskMedium,
		Confidence:    0.8,
	}
}

func calmMarket() MarketAnalysis {
	return MarketAnalysis{
		Volatility:      0.10,
		Liquidity:       0.70,
		Trend:           TrendNeutral,
		MarketSentiment: SentimentNeutral,
		RiskLevel:       MarketRiskLow,
		TimeOfDay:       TimeNormal,
	}
}

func TestClassifier_QualifiesForBothStrategies(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	set := classifier.Classify([]Opportunity{flipCandidate(4151)}, calmMarket())

	require.Len(t, set.Instant, 1, "candidate should pass the instant filter")
	require.Len(t, set.Patient, 1, "candidate should pass the patient filter")
	assert.Equal(t, 4151, set.Instant[0].ItemID)
	assert.Equal(t, 4151, set.Patient[0].ItemID)
}

func TestClassifier_InstantFilterGates(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	tests := []struct {
		name   string
		mutate func(*Opportunity)
	}{
		{"margin below 2%", func(o *Opportunity) { o.MarginPercent = 1.5 }},
		{"volume below 1000", func(o *Opportunity) { o.Volume = 500 }},
		{"flip slower than 2h", func(o *Opportunity) { o.TimeToFlip = 180 }},
		{"volatility above 50", func(o *Opportunity) { o.Volatility = 60 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := flipCandidate(4151)
			tt.mutate(&opp)

			set := classifier.Classify([]Opportunity{opp}, calmMarket())
			assert.Empty(t, set.Instant, "opportunity should be rejected by the instant filter")
		})
	}
}

func TestClassifier_InstantHighRiskOnlyRejectedInHighRiskMarket(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())
	opp := flipCandidate(4151)
	opp.RiskLevel = RiskHigh

	calm := calmMarket()
	set := classifier.Classify([]Opportunity{opp}, calm)
	assert.Len(t, set.Instant, 1, "HIGH risk item is still an instant candidate in a calm market")

	hot := calmMarket()
	hot.RiskLevel = MarketRiskHigh
	set = classifier.Classify([]Opportunity{opp}, hot)
	assert.Empty(t, set.Instant, "HIGH risk item is rejected when the market itself is high risk")
}

func TestClassifier_PatientFilterGates(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	tests := []struct {
		name   string
		mutate func(*Opportunity)
	}{
		{"margin below 5%", func(o *Opportunity) { o.MarginPercent = 4.0 }},
		{"volume below 100", func(o *Opportunity) { o.Volume = 50 }},
		{"flip slower than 24h", func(o *Opportunity) { o.TimeToFlip = 25 * 60 }},
		{"volatility above 30", func(o *Opportunity) { o.Volatility = 35 }},
		{"high risk rejected outright", func(o *Opportunity) { o.RiskLevel = RiskHigh }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := flipCandidate(4151)
			tt.mutate(&opp)

			set := classifier.Classify([]Opportunity{opp}, calmMarket())
			assert.Empty(t, set.Patient, "opportunity should be rejected by the patient filter")
		})
	}
}

func TestClassifier_InstantRankedByProfitPerHour(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	slow := flipCandidate(1)
	slow.NetProfitGP = 50_000
	slow.TimeToFlip = 100 // 30k gp/h

	fast := flipCandidate(2)
	fast.NetProfitGP = 40_000
	fast.TimeToFlip = 20 // 120k gp/h

	set := classifier.Classify([]Opportunity{slow, fast}, calmMarket())

	require.Len(t, set.Instant, 2)
	assert.Equal(t, 2, set.Instant[0].ItemID, "faster gp/hour compounder ranks first")
	assert.Equal(t, 1, set.Instant[1].ItemID)
	assert.Greater(t, set.Instant[0].ProfitPerHour, set.Instant[1].ProfitPerHour)
}

func TestClassifier_PatientRankedByMargin(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	thin := flipCandidate(1)
	thin.MarginPercent = 8.0
	fat := flipCandidate(2)
	fat.MarginPercent = 20.0

	set := classifier.Classify([]Opportunity{thin, fat}, calmMarket())

	require.Len(t, set.Patient, 2)
	assert.Equal(t, 2, set.Patient[0].ItemID, "fattest margin ranks first")
	assert.Equal(t, 1, set.Patient[1].ItemID)
}

func TestClassifier_NormalizesCandidates(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	opp := flipCandidate(4151)
	opp.Confidence = 0
	opp.RiskLevel = ""
	opp.ProfitPerHour = 0

	set := classifier.Classify([]Opportunity{opp}, calmMarket())

	require.Len(t, set.Instant, 1)
	got := set.Instant[0]
	assert.Equal(t, 0.7, got.Confidence, "absent confidence defaults to 0.7")
	assert.Equal(t, RiskMedium, got.RiskLevel, "absent risk level defaults to MEDIUM")
	assert.InDelta(t, opp.NetProfitGP/(opp.TimeToFlip/60.0), got.ProfitPerHour, 1e-9, "profit per hour derived from net profit and flip time")
}

func TestClassifier_CustomRanking(t *testing.T) {
	// Invert the instant ordering: cheapest buy price first
	byCheapest := func(a, b Opportunity) bool { return a.BuyPrice < b.BuyPrice }
	classifier := NewClassifierWithRanking(DefaultConfig(), byCheapest, RankByMargin)

	pricey := flipCandidate(1)
	pricey.BuyPrice = 2_000_000
	cheap := flipCandidate(2)
	cheap.BuyPrice = 500_000

	set := classifier.Classify([]Opportunity{pricey, cheap}, calmMarket())

	require.Len(t, set.Instant, 2)
	assert.Equal(t, 2, set.Instant[0].ItemID, "custom comparator should drive the ordering")
}

func TestClassifier_StableOnEqualKeys(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	first := flipCandidate(1)
	second := flipCandidate(2)
	third := flipCandidate(3)

	set := classifier.Classify([]Opportunity{first, second, third}, calmMarket())

	require.Len(t, set.Patient, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{set.Patient[0].ItemID, set.Patient[1].ItemID, set.Patient[2].ItemID},
		"equal-margin candidates keep their input order")
}
