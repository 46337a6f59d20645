package marketdata

import (
	"github.com/shopspring/decimal"
)

// Grand Exchange sale tax: 2% of the sell price, rounded down, capped at
// 5,000,000 gp per item, with sales under 50 gp exempt. Buying is untaxed.
const (
	saleTaxCapGP    = 5_000_000
	saleTaxExemptGP = 50
)

var saleTaxRate = decimal.NewFromFloat(0.02)

// SaleTax returns the tax withheld when one unit sells at sellPrice
func SaleTax(sellPrice int64) int64 {
	if sellPrice < saleTaxExemptGP {
		return 0
	}
	tax := decimal.NewFromInt(sellPrice).Mul(saleTaxRate).Floor().IntPart()
	if tax > saleTaxCapGP {
		return saleTaxCapGP
	}
	return tax
}

// NetProfit returns the per-unit profit of buying at buyPrice and selling at
// sellPrice after tax. Negative when the flip loses money.
func NetProfit(buyPrice, sellPrice int64) int64 {
	return sellPrice - SaleTax(sellPrice) - buyPrice
}

// MarginPercent returns the after-tax margin as a percentage of the buy
// price, 0 when the buy price is not positive
func MarginPercent(buyPrice, sellPrice int64) float64 {
	if buyPrice <= 0 {
		return 0
	}
	margin := decimal.NewFromInt(NetProfit(buyPrice, sellPrice)).
		Div(decimal.NewFromInt(buyPrice)).
		Mul(decimal.NewFromInt(100))
	f, _ := margin.Float64()
	return f
}
