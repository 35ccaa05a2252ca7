package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent returns pct percent of amount, rounded half away from zero.
func Percent(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0).IntPart()
}

func VAT(net int64, vatPercent float64) int64 {
	return Percent(net, decimal.NewFromFloat(vatPercent))
}

func GrossFromNet(net int64, vatPercent float64) int64 {
	return net + VAT(net, vatPercent)
}

// DivRound divides with half-away-from-zero rounding. A zero divisor yields 0.
func DivRound(amount, divisor int64) int64 {
	if divisor == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(divisor)).Round(0).IntPart()
}

// Participation computes the take on a sale: price × pct/100 × takeRate/100.
func Participation(salePrice int64, participationPct, takeRatePercent float64) int64 {
	return decimal.NewFromInt(salePrice).
		Mul(decimal.NewFromFloat(participationPct)).
		Div(hundred).
		Mul(decimal.NewFromFloat(takeRatePercent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// FormatEUR renders cents as "1234.50 EUR".
func FormatEUR(cents int64) string {
	return fmt.Sprintf("%s EUR", decimal.New(cents, -2).StringFixed(2))
}

func ApplyPercent(amount int64, pct float64) int64 {
	return Percent(amount, decimal.NewFromFloat(pct))
}
