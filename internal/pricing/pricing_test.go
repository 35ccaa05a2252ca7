package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func i64(v int64) *int64 { return &v }
func intp(v int) *int    { return &v }

func TestLegacyPriceForLead(t *testing.T) {
	cfg := Config{Mode: ModeLegacy, StandardRate: 10000, TrialLeads: 5, TrialRate: i64(5000)}

	for k := 1; k <= 8; k++ {
		got := PriceForLead(cfg, 1, k-1)
		if k <= 5 {
			assert.Equal(t, int64(5000), got, "lead %d", k)
		} else {
			assert.Equal(t, int64(10000), got, "lead %d", k)
		}
	}

	for month := 2; month <= 14; month++ {
		for k := 0; k < 8; k++ {
			assert.Equal(t, int64(10000), PriceForLead(cfg, month, k))
		}
	}
}

func TestLegacyWithoutTrialUsesStandard(t *testing.T) {
	cfg := Config{Mode: ModeLegacy, StandardRate: 9000, TrialRate: i64(1000)}
	assert.Equal(t, int64(9000), PriceForLead(cfg, 1, 0))
}

func TestUnsetRatesFallBackToStandard(t *testing.T) {
	legacy := Config{Mode: ModeLegacy, StandardRate: 10000, TrialLeads: 3}
	assert.Equal(t, int64(10000), PriceForLead(legacy, 1, 0))

	credits := Config{Mode: ModeCredits, StandardRate: 10000, FirstLeadsCount: intp(2)}
	assert.Equal(t, int64(10000), PriceForLead(credits, 1, 0))
	assert.Equal(t, int64(10000), PriceForLead(credits, 1, 5))
}

func TestCreditsTiers(t *testing.T) {
	cfg := Config{
		Mode:            ModeCredits,
		StandardRate:    10000,
		FirstLeadsCount: intp(5),
		FirstLeadsRate:  i64(5000),
		AfterFirstRate:  i64(7500),
	}
	assert.Equal(t, int64(5000), PriceForLead(cfg, 1, 0))
	assert.Equal(t, int64(5000), PriceForLead(cfg, 1, 4))
	assert.Equal(t, int64(7500), PriceForLead(cfg, 1, 5))
	assert.Equal(t, int64(10000), PriceForLead(cfg, 2, 0))
}

func TestCreditsFallbackQuota(t *testing.T) {
	cfg := Config{
		Mode:               ModeCredits,
		StandardRate:       10000,
		FirstLeadsRate:     i64(5000),
		AfterFirstRate:     i64(7500),
		FallbackFirstLeads: 2,
	}
	assert.Equal(t, int64(5000), PriceForLead(cfg, 1, 1))
	assert.Equal(t, int64(7500), PriceForLead(cfg, 1, 2))
}

func TestNetAndAverage(t *testing.T) {
	cfg := Config{Mode: ModeLegacy, StandardRate: 10000, TrialLeads: 5, TrialRate: i64(5000)}
	assert.Equal(t, int64(45000), NetForCount(cfg, 1, 7))
	assert.Equal(t, int64(6429), AveragePrice(cfg, 1, 7))
	assert.Equal(t, int64(10000), AveragePrice(cfg, 1, 0))
	assert.Equal(t, int64(0), NetForCount(cfg, 3, 0))
}

func TestMoneyHelpers(t *testing.T) {
	assert.Equal(t, int64(8550), VAT(45000, 19))
	assert.Equal(t, int64(53550), GrossFromNet(45000, 19))
	assert.Equal(t, int64(0), GrossFromNet(0, 19))
	assert.Equal(t, int64(2), DivRound(5, 3))
	assert.Equal(t, int64(0), DivRound(5, 0))
	assert.Equal(t, int64(29), Percent(1000, decimal.NewFromFloat(2.9)))

	// 250.000 EUR sale, 3.5 % commission, 15 % take
	assert.Equal(t, int64(131250), Participation(250_000_00, 3.5, 15))
	assert.Equal(t, "535.50 EUR", FormatEUR(53550))
}
