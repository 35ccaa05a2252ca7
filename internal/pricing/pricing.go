// Package pricing computes per-lead prices for both broker billing modes.
// All amounts are euro cents.
package pricing

type Mode string

const (
	ModeLegacy  Mode = "legacy"
	ModeCredits Mode = "credits"
)

// Config is the pricing slice of a broker. Fields of the other billing mode
// are carried but ignored.
type Config struct {
	Mode         Mode
	StandardRate int64

	// legacy
	TrialLeads int
	TrialRate  *int64

	// credits
	FirstLeadsCount *int
	FirstLeadsRate  *int64
	AfterFirstRate  *int64

	// FallbackFirstLeads applies when FirstLeadsCount is unset.
	FallbackFirstLeads int
}

// PriceForLead returns the price of the next lead given how many leads were
// already billed this month. Only contract month 1 has an introductory tier.
func PriceForLead(cfg Config, contractMonth int, billedBefore int) int64 {
	if contractMonth != 1 {
		return cfg.StandardRate
	}

	switch cfg.Mode {
	case ModeCredits:
		quota := cfg.FallbackFirstLeads
		if cfg.FirstLeadsCount != nil {
			quota = *cfg.FirstLeadsCount
		}
		if billedBefore < quota {
			return rateOr(cfg.FirstLeadsRate, cfg.StandardRate)
		}
		return rateOr(cfg.AfterFirstRate, cfg.StandardRate)
	default:
		if cfg.TrialLeads > 0 && billedBefore < cfg.TrialLeads {
			return rateOr(cfg.TrialRate, cfg.StandardRate)
		}
		return cfg.StandardRate
	}
}

// NetForCount sums PriceForLead over ordinals 1..n so tier boundaries inside
// month 1 are respected.
func NetForCount(cfg Config, contractMonth int, n int) int64 {
	var total int64
	for i := 0; i < n; i++ {
		total += PriceForLead(cfg, contractMonth, i)
	}
	return total
}

// AveragePrice is the displayed per-lead price. With no leads it is the
// standard rate.
func AveragePrice(cfg Config, contractMonth int, n int) int64 {
	if n <= 0 {
		return cfg.StandardRate
	}
	return DivRound(NetForCount(cfg, contractMonth, n), int64(n))
}

func rateOr(rate *int64, fallback int64) int64 {
	if rate == nil {
		return fallback
	}
	return *rate
}
