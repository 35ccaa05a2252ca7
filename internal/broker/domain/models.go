package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/contract"
	"github.com/leadgate/leadgate/internal/pricing"
)

// Broker is a paying customer that receives leads. Rates are euro cents.
// Pricing fields of the billing mode not in use are kept but ignored.
type Broker struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyName   string       `gorm:"not null" json:"company_name"`
	ContactName   string       `json:"contact_name"`
	Email         string       `gorm:"not null" json:"email"`
	Address       string       `json:"address"`
	BillingCode   string       `gorm:"not null;uniqueIndex" json:"billing_code"`
	Territory     string       `json:"territory"`
	ContractStart time.Time    `gorm:"not null" json:"contract_start"`
	ContractEnd   *time.Time   `json:"contract_end,omitempty"`
	Paused        bool         `gorm:"not null" json:"paused"`
	MonthlyQuota  *int         `json:"monthly_quota,omitempty"`
	BillingMode   pricing.Mode `gorm:"type:text;not null" json:"billing_mode"`

	TrialLeads int    `gorm:"not null" json:"trial_leads"`
	TrialRate  *int64 `json:"trial_rate,omitempty"`

	FirstLeadsCount *int   `json:"first_leads_count,omitempty"`
	FirstLeadsRate  *int64 `json:"first_leads_rate,omitempty"`
	AfterFirstRate  *int64 `json:"after_first_rate,omitempty"`

	StandardRate int64 `gorm:"not null" json:"standard_rate"`

	GatelinkPasswordHash *string `json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (b Broker) UsesCredits() bool {
	return b.BillingMode == pricing.ModeCredits
}

func (b Broker) Terms() contract.Terms {
	return contract.Terms{
		Start:  b.ContractStart,
		End:    b.ContractEnd,
		Paused: b.Paused,
	}
}

// PricingConfig maps the broker onto the calculator input. fallbackFirstLeads
// stands in for an unset credits first-leads count.
func (b Broker) PricingConfig(fallbackFirstLeads int) pricing.Config {
	return pricing.Config{
		Mode:               b.BillingMode,
		StandardRate:       b.StandardRate,
		TrialLeads:         b.TrialLeads,
		TrialRate:          b.TrialRate,
		FirstLeadsCount:    b.FirstLeadsCount,
		FirstLeadsRate:     b.FirstLeadsRate,
		AfterFirstRate:     b.AfterFirstRate,
		FallbackFirstLeads: fallbackFirstLeads,
	}
}

// TerritoryCodes splits the comma separated postcode list.
func (b Broker) TerritoryCodes() []string {
	return SplitTerritory(b.Territory)
}

func SplitTerritory(raw string) []string {
	parts := strings.Split(raw, ",")
	codes := make([]string, 0, len(parts))
	for _, part := range parts {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}
