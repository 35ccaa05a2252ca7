// Package domain contains the invoice models for monthly lead billing and
// sale participation.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeMonthly       Type = "monthly"
	TypeParticipation Type = "participation"
)

// Status is the dunning state of an invoice.
type Status string

const (
	StatusOpen         Status = "open"
	StatusOverdue      Status = "overdue"
	StatusPaid         Status = "paid"
	StatusReminderSent Status = "reminder_sent"
	StatusDunning1     Status = "dunning_1"
	StatusDunning2     Status = "dunning_2"
	StatusCollection   Status = "collection"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusOverdue, StatusPaid, StatusReminderSent,
		StatusDunning1, StatusDunning2, StatusCollection:
		return true
	default:
		return false
	}
}

// Invoice amounts are euro cents. Monthly invoices are unique per broker and
// month; participation invoices are unique per lead.
type Invoice struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Number   string       `gorm:"not null;uniqueIndex" json:"number"`
	Sequence int64        `gorm:"not null" json:"sequence"`
	BrokerID snowflake.ID `gorm:"not null;index" json:"broker_id"`
	Type     Type         `gorm:"type:text;not null" json:"type"`
	Month    int          `gorm:"not null" json:"month"`
	Year     int          `gorm:"not null" json:"year"`

	LeadCount    int   `gorm:"not null" json:"lead_count"`
	PricePerLead int64 `gorm:"not null" json:"price_per_lead"`

	LeadID           *snowflake.ID `gorm:"index" json:"lead_id,omitempty"`
	SalePrice        *int64        `json:"sale_price,omitempty"`
	ParticipationPct *float64      `json:"participation_pct,omitempty"`

	NetAmount   int64   `gorm:"not null" json:"net_amount"`
	GrossAmount int64   `gorm:"not null" json:"gross_amount"`
	Status      Status  `gorm:"type:text;not null" json:"status"`
	CreatedBy   *string `json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// DueDate is the 15th of the month after the billed month.
func (i Invoice) DueDate() time.Time {
	return time.Date(i.Year, time.Month(i.Month)+1, 15, 0, 0, 0, 0, time.UTC)
}

var salePriceCleaner = strings.NewReplacer("€", "", "EUR", "", " ", "", "\u00a0", "")

// ParseSalePrice reads a German formatted amount such as "250.000 €" or
// "1.250.000,50 EUR" into cents. Dots group thousands and a comma marks the
// decimals.
func ParseSalePrice(text string) (int64, error) {
	cleaned := salePriceCleaner.Replace(strings.TrimSpace(text))
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return 0, ErrInvalidSalePrice
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil || !value.IsPositive() {
		return 0, ErrInvalidSalePrice
	}
	return value.Shift(2).Round(0).IntPart(), nil
}

type ListFilter struct {
	BrokerID *snowflake.ID
	Type     Type
	Status   Status
	Month    int
	Year     int
}

// ReconcileResult summarises a batch run over all brokers.
type ReconcileResult struct {
	Month    int       `json:"month"`
	Year     int       `json:"year"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
	Invoices []Invoice `json:"invoices"`
}
