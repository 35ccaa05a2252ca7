package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/pkg/db/pagination"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusNew            Status = "new"
	StatusUnqualified    Status = "unqualified"
	StatusQualified      Status = "qualified"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusFlexRecall     Status = "flex_recall"
	StatusNotQualifiable Status = "not_qualifiable"
	StatusComplained     Status = "complained"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusUnqualified, StatusQualified, StatusDelivered,
		StatusCancelled, StatusFlexRecall, StatusNotQualifiable, StatusComplained:
		return true
	default:
		return false
	}
}

// Checklist keys set by the broker through the portal.
const (
	ChecklistAppointmentScheduled = "appointment_scheduled"
	ChecklistContractSigned       = "contract_signed"
	ChecklistSold                 = "sold"
)

type Lead struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	LeadNumber int64         `gorm:"not null;uniqueIndex" json:"lead_number"`
	BrokerID   *snowflake.ID `gorm:"index" json:"broker_id,omitempty"`
	Status     Status        `gorm:"type:text;not null;index" json:"status"`

	Postcode     string   `gorm:"index" json:"postcode"`
	City         string   `json:"city"`
	PropertyType string   `json:"property_type"`
	LivingArea   *float64 `json:"living_area,omitempty"`
	PlotArea     *float64 `json:"plot_area,omitempty"`
	AskingPrice  *int64   `json:"asking_price,omitempty"`
	YearBuilt    *int     `json:"year_built,omitempty"`
	Features     string   `json:"features"`
	Description  string   `json:"description"`
	Phone        string   `json:"phone"`

	QualifiedAt *time.Time    `gorm:"index" json:"qualified_at,omitempty"`
	QualifiedBy *snowflake.ID `json:"qualified_by,omitempty"`

	LockedBy    *snowflake.ID `json:"locked_by,omitempty"`
	LockedSince *time.Time    `json:"locked_since,omitempty"`

	Checklist        datatypes.JSONMap `gorm:"type:jsonb" json:"checklist,omitempty"`
	SalePriceText    string            `json:"sale_price_text"`
	ParticipationPct *float64          `json:"participation_pct,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// Sold reports the broker's "sold" checklist flag.
func (l Lead) Sold() bool {
	value, ok := l.Checklist[ChecklistSold]
	if !ok {
		return false
	}
	sold, _ := value.(bool)
	return sold
}

// IsLocked reports whether user is blocked by another user's edit lock. A lock
// older than timeout has expired and no longer blocks anyone.
func IsLocked(lead Lead, user snowflake.ID, now time.Time, timeout time.Duration) bool {
	if lead.LockedBy == nil || *lead.LockedBy == 0 {
		return false
	}
	if user != 0 && *lead.LockedBy == user {
		return false
	}
	if lead.LockedSince != nil && now.Sub(*lead.LockedSince) > timeout {
		return false
	}
	return true
}

type ListFilter struct {
	Status     Status
	BrokerID   *snowflake.ID
	Unassigned bool
	Cursor     *pagination.Cursor
	Limit      int
}

// BrokerCount is a per-broker lead tally.
type BrokerCount struct {
	BrokerID snowflake.ID `gorm:"column:broker_id"`
	Count    int          `gorm:"column:count"`
}
