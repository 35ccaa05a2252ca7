// Package domain ranks brokers by how far they are behind their monthly lead
// target and proposes the next lead a telephonist should work on.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// BrokerSnapshot is the state of one broker at recommendation time.
// Remaining is nil when the broker has no monthly target.
type BrokerSnapshot struct {
	BrokerID       snowflake.ID
	Name           string
	Territory      []string
	CanReceive     bool
	Target         *int
	Remaining      *int
	DeliveredMonth int
	DeliveredToday int
}

type LeadSnapshot struct {
	ID         snowflake.ID
	LeadNumber int64
	Postcode   string
	City       string
	CreatedAt  time.Time
}

type Standing struct {
	BrokerID        snowflake.ID `json:"broker_id"`
	BrokerName      string       `json:"broker_name"`
	DailyQuota      float64      `json:"daily_quota"`
	Deficit         float64      `json:"deficit"`
	Priority        Priority     `json:"priority"`
	Target          *int         `json:"target,omitempty"`
	Remaining       *int         `json:"remaining,omitempty"`
	DeliveredMonth  int          `json:"delivered_month"`
	DeliveredToday  int          `json:"delivered_today"`
	WorkingDaysLeft int          `json:"working_days_left"`

	territory []string
}

// Unlimited reports a broker without a monthly target.
func (s Standing) Unlimited() bool { return s.Remaining == nil }

type Match string

const (
	MatchTerritory    Match = "territory"
	MatchFallbackLead Match = "fallback_lead"
	MatchNoBroker     Match = "no_broker"
)

type Recommendation struct {
	LeadID     snowflake.ID  `json:"lead_id"`
	LeadNumber int64         `json:"lead_number"`
	Postcode   string        `json:"postcode"`
	City       string        `json:"city"`
	BrokerID   *snowflake.ID `json:"broker_id,omitempty"`
	BrokerName string        `json:"broker_name,omitempty"`
	Priority   Priority      `json:"priority"`
	DailyQuota float64       `json:"daily_quota"`
	Remaining  *int          `json:"remaining,omitempty"`
	Match      Match         `json:"match"`
	Reason     string        `json:"reason"`
}

// Overview is the dashboard payload. Recommendation is nil when no lead is
// open.
type Overview struct {
	Date             time.Time       `json:"date"`
	WorkingDaysLeft  int             `json:"working_days_left"`
	Recommendation   *Recommendation `json:"recommendation"`
	Standings        []Standing      `json:"standings"`
	TotalRemaining   int             `json:"total_remaining"`
	MinimumDailyRate float64         `json:"minimum_daily_rate"`
}

type Service interface {
	// Recommend recomputes everything from current data. Leads locked by
	// someone other than userID are left out. Nothing is reserved.
	Recommend(ctx context.Context, userID snowflake.ID) (Overview, error)
}
