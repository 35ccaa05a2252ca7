package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	"github.com/leadgate/leadgate/pkg/db/pagination"
)

type CreateLeadRequest struct {
	BrokerID     *snowflake.ID
	Postcode     string
	City         string
	PropertyType string
	LivingArea   *float64
	PlotArea     *float64
	AskingPrice  *int64
	YearBuilt    *int
	Features     string
	Description  string
	Phone        string
	CreatedAt    *time.Time
}

type ListLeadRequest struct {
	PageToken  string
	PageSize   int32
	Status     string
	BrokerID   *snowflake.ID
	Unassigned bool
}

type ListLeadResponse struct {
	pagination.PageInfo
	Leads []Lead `json:"leads"`
}

type TransitionRequest struct {
	LeadID snowflake.ID
	UserID snowflake.ID
	Status Status
	// WithoutCharge qualifies a credits-mode lead without booking a charge.
	WithoutCharge bool
}

// TransitionResult carries the charge outcome of a qualification. Applied is
// false when an insufficient balance stopped the status change.
type TransitionResult struct {
	Lead    Lead                        `json:"lead"`
	Applied bool                        `json:"applied"`
	Charge  *creditdomain.ChargeOutcome `json:"charge,omitempty"`
	Refund  *creditdomain.Transaction   `json:"refund,omitempty"`
}

type UpdateChecklistRequest struct {
	LeadID           snowflake.ID
	Checklist        map[string]any
	SalePriceText    *string
	ParticipationPct *float64
}

type Service interface {
	Create(ctx context.Context, req CreateLeadRequest) (Lead, error)
	Get(ctx context.Context, id snowflake.ID) (Lead, error)
	List(ctx context.Context, req ListLeadRequest) (ListLeadResponse, error)
	Assign(ctx context.Context, leadID, brokerID snowflake.ID) (Lead, error)
	Unassign(ctx context.Context, leadID snowflake.ID) (Lead, error)
	// StartEdit takes the soft edit lock on an unqualified lead.
	StartEdit(ctx context.Context, leadID, userID snowflake.ID) (Lead, error)
	Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error)
	UpdateChecklist(ctx context.Context, req UpdateChecklistRequest) (Lead, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidPageToken  = pagination.ErrInvalidPageToken
	ErrInvalidPercent    = errors.New("invalid_participation_pct")
	ErrNotFound          = errors.New("not_found")
	ErrBrokerNotFound    = errors.New("broker_not_found")
	ErrBrokerRequired    = errors.New("broker_required")
	ErrBrokerUnavailable = errors.New("broker_unavailable")
	ErrLeadLocked        = errors.New("lead_locked")
	ErrStatusUnchanged   = errors.New("status_unchanged")
	ErrLeadAlreadyBilled = errors.New("lead_already_billed")
)
