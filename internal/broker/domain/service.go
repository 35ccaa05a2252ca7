package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/pricing"
)

type CreateBrokerRequest struct {
	CompanyName   string
	ContactName   string
	Email         string
	Address       string
	BillingCode   string
	Territory     string
	ContractStart time.Time
	MonthlyQuota  *int
	BillingMode   pricing.Mode

	TrialLeads      int
	TrialRate       *int64
	FirstLeadsCount *int
	FirstLeadsRate  *int64
	AfterFirstRate  *int64
	StandardRate    int64
}

type UpdatePricingRequest struct {
	ID              snowflake.ID
	BillingMode     pricing.Mode
	TrialLeads      int
	TrialRate       *int64
	FirstLeadsCount *int
	FirstLeadsRate  *int64
	AfterFirstRate  *int64
	StandardRate    int64
}

type UpdateAssignmentRequest struct {
	ID           snowflake.ID
	Territory    string
	MonthlyQuota *int
}

type Service interface {
	Create(ctx context.Context, req CreateBrokerRequest) (Broker, error)
	Get(ctx context.Context, id snowflake.ID) (Broker, error)
	List(ctx context.Context) ([]Broker, error)
	UpdatePricing(ctx context.Context, req UpdatePricingRequest) (Broker, error)
	UpdateAssignment(ctx context.Context, req UpdateAssignmentRequest) (Broker, error)
	Pause(ctx context.Context, id snowflake.ID) (Broker, error)
	Resume(ctx context.Context, id snowflake.ID) (Broker, error)
	// Terminate sets the contract end. Leads stop on the first month whose
	// last day is on or after end.
	Terminate(ctx context.Context, id snowflake.ID, end time.Time) (Broker, error)
	// Delete removes the broker and everything that references it, in a fixed
	// order: refund requests, credit transactions, invoices, lead assignments.
	Delete(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidCompanyName = errors.New("invalid_company_name")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidBillingMode = errors.New("invalid_billing_mode")
	ErrInvalidRate        = errors.New("invalid_rate")
	ErrInvalidQuota       = errors.New("invalid_quota")
	ErrInvalidContract    = errors.New("invalid_contract")
	ErrBillingCodeTaken   = errors.New("billing_code_taken")
	ErrNotFound           = errors.New("not_found")
)
