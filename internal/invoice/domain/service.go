package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
)

type MonthlyRequest struct {
	BrokerID  snowflake.ID
	Month     int
	Year      int
	CreatedBy string
}

type ParticipationRequest struct {
	LeadID    snowflake.ID
	CreatedBy string
}

type Service interface {
	// FindOrCreateMonthly recomputes the monthly invoice from the qualified
	// leads of the month. The bool reports whether a new row was inserted.
	FindOrCreateMonthly(ctx context.Context, req MonthlyRequest) (Invoice, bool, error)
	CreateParticipation(ctx context.Context, req ParticipationRequest) (Invoice, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status) (Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
	// ListBillableSales returns sold, assigned leads without a participation
	// invoice.
	ListBillableSales(ctx context.Context) ([]leaddomain.Lead, error)
	// ReconcileMonth refreshes the monthly invoices of all legacy brokers.
	// Only one run per month executes at a time.
	ReconcileMonth(ctx context.Context, month, year int) (ReconcileResult, error)
	RenderHTML(ctx context.Context, id snowflake.ID) (string, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidPeriod    = errors.New("invalid_period")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidSalePrice = errors.New("invalid_sale_price")
	ErrNotFound         = errors.New("not_found")
	ErrBrokerNotFound   = errors.New("broker_not_found")
	ErrLeadNotFound     = errors.New("lead_not_found")
	ErrLeadNotSold      = errors.New("lead_not_sold")
	ErrLeadUnassigned   = errors.New("lead_unassigned")
	ErrMissingSaleData  = errors.New("missing_sale_data")
	ErrAlreadyInvoiced  = errors.New("already_invoiced")
	ErrReconcileRunning = errors.New("reconcile_running")
)
