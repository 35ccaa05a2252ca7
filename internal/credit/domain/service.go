package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TopUpRequest struct {
	BrokerID snowflake.ID
	Amount   int64
	// Type is TypeTopUp or TypeOnlinePayment; empty means TypeTopUp.
	Type             TransactionType
	PaymentReference string
	PaymentStatus    string
	Description      string
	CreatedBy        string
}

type AdjustRequest struct {
	BrokerID    snowflake.ID
	Amount      int64
	Description string
	CreatedBy   string
}

type ChargeLeadRequest struct {
	BrokerID    snowflake.ID
	LeadID      snowflake.ID
	LeadNumber  int64
	QualifiedAt time.Time
	CreatedBy   string
}

type PayoutRequest struct {
	BrokerID      snowflake.ID
	TransactionID snowflake.ID
	Amount        int64
	Description   string
	CreatedBy     string
}

// Service is the credit ledger of credits-mode brokers.
//
// ChargeLead, RefundLead and CreatePayout join the caller's transaction when
// db is not nil, so a lead status change and its ledger row commit together.
type Service interface {
	Balance(ctx context.Context, brokerID snowflake.ID) (int64, error)
	ListTransactions(ctx context.Context, brokerID snowflake.ID) ([]Transaction, error)
	TopUp(ctx context.Context, req TopUpRequest) (Transaction, error)
	Adjust(ctx context.Context, req AdjustRequest) (Transaction, error)
	ChargeLead(ctx context.Context, db *gorm.DB, req ChargeLeadRequest) (ChargeOutcome, error)
	// RefundLead reverses the open charge of a lead. It returns nil when the
	// broker is not in credits mode or the lead carries no open charge.
	RefundLead(ctx context.Context, db *gorm.DB, brokerID, leadID snowflake.ID, description string) (*Transaction, error)
	Eligible(ctx context.Context, brokerID snowflake.ID) ([]EligibleTopUp, error)
	CreatePayout(ctx context.Context, db *gorm.DB, req PayoutRequest) (Transaction, error)
}

var (
	ErrInvalidBroker       = errors.New("invalid_broker")
	ErrBrokerNotFound      = errors.New("broker_not_found")
	ErrNotCreditsMode      = errors.New("not_credits_mode")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidType         = errors.New("invalid_transaction_type")
	ErrInvalidLead         = errors.New("invalid_lead")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrAlreadyPaidOut      = errors.New("already_paid_out")
	ErrInsufficientBalance = errors.New("insufficient_balance")
)
