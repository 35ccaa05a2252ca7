package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	BrokerID      snowflake.ID
	TransactionID snowflake.ID
	Amount        int64
	Description   string
}

type DecideRequest struct {
	ID        snowflake.ID
	DecidedBy snowflake.ID
	Note      string
}

type ExecuteRequest struct {
	ID         snowflake.ID
	ExecutedBy snowflake.ID
	// Provider is nil when no automatic provider refund was attempted or it
	// failed. It is ignored for top-ups without a payment reference.
	Provider *ProviderOutcome
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Request, error)
	Get(ctx context.Context, id snowflake.ID) (Request, error)
	List(ctx context.Context, filter ListFilter) ([]Request, error)
	Approve(ctx context.Context, req DecideRequest) (Request, error)
	Reject(ctx context.Context, req DecideRequest) (Request, error)
	Execute(ctx context.Context, req ExecuteRequest) (Request, error)
	MarkRepaid(ctx context.Context, id, userID snowflake.ID) (Request, error)
	// ProviderRefundAmount applies the configured provider fee to amount.
	ProviderRefundAmount(amount int64) int64
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrNotFound         = errors.New("not_found")
	ErrNotEligible      = errors.New("transaction_not_eligible")
	ErrExceedsEligible  = errors.New("amount_exceeds_eligible")
	ErrDuplicateRequest = errors.New("duplicate_open_request")
	ErrNotPending       = errors.New("request_not_pending")
	ErrNotApproved      = errors.New("request_not_approved")
	ErrAlreadyExecuted  = errors.New("request_already_executed")
	ErrNotToBeRepaid    = errors.New("request_not_to_be_repaid")
	ErrInvalidStatus    = errors.New("invalid_status")
)
