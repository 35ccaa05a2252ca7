package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/pricing"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type RepaymentStatus string

const (
	RepaymentToBeRepaid        RepaymentStatus = "to_be_repaid"
	RepaymentRepaid            RepaymentStatus = "repaid"
	RepaymentProviderPending   RepaymentStatus = "provider_pending"
	RepaymentProviderCompleted RepaymentStatus = "provider_completed"
)

// Request asks for part of an aged top-up to be paid back. Amounts are cents.
type Request struct {
	ID              snowflake.ID     `gorm:"primaryKey" json:"id"`
	BrokerID        snowflake.ID     `gorm:"not null;index" json:"broker_id"`
	TransactionID   snowflake.ID     `gorm:"not null;index" json:"transaction_id"`
	Amount          int64            `gorm:"not null" json:"amount"`
	Status          Status           `gorm:"type:text;not null;index" json:"status"`
	Description     string           `json:"description"`
	RepaymentStatus *RepaymentStatus `gorm:"type:text" json:"repayment_status,omitempty"`
	// PayoutTransactionID is set once the payout row has been booked.
	PayoutTransactionID     *snowflake.ID `json:"payout_transaction_id,omitempty"`
	ProviderRefundReference *string       `json:"provider_refund_reference,omitempty"`
	DecidedBy               *snowflake.ID `json:"decided_by,omitempty"`
	DecidedAt               *time.Time    `json:"decided_at,omitempty"`
	CreatedAt               time.Time     `gorm:"not null" json:"created_at"`
}

func (Request) TableName() string { return "refund_requests" }

func (r Request) Open() bool {
	return r.Status == StatusPending || r.Status == StatusApproved
}

func (r Request) Executed() bool {
	return r.PayoutTransactionID != nil
}

// ProviderOutcome is the result of refunding the original card payment, as
// reported by the payment glue layer.
type ProviderOutcome struct {
	Reference string
	Succeeded bool
}

// ProviderRefundAmount is what reaches the broker when the provider keeps its
// fee of feePercent of amount plus feeFixed cents. It never goes below zero.
func ProviderRefundAmount(amount int64, feePercent float64, feeFixed int64) int64 {
	fee := pricing.ApplyPercent(amount, feePercent) + feeFixed
	if fee >= amount {
		return 0
	}
	return amount - fee
}
