package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TransactionType string

const (
	TypeTopUp            TransactionType = "top_up"
	TypeOnlinePayment    TransactionType = "online_payment"
	TypeManualAdjustment TransactionType = "manual_adjustment"
	TypeLeadCharge       TransactionType = "lead_charge"
	TypeLeadRefund       TransactionType = "lead_refund"
	TypePayout           TransactionType = "payout"
)

// FundsBalance reports whether a positive row of this type counts as money
// paid in, and can therefore be refunded.
func (t TransactionType) FundsBalance() bool {
	switch t {
	case TypeTopUp, TypeOnlinePayment, TypeManualAdjustment:
		return true
	default:
		return false
	}
}

// Transaction is one append-only ledger row. Amounts are signed cents:
// positive adds to the balance, negative consumes it.
type Transaction struct {
	ID       snowflake.ID    `gorm:"primaryKey" json:"id"`
	BrokerID snowflake.ID    `gorm:"not null;index" json:"broker_id"`
	Amount   int64           `gorm:"not null" json:"amount"`
	Type     TransactionType `gorm:"type:text;not null" json:"type"`
	LeadID   *snowflake.ID   `gorm:"index" json:"lead_id,omitempty"`
	// ReferenceID points a payout at the top-up it repays.
	ReferenceID      *snowflake.ID `gorm:"index" json:"reference_id,omitempty"`
	Description      string        `json:"description"`
	PaymentReference *string       `json:"payment_reference,omitempty"`
	PaymentStatus    *string       `json:"payment_status,omitempty"`
	CreatedBy        *string       `json:"created_by,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;index" json:"created_at"`
}

func (Transaction) TableName() string { return "credit_transactions" }

// EligibleTopUp is the unconsumed remainder of an aged top-up.
type EligibleTopUp struct {
	TransactionID  snowflake.ID    `json:"transaction_id"`
	Amount         int64           `json:"amount"`
	OriginalAmount int64           `json:"original_amount"`
	Type           TransactionType `json:"type"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
	AgeDays        int             `json:"age_days"`
}

type ChargeStatus string

const (
	ChargeCharged      ChargeStatus = "charged"
	ChargeInsufficient ChargeStatus = "insufficient_balance"
	// ChargeSkipped covers legacy brokers, manual overrides and leads that
	// already carry an open charge.
	ChargeSkipped ChargeStatus = "skipped"
)

// ChargeOutcome is returned instead of an error so callers can offer a manual
// override when the balance is short.
type ChargeOutcome struct {
	Status      ChargeStatus `json:"status"`
	Price       int64        `json:"price"`
	Balance     int64        `json:"balance"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

func (o ChargeOutcome) Blocked() bool {
	return o.Status == ChargeInsufficient
}
