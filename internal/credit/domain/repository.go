package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository has no update or delete path: the ledger is append-only.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	ListByBroker(ctx context.Context, db *gorm.DB, brokerID snowflake.ID) ([]Transaction, error)
	SumByBroker(ctx context.Context, db *gorm.DB, brokerID snowflake.ID) (int64, error)
	FindLeadCharge(ctx context.Context, db *gorm.DB, brokerID, leadID snowflake.ID) (*Transaction, error)
	// SumForLead nets the charges and refunds booked against one lead.
	SumForLead(ctx context.Context, db *gorm.DB, brokerID, leadID snowflake.ID) (int64, error)
	FindPayoutFor(ctx context.Context, db *gorm.DB, brokerID, originalID snowflake.ID) (*Transaction, error)
	// OpenRefundTransactionIDs lists top-ups that have a pending or approved
	// refund request.
	OpenRefundTransactionIDs(ctx context.Context, db *gorm.DB, brokerID snowflake.ID) ([]snowflake.ID, error)
}
