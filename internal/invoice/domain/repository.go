package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindMonthly(ctx context.Context, db *gorm.DB, brokerID snowflake.ID, month, year int) (*Invoice, error)
	FindParticipation(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (*Invoice, error)
	NextSequence(ctx context.Context, db *gorm.DB) (int64, error)
	UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, updatedAt time.Time) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)
	// InvoicedLeadIDs lists the leads that already carry a participation invoice.
	InvoicedLeadIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
}
