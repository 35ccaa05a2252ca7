package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, lead *Lead) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Lead, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Lead, error)
	NextLeadNumber(ctx context.Context, db *gorm.DB) (int64, error)
	Update(ctx context.Context, db *gorm.DB, lead *Lead) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Lead, error)
	// ListOpenUnassigned returns unqualified leads without a broker, oldest first.
	ListOpenUnassigned(ctx context.Context, db *gorm.DB) ([]Lead, error)
	// CountQualifiedInRange counts leads in status qualified whose
	// qualified_at falls in [from, to). exclude is skipped when non-zero.
	CountQualifiedInRange(ctx context.Context, db *gorm.DB, brokerID snowflake.ID, from, to time.Time, exclude snowflake.ID) (int, error)
	CountByBroker(ctx context.Context, db *gorm.DB, statuses []Status, from, to time.Time) ([]BrokerCount, error)
}
