package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *Request) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Request, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Request, error)
	// FindOpenForTransaction returns the pending or approved request on a top-up.
	FindOpenForTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*Request, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Request, error)
	Update(ctx context.Context, db *gorm.DB, req *Request) error
}

type ListFilter struct {
	BrokerID *snowflake.ID
	Status   Status
}
