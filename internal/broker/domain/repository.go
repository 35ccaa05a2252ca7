package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, broker *Broker) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Broker, error)
	// FindByIDForUpdate takes a row lock on databases that support one.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Broker, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Broker, error)
	BillingCodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error)
	List(ctx context.Context, db *gorm.DB) ([]*Broker, error)
	Update(ctx context.Context, db *gorm.DB, broker *Broker) error
	UpdatePasswordHash(ctx context.Context, db *gorm.DB, id snowflake.ID, hash string) error

	DeleteRefundRequests(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteCreditTransactions(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteInvoices(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	UnassignLeads(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
