package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	gatelinkdomain "github.com/leadgate/leadgate/internal/gatelink/domain"
	invoicedomain "github.com/leadgate/leadgate/internal/invoice/domain"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	refunddomain "github.com/leadgate/leadgate/internal/refund/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table the service owns, for dialects without SQL
// migrations.
func Models() []any {
	return []any{
		&brokerdomain.Broker{},
		&leaddomain.Lead{},
		&creditdomain.Transaction{},
		&refunddomain.Request{},
		&invoicedomain.Invoice{},
		&gatelinkdomain.User{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate creates the schema from the gorm models. Used for mysql and
// sqlite deployments.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
