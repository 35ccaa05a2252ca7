package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/broker/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const brokerColumns = `id, company_name, contact_name, email, address, billing_code, territory,
	contract_start, contract_end, paused, monthly_quota, billing_mode,
	trial_leads, trial_rate, first_leads_count, first_leads_rate, after_first_rate, standard_rate,
	gatelink_password_hash, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, broker *domain.Broker) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO brokers (`+brokerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		broker.ID,
		broker.CompanyName,
		broker.ContactName,
		broker.Email,
		broker.Address,
		broker.BillingCode,
		broker.Territory,
		broker.ContractStart,
		broker.ContractEnd,
		broker.Paused,
		broker.MonthlyQuota,
		broker.BillingMode,
		broker.TrialLeads,
		broker.TrialRate,
		broker.FirstLeadsCount,
		broker.FirstLeadsRate,
		broker.AfterFirstRate,
		broker.StandardRate,
		broker.GatelinkPasswordHash,
		broker.CreatedAt,
		broker.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Broker, error) {
	var broker domain.Broker
	err := db.WithContext(ctx).Raw(
		`SELECT `+brokerColumns+` FROM brokers WHERE id = ?`,
		id,
	).Scan(&broker).Error
	if err != nil {
		return nil, err
	}
	if broker.ID == 0 {
		return nil, nil
	}
	return &broker, nil
}

// FindByEmail matches case-insensitively and returns the oldest broker when
// several share an address.
func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Broker, error) {
	var broker domain.Broker
	err := db.WithContext(ctx).Raw(
		`SELECT `+brokerColumns+`
		 FROM brokers
		 WHERE LOWER(email) = LOWER(?)
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		email,
	).Scan(&broker).Error
	if err != nil {
		return nil, err
	}
	if broker.ID == 0 {
		return nil, nil
	}
	return &broker, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Broker, error) {
	var brokers []domain.Broker
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&brokers).Error
	if err != nil {
		return nil, err
	}
	if len(brokers) == 0 {
		return nil, nil
	}
	return &brokers[0], nil
}

func (r *repo) BillingCodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM brokers WHERE billing_code = ?`,
		code,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Broker, error) {
	var brokers []*domain.Broker
	err := db.WithContext(ctx).Raw(
		`SELECT ` + brokerColumns + ` FROM brokers ORDER BY company_name ASC, id ASC`,
	).Scan(&brokers).Error
	if err != nil {
		return nil, err
	}
	return brokers, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, broker *domain.Broker) error {
	return db.WithContext(ctx).Exec(
		`UPDATE brokers
		 SET company_name = ?, contact_name = ?, email = ?, address = ?, territory = ?,
		     contract_start = ?, contract_end = ?, paused = ?, monthly_quota = ?, billing_mode = ?,
		     trial_leads = ?, trial_rate = ?, first_leads_count = ?, first_leads_rate = ?,
		     after_first_rate = ?, standard_rate = ?, updated_at = ?
		 WHERE id = ?`,
		broker.CompanyName,
		broker.ContactName,
		broker.Email,
		broker.Address,
		broker.Territory,
		broker.ContractStart,
		broker.ContractEnd,
		broker.Paused,
		broker.MonthlyQuota,
		broker.BillingMode,
		broker.TrialLeads,
		broker.TrialRate,
		broker.FirstLeadsCount,
		broker.FirstLeadsRate,
		broker.AfterFirstRate,
		broker.StandardRate,
		broker.UpdatedAt,
		broker.ID,
	).Error
}

func (r *repo) UpdatePasswordHash(ctx context.Context, db *gorm.DB, id snowflake.ID, hash string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE brokers SET gatelink_password_hash = ? WHERE id = ?`,
		hash,
		id,
	).Error
}

func (r *repo) DeleteRefundRequests(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM refund_requests WHERE broker_id = ?`, id).Error
}

func (r *repo) DeleteCreditTransactions(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM credit_transactions WHERE broker_id = ?`, id).Error
}

func (r *repo) DeleteInvoices(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM invoices WHERE broker_id = ?`, id).Error
}

func (r *repo) UnassignLeads(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`UPDATE leads SET broker_id = NULL WHERE broker_id = ?`, id).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM brokers WHERE id = ?`, id).Error
}
