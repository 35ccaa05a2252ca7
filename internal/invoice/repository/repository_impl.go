package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const invoiceColumns = `id, number, sequence, broker_id, type, month, year, lead_count, price_per_lead,
	lead_id, sale_price, participation_pct, net_amount, gross_amount, status, created_by,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.Number,
		invoice.Sequence,
		invoice.BrokerID,
		invoice.Type,
		invoice.Month,
		invoice.Year,
		invoice.LeadCount,
		invoice.PricePerLead,
		invoice.LeadID,
		invoice.SalePrice,
		invoice.ParticipationPct,
		invoice.NetAmount,
		invoice.GrossAmount,
		invoice.Status,
		invoice.CreatedBy,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindMonthly(ctx context.Context, db *gorm.DB, brokerID snowflake.ID, month, year int) (*domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("broker_id = ? AND type = ? AND month = ? AND year = ?", brokerID, domain.TypeMonthly, month, year).
		Limit(1).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

func (r *repo) FindParticipation(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE type = ? AND lead_id = ?
		 LIMIT 1`,
		domain.TypeParticipation,
		leadID,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(`SELECT COALESCE(MAX(sequence), 0) + 1 FROM invoices`).Scan(&next).Error
	return next, err
}

func (r *repo) UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET lead_count = ?, price_per_lead = ?, net_amount = ?, gross_amount = ?, updated_at = ?
		 WHERE id = ?`,
		invoice.LeadCount,
		invoice.PricePerLead,
		invoice.NetAmount,
		invoice.GrossAmount,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if filter.BrokerID != nil {
		where = append(where, "broker_id = ?")
		args = append(args, *filter.BrokerID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Month > 0 {
		where = append(where, "month = ?")
		args = append(args, filter.Month)
	}
	if filter.Year > 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var invoices []domain.Invoice
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) InvoicedLeadIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var rows []struct {
		LeadID snowflake.ID `gorm:"column:lead_id"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT lead_id FROM invoices WHERE type = ? AND lead_id IS NOT NULL`,
		domain.TypeParticipation,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.LeadID)
	}
	return ids, nil
}
