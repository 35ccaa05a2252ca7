package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/credit/domain"
	"gorm.io/gorm"
)

const transactionColumns = `id, broker_id, amount, type, lead_id, reference_id, description,
	payment_reference, payment_status, created_by, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.BrokerID,
		tx.Amount,
		tx.Type,
		tx.LeadID,
		tx.ReferenceID,
		tx.Description,
		tx.PaymentReference,
		tx.PaymentStatus,
		tx.CreatedBy,
		tx.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM credit_transactions WHERE id = ?`,
		id,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

func (r *repo) ListByBroker(ctx context.Context, db *gorm.DB, brokerID snowflake.ID) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM credit_transactions
		 WHERE broker_id = ?
		 ORDER BY created_at ASC, id ASC`,
		brokerID,
	).Scan(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repo) SumByBroker(ctx context.Context, db *gorm.DB, brokerID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE broker_id = ?`,
		brokerID,
	).Scan(&total).Error
	return total, err
}

func (r *repo) FindLeadCharge(ctx context.Context, db *gorm.DB, brokerID, leadID snowflake.ID) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM credit_transactions
		 WHERE broker_id = ? AND lead_id = ? AND type = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		brokerID,
		leadID,
		domain.TypeLeadCharge,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

func (r *repo) SumForLead(ctx context.Context, db *gorm.DB, brokerID, leadID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM credit_transactions
		 WHERE broker_id = ? AND lead_id = ? AND type IN (?, ?)`,
		brokerID,
		leadID,
		domain.TypeLeadCharge,
		domain.TypeLeadRefund,
	).Scan(&total).Error
	return total, err
}

func (r *repo) FindPayoutFor(ctx context.Context, db *gorm.DB, brokerID, originalID snowflake.ID) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM credit_transactions
		 WHERE broker_id = ? AND type = ? AND reference_id = ?
		 LIMIT 1`,
		brokerID,
		domain.TypePayout,
		originalID,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

func (r *repo) OpenRefundTransactionIDs(ctx context.Context, db *gorm.DB, brokerID snowflake.ID) ([]snowflake.ID, error) {
	var rows []struct {
		TransactionID snowflake.ID `gorm:"column:transaction_id"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT transaction_id
		 FROM refund_requests
		 WHERE broker_id = ? AND status IN ('pending', 'approved')`,
		brokerID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.TransactionID)
	}
	return ids, nil
}
