package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/refund/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const requestColumns = `id, broker_id, transaction_id, amount, status, description, repayment_status,
	payout_transaction_id, provider_refund_reference, decided_by, decided_at, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO refund_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.BrokerID,
		req.TransactionID,
		req.Amount,
		req.Status,
		req.Description,
		req.RepaymentStatus,
		req.PayoutTransactionID,
		req.ProviderRefundReference,
		req.DecidedBy,
		req.DecidedAt,
		req.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Request, error) {
	var req domain.Request
	err := db.WithContext(ctx).Raw(
		`SELECT `+requestColumns+` FROM refund_requests WHERE id = ?`,
		id,
	).Scan(&req).Error
	if err != nil {
		return nil, err
	}
	if req.ID == 0 {
		return nil, nil
	}
	return &req, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Request, error) {
	var reqs []domain.Request
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return &reqs[0], nil
}

func (r *repo) FindOpenForTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*domain.Request, error) {
	var req domain.Request
	err := db.WithContext(ctx).Raw(
		`SELECT `+requestColumns+`
		 FROM refund_requests
		 WHERE transaction_id = ? AND status IN ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		transactionID,
		[]domain.Status{domain.StatusPending, domain.StatusApproved},
	).Scan(&req).Error
	if err != nil {
		return nil, err
	}
	if req.ID == 0 {
		return nil, nil
	}
	return &req, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Request, error) {
	var (
		where []string
		args  []any
	)
	if filter.BrokerID != nil {
		where = append(where, "broker_id = ?")
		args = append(args, *filter.BrokerID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + requestColumns + ` FROM refund_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var reqs []domain.Request
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	return db.WithContext(ctx).Exec(
		`UPDATE refund_requests
		 SET status = ?, description = ?, repayment_status = ?, payout_transaction_id = ?,
		     provider_refund_reference = ?, decided_by = ?, decided_at = ?
		 WHERE id = ?`,
		req.Status,
		req.Description,
		req.RepaymentStatus,
		req.PayoutTransactionID,
		req.ProviderRefundReference,
		req.DecidedBy,
		req.DecidedAt,
		req.ID,
	).Error
}
