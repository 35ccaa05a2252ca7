package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/lead/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	firstLeadNumber = 10000

	leadColumns = `id, lead_number, broker_id, status, postcode, city, property_type,
	living_area, plot_area, asking_price, year_built, features, description, phone,
	qualified_at, qualified_by, locked_by, locked_since, checklist, sale_price_text,
	participation_pct, created_at, updated_at`
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, lead *domain.Lead) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID,
		lead.LeadNumber,
		lead.BrokerID,
		lead.Status,
		lead.Postcode,
		lead.City,
		lead.PropertyType,
		lead.LivingArea,
		lead.PlotArea,
		lead.AskingPrice,
		lead.YearBuilt,
		lead.Features,
		lead.Description,
		lead.Phone,
		lead.QualifiedAt,
		lead.QualifiedBy,
		lead.LockedBy,
		lead.LockedSince,
		lead.Checklist,
		lead.SalePriceText,
		lead.ParticipationPct,
		lead.CreatedAt,
		lead.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).Raw(
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`,
		id,
	).Scan(&lead).Error
	if err != nil {
		return nil, err
	}
	if lead.ID == 0 {
		return nil, nil
	}
	return &lead, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Lead, error) {
	var leads []domain.Lead
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

func (r *repo) NextLeadNumber(ctx context.Context, db *gorm.DB) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(lead_number), ?) + 1 FROM leads`,
		firstLeadNumber-1,
	).Scan(&next).Error
	return next, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, lead *domain.Lead) error {
	return db.WithContext(ctx).Exec(
		`UPDATE leads
		 SET broker_id = ?, status = ?, postcode = ?, city = ?, property_type = ?,
		     living_area = ?, plot_area = ?, asking_price = ?, year_built = ?, features = ?,
		     description = ?, phone = ?, qualified_at = ?, qualified_by = ?, locked_by = ?,
		     locked_since = ?, checklist = ?, sale_price_text = ?, participation_pct = ?,
		     updated_at = ?
		 WHERE id = ?`,
		lead.BrokerID,
		lead.Status,
		lead.Postcode,
		lead.City,
		lead.PropertyType,
		lead.LivingArea,
		lead.PlotArea,
		lead.AskingPrice,
		lead.YearBuilt,
		lead.Features,
		lead.Description,
		lead.Phone,
		lead.QualifiedAt,
		lead.QualifiedBy,
		lead.LockedBy,
		lead.LockedSince,
		lead.Checklist,
		lead.SalePriceText,
		lead.ParticipationPct,
		lead.UpdatedAt,
		lead.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Lead, error) {
	var leads []*domain.Lead
	stmt := db.WithContext(ctx).Model(&domain.Lead{})

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.BrokerID != nil {
		stmt = stmt.Where("broker_id = ?", *filter.BrokerID)
	}
	if filter.Unassigned {
		stmt = stmt.Where("broker_id IS NULL")
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

func (r *repo) ListOpenUnassigned(ctx context.Context, db *gorm.DB) ([]domain.Lead, error) {
	var leads []domain.Lead
	err := db.WithContext(ctx).Raw(
		`SELECT `+leadColumns+`
		 FROM leads
		 WHERE broker_id IS NULL AND status = ?
		 ORDER BY created_at ASC, id ASC`,
		domain.StatusUnqualified,
	).Scan(&leads).Error
	if err != nil {
		return nil, err
	}
	return leads, nil
}

func (r *repo) CountQualifiedInRange(ctx context.Context, db *gorm.DB, brokerID snowflake.ID, from, to time.Time, exclude snowflake.ID) (int, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM leads
		 WHERE broker_id = ? AND status = ? AND qualified_at IS NOT NULL
		   AND qualified_at >= ? AND qualified_at < ? AND id <> ?`,
		brokerID,
		domain.StatusQualified,
		from.UTC(),
		to.UTC(),
		exclude,
	).Scan(&count).Error
	return int(count), err
}

func (r *repo) CountByBroker(ctx context.Context, db *gorm.DB, statuses []domain.Status, from, to time.Time) ([]domain.BrokerCount, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var counts []domain.BrokerCount
	err := db.WithContext(ctx).Raw(
		`SELECT broker_id, COUNT(1) AS count
		 FROM leads
		 WHERE broker_id IS NOT NULL AND status IN ? AND qualified_at IS NOT NULL
		   AND qualified_at >= ? AND qualified_at < ?
		 GROUP BY broker_id`,
		statuses,
		from.UTC(),
		to.UTC(),
	).Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
