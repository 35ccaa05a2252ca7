package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/contract"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	"github.com/leadgate/leadgate/internal/lead/domain"
	obsmetrics "github.com/leadgate/leadgate/internal/observability/metrics"
	"github.com/leadgate/leadgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errChargeBlocked rolls back a qualification whose charge was refused.
var errChargeBlocked = errors.New("charge blocked")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Policy     *config.PolicyHolder
	Repo       domain.Repository
	BrokerRepo brokerdomain.Repository
	CreditSvc  creditdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.PolicyHolder
	repo       domain.Repository
	brokerRepo brokerdomain.Repository
	creditSvc  creditdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("lead.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		brokerRepo: p.BrokerRepo,
		creditSvc:  p.CreditSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateLeadRequest) (domain.Lead, error) {
	now := s.clock.Now()
	createdAt := now
	if req.CreatedAt != nil && !req.CreatedAt.IsZero() {
		createdAt = req.CreatedAt.UTC()
	}

	lead := domain.Lead{
		ID:           s.genID.Generate(),
		BrokerID:     req.BrokerID,
		Status:       domain.StatusUnqualified,
		Postcode:     strings.TrimSpace(req.Postcode),
		City:         strings.TrimSpace(req.City),
		PropertyType: strings.TrimSpace(req.PropertyType),
		LivingArea:   req.LivingArea,
		PlotArea:     req.PlotArea,
		AskingPrice:  req.AskingPrice,
		YearBuilt:    req.YearBuilt,
		Features:     strings.TrimSpace(req.Features),
		Description:  strings.TrimSpace(req.Description),
		Phone:        strings.TrimSpace(req.Phone),
		Checklist:    datatypes.JSONMap{},
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lead.BrokerID != nil {
			if err := s.requireBroker(ctx, tx, *lead.BrokerID); err != nil {
				return err
			}
		}
		number, err := s.repo.NextLeadNumber(ctx, tx)
		if err != nil {
			return err
		}
		lead.LeadNumber = number
		if err := s.repo.Insert(ctx, tx, &lead); err != nil {
			return err
		}
		return s.audit(ctx, tx, "lead.create", lead, nil)
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Lead, error) {
	if id == 0 {
		return domain.Lead{}, domain.ErrInvalidID
	}
	lead, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if lead == nil {
		return domain.Lead{}, domain.ErrNotFound
	}
	return *lead, nil
}

func (s *Service) List(ctx context.Context, req domain.ListLeadRequest) (domain.ListLeadResponse, error) {
	status := domain.Status(strings.TrimSpace(req.Status))
	if status != "" && !status.Valid() {
		return domain.ListLeadResponse{}, domain.ErrInvalidStatus
	}

	cursor, err := pagination.Decode(req.PageToken)
	if err != nil {
		return domain.ListLeadResponse{}, err
	}
	pageSize := pagination.PageSize(int(req.PageSize), pagination.DefaultPageSize)

	rows, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Status:     status,
		BrokerID:   req.BrokerID,
		Unassigned: req.Unassigned,
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return domain.ListLeadResponse{}, err
	}

	items, pageInfo := pagination.Page(rows, pageSize, func(item *domain.Lead) pagination.Cursor {
		return pagination.Cursor{CreatedAt: item.CreatedAt, ID: item.ID}
	})

	leads := make([]domain.Lead, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		leads = append(leads, *item)
	}

	return domain.ListLeadResponse{PageInfo: pageInfo, Leads: leads}, nil
}

func (s *Service) Assign(ctx context.Context, leadID, brokerID snowflake.ID) (domain.Lead, error) {
	if brokerID == 0 {
		return domain.Lead{}, domain.ErrInvalidID
	}
	return s.mutate(ctx, leadID, "lead.assign", func(tx *gorm.DB, lead *domain.Lead) (map[string]any, error) {
		if lead.Status == domain.StatusQualified && lead.BrokerID != nil && *lead.BrokerID != brokerID {
			return nil, domain.ErrLeadAlreadyBilled
		}
		if err := s.requireBroker(ctx, tx, brokerID); err != nil {
			return nil, err
		}
		id := brokerID
		lead.BrokerID = &id
		return map[string]any{"broker_id": id.String()}, nil
	})
}

func (s *Service) Unassign(ctx context.Context, leadID snowflake.ID) (domain.Lead, error) {
	return s.mutate(ctx, leadID, "lead.unassign", func(_ *gorm.DB, lead *domain.Lead) (map[string]any, error) {
		if lead.Status == domain.StatusQualified {
			return nil, domain.ErrLeadAlreadyBilled
		}
		var previous string
		if lead.BrokerID != nil {
			previous = lead.BrokerID.String()
		}
		lead.BrokerID = nil
		return map[string]any{"previous_broker_id": previous}, nil
	})
}

func (s *Service) StartEdit(ctx context.Context, leadID, userID snowflake.ID) (domain.Lead, error) {
	if leadID == 0 || userID == 0 {
		return domain.Lead{}, domain.ErrInvalidID
	}

	var (
		out      domain.Lead
		conflict *domain.Lead
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lead, err := s.repo.FindByIDForUpdate(ctx, tx, leadID)
		if err != nil {
			return err
		}
		if lead == nil {
			return domain.ErrNotFound
		}
		if lead.Status != domain.StatusUnqualified && lead.Status != domain.StatusNew {
			out = *lead
			return nil
		}

		now := s.clock.Now()
		if domain.IsLocked(*lead, userID, now, s.policy.Get().LockTimeout()) {
			conflict = lead
			return domain.ErrLeadLocked
		}

		user := userID
		lead.LockedBy = &user
		lead.LockedSince = &now
		lead.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, lead); err != nil {
			return err
		}
		out = *lead
		return nil
	})
	if errors.Is(err, domain.ErrLeadLocked) && conflict != nil {
		s.recordLockConflict(ctx, *conflict, userID)
	}
	if err != nil {
		return domain.Lead{}, err
	}
	return out, nil
}

func (s *Service) Transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error) {
	if req.LeadID == 0 {
		return domain.TransitionResult{}, domain.ErrInvalidID
	}
	if !req.Status.Valid() {
		return domain.TransitionResult{}, domain.ErrInvalidStatus
	}

	var (
		result   domain.TransitionResult
		original domain.Lead
		conflict bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lead, err := s.repo.FindByIDForUpdate(ctx, tx, req.LeadID)
		if err != nil {
			return err
		}
		if lead == nil {
			return domain.ErrNotFound
		}
		original = *lead
		if lead.Status == req.Status {
			return domain.ErrStatusUnchanged
		}

		now := s.clock.Now()
		if domain.IsLocked(*lead, req.UserID, now, s.policy.Get().LockTimeout()) {
			conflict = true
			return domain.ErrLeadLocked
		}

		previous := lead.Status
		switch req.Status {
		case domain.StatusQualified, domain.StatusFlexRecall:
			charge, err := s.qualify(ctx, tx, lead, req, now)
			if err != nil {
				return err
			}
			result.Charge = charge
		case domain.StatusNotQualifiable:
			lead.BrokerID = nil
			lead.QualifiedAt = nil
			lead.QualifiedBy = nil
		case domain.StatusComplained:
			if lead.BrokerID != nil {
				refund, err := s.creditSvc.RefundLead(ctx, tx, *lead.BrokerID, lead.ID, "")
				if err != nil {
					return err
				}
				result.Refund = refund
			}
			lead.QualifiedAt = nil
			lead.QualifiedBy = nil
		}

		lead.Status = req.Status
		if releasesLock(previous, req.Status) {
			lead.LockedBy = nil
			lead.LockedSince = nil
		}
		lead.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, lead); err != nil {
			return err
		}
		result.Lead = *lead
		result.Applied = true

		return s.audit(ctx, tx, "lead.transition", *lead, map[string]any{
			"from":           string(previous),
			"to":             string(req.Status),
			"without_charge": req.WithoutCharge,
		})
	})

	switch {
	case errors.Is(err, errChargeBlocked):
		return domain.TransitionResult{Lead: original, Applied: false, Charge: result.Charge}, nil
	case errors.Is(err, domain.ErrLeadLocked) && conflict:
		s.recordLockConflict(ctx, original, req.UserID)
		return domain.TransitionResult{}, err
	case err != nil:
		return domain.TransitionResult{}, err
	}

	s.log.Info("lead status changed",
		zap.String("lead_id", result.Lead.ID.String()),
		zap.String("from", string(original.Status)),
		zap.String("to", string(result.Lead.Status)),
	)
	return result, nil
}

// releasesLock reports whether a transition ends the edit session. Leaving
// an editable status does, and so does any qualification outcome.
func releasesLock(from, to domain.Status) bool {
	switch to {
	case domain.StatusQualified, domain.StatusFlexRecall, domain.StatusNotQualifiable:
		return true
	}
	return from == domain.StatusUnqualified || from == domain.StatusNew
}

// qualify stamps the qualification and books the charge. A refused charge
// surfaces as errChargeBlocked after the outcome has been stored.
func (s *Service) qualify(ctx context.Context, tx *gorm.DB, lead *domain.Lead, req domain.TransitionRequest, now time.Time) (*creditdomain.ChargeOutcome, error) {
	if lead.BrokerID == nil {
		return nil, domain.ErrBrokerRequired
	}
	broker, err := s.brokerRepo.FindByID(ctx, tx, *lead.BrokerID)
	if err != nil {
		return nil, err
	}
	if broker == nil {
		return nil, domain.ErrBrokerNotFound
	}
	if !contract.CanReceiveNewLeads(broker.Terms(), int(now.Month()), now.Year(), now) {
		return nil, domain.ErrBrokerUnavailable
	}

	qualifiedAt := now
	lead.QualifiedAt = &qualifiedAt
	if req.UserID != 0 {
		user := req.UserID
		lead.QualifiedBy = &user
	}

	if req.WithoutCharge || !broker.UsesCredits() {
		return nil, nil
	}

	createdBy := ""
	if req.UserID != 0 {
		createdBy = req.UserID.String()
	}
	outcome, err := s.creditSvc.ChargeLead(ctx, tx, creditdomain.ChargeLeadRequest{
		BrokerID:    broker.ID,
		LeadID:      lead.ID,
		LeadNumber:  lead.LeadNumber,
		QualifiedAt: qualifiedAt,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return nil, err
	}
	if outcome.Blocked() {
		return &outcome, errChargeBlocked
	}
	return &outcome, nil
}

func (s *Service) UpdateChecklist(ctx context.Context, req domain.UpdateChecklistRequest) (domain.Lead, error) {
	if req.ParticipationPct != nil && (*req.ParticipationPct < 0 || *req.ParticipationPct > 100) {
		return domain.Lead{}, domain.ErrInvalidPercent
	}
	return s.mutate(ctx, req.LeadID, "lead.checklist", func(_ *gorm.DB, lead *domain.Lead) (map[string]any, error) {
		if lead.Checklist == nil {
			lead.Checklist = datatypes.JSONMap{}
		}
		for key, value := range req.Checklist {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			lead.Checklist[key] = value
		}
		if req.SalePriceText != nil {
			lead.SalePriceText = strings.TrimSpace(*req.SalePriceText)
		}
		if req.ParticipationPct != nil {
			pct := *req.ParticipationPct
			lead.ParticipationPct = &pct
		}
		return map[string]any{"sold": lead.Sold()}, nil
	})
}

func (s *Service) mutate(ctx context.Context, id snowflake.ID, action string, apply func(tx *gorm.DB, lead *domain.Lead) (map[string]any, error)) (domain.Lead, error) {
	if id == 0 {
		return domain.Lead{}, domain.ErrInvalidID
	}

	var out domain.Lead
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lead, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if lead == nil {
			return domain.ErrNotFound
		}
		metadata, err := apply(tx, lead)
		if err != nil {
			return err
		}
		lead.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, lead); err != nil {
			return err
		}
		out = *lead
		return s.audit(ctx, tx, action, *lead, metadata)
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return out, nil
}

func (s *Service) requireBroker(ctx context.Context, tx *gorm.DB, brokerID snowflake.ID) error {
	broker, err := s.brokerRepo.FindByID(ctx, tx, brokerID)
	if err != nil {
		return err
	}
	if broker == nil {
		return domain.ErrBrokerNotFound
	}
	return nil
}

// recordLockConflict runs after the rollback so the entry survives it.
func (s *Service) recordLockConflict(ctx context.Context, lead domain.Lead, userID snowflake.ID) {
	s.obsMetrics.RecordLockConflict(ctx)
	metadata := map[string]any{"requested_by": userID.String()}
	if lead.LockedBy != nil {
		metadata["locked_by"] = lead.LockedBy.String()
	}
	if lead.LockedSince != nil {
		metadata["locked_since"] = lead.LockedSince.UTC().Format(time.RFC3339)
	}
	if err := s.audit(ctx, nil, "lead.lock_conflict", lead, metadata); err != nil {
		s.log.Warn("failed to audit lock conflict", zap.String("lead_id", lead.ID.String()), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, lead domain.Lead, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	payload := map[string]any{"lead_number": lead.LeadNumber}
	for key, value := range metadata {
		payload[key] = value
	}
	targetID := lead.ID.String()
	return s.auditSvc.AuditLog(ctx, tx, "", nil, action, "lead", &targetID, payload)
}
