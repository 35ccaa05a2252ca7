package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	"github.com/leadgate/leadgate/internal/broker/domain"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxBillingCodeAttempts = 50

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   *config.PolicyHolder
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.PolicyHolder
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("broker.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateBrokerRequest) (domain.Broker, error) {
	company := strings.TrimSpace(req.CompanyName)
	if company == "" {
		return domain.Broker{}, domain.ErrInvalidCompanyName
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Broker{}, domain.ErrInvalidEmail
	}
	if req.ContractStart.IsZero() {
		return domain.Broker{}, domain.ErrInvalidContract
	}
	if req.MonthlyQuota != nil && *req.MonthlyQuota < 0 {
		return domain.Broker{}, domain.ErrInvalidQuota
	}

	now := s.clock.Now()
	broker := domain.Broker{
		ID:            s.genID.Generate(),
		CompanyName:   company,
		ContactName:   strings.TrimSpace(req.ContactName),
		Email:         email,
		Address:       strings.TrimSpace(req.Address),
		Territory:     normalizeTerritory(req.Territory),
		ContractStart: req.ContractStart.UTC(),
		MonthlyQuota:  req.MonthlyQuota,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.applyPricing(&broker, domain.UpdatePricingRequest{
		BillingMode:     req.BillingMode,
		TrialLeads:      req.TrialLeads,
		TrialRate:       req.TrialRate,
		FirstLeadsCount: req.FirstLeadsCount,
		FirstLeadsRate:  req.FirstLeadsRate,
		AfterFirstRate:  req.AfterFirstRate,
		StandardRate:    req.StandardRate,
	}); err != nil {
		return domain.Broker{}, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.resolveBillingCode(ctx, tx, req.BillingCode, company)
		if err != nil {
			return err
		}
		broker.BillingCode = code

		if err := s.repo.Insert(ctx, tx, &broker); err != nil {
			return err
		}
		return s.audit(ctx, tx, "broker.create", broker.ID, map[string]any{
			"billing_code": broker.BillingCode,
			"billing_mode": string(broker.BillingMode),
		})
	})
	if err != nil {
		return domain.Broker{}, err
	}

	s.log.Info("broker created",
		zap.String("broker_id", broker.ID.String()),
		zap.String("billing_mode", string(broker.BillingMode)),
	)
	return broker, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Broker, error) {
	if id == 0 {
		return domain.Broker{}, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Broker{}, err
	}
	if item == nil {
		return domain.Broker{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Broker, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	brokers := make([]domain.Broker, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		brokers = append(brokers, *item)
	}
	return brokers, nil
}

func (s *Service) UpdatePricing(ctx context.Context, req domain.UpdatePricingRequest) (domain.Broker, error) {
	return s.mutate(ctx, req.ID, "broker.update_pricing", func(b *domain.Broker) (map[string]any, error) {
		if err := s.applyPricing(b, req); err != nil {
			return nil, err
		}
		return map[string]any{
			"billing_mode":  string(b.BillingMode),
			"standard_rate": b.StandardRate,
		}, nil
	})
}

func (s *Service) UpdateAssignment(ctx context.Context, req domain.UpdateAssignmentRequest) (domain.Broker, error) {
	if req.MonthlyQuota != nil && *req.MonthlyQuota < 0 {
		return domain.Broker{}, domain.ErrInvalidQuota
	}
	return s.mutate(ctx, req.ID, "broker.update_assignment", func(b *domain.Broker) (map[string]any, error) {
		b.Territory = normalizeTerritory(req.Territory)
		b.MonthlyQuota = req.MonthlyQuota
		return map[string]any{"territory": b.Territory}, nil
	})
}

func (s *Service) Pause(ctx context.Context, id snowflake.ID) (domain.Broker, error) {
	return s.mutate(ctx, id, "broker.pause", func(b *domain.Broker) (map[string]any, error) {
		b.Paused = true
		return nil, nil
	})
}

func (s *Service) Resume(ctx context.Context, id snowflake.ID) (domain.Broker, error) {
	return s.mutate(ctx, id, "broker.resume", func(b *domain.Broker) (map[string]any, error) {
		b.Paused = false
		return nil, nil
	})
}

func (s *Service) Terminate(ctx context.Context, id snowflake.ID, end time.Time) (domain.Broker, error) {
	if end.IsZero() {
		return domain.Broker{}, domain.ErrInvalidContract
	}
	return s.mutate(ctx, id, "broker.terminate", func(b *domain.Broker) (map[string]any, error) {
		end = end.UTC()
		if end.Before(b.ContractStart) {
			return nil, domain.ErrInvalidContract
		}
		b.ContractEnd = &end
		return map[string]any{"contract_end": end.Format(time.DateOnly)}, nil
	})
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		broker, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if broker == nil {
			return domain.ErrNotFound
		}

		steps := []struct {
			name string
			run  func(context.Context, *gorm.DB, snowflake.ID) error
		}{
			{"refund_requests", s.repo.DeleteRefundRequests},
			{"credit_transactions", s.repo.DeleteCreditTransactions},
			{"invoices", s.repo.DeleteInvoices},
			{"lead_assignments", s.repo.UnassignLeads},
			{"broker", s.repo.Delete},
		}
		for _, step := range steps {
			if err := step.run(ctx, tx, id); err != nil {
				return fmt.Errorf("delete broker %s: %w", step.name, err)
			}
		}

		return s.audit(ctx, tx, "broker.delete", id, map[string]any{
			"billing_code": broker.BillingCode,
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("broker deleted", zap.String("broker_id", id.String()))
	return nil
}

func (s *Service) mutate(ctx context.Context, id snowflake.ID, action string, apply func(*domain.Broker) (map[string]any, error)) (domain.Broker, error) {
	if id == 0 {
		return domain.Broker{}, domain.ErrInvalidID
	}

	var updated domain.Broker
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		broker, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if broker == nil {
			return domain.ErrNotFound
		}

		metadata, err := apply(broker)
		if err != nil {
			return err
		}
		broker.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, broker); err != nil {
			return err
		}
		updated = *broker
		return s.audit(ctx, tx, action, id, metadata)
	})
	if err != nil {
		return domain.Broker{}, err
	}
	return updated, nil
}

// applyPricing validates the fields of the selected mode. Credits rates left
// unset take the policy defaults.
func (s *Service) applyPricing(b *domain.Broker, req domain.UpdatePricingRequest) error {
	mode := req.BillingMode
	if mode == "" {
		mode = pricing.ModeLegacy
	}

	switch mode {
	case pricing.ModeLegacy:
		if req.StandardRate <= 0 || req.TrialLeads < 0 {
			return domain.ErrInvalidRate
		}
		if req.TrialRate != nil && *req.TrialRate < 0 {
			return domain.ErrInvalidRate
		}
		b.TrialLeads = req.TrialLeads
		b.TrialRate = req.TrialRate
		b.StandardRate = req.StandardRate
	case pricing.ModeCredits:
		defaults := s.policy.Get().Credits
		standard := req.StandardRate
		if standard == 0 {
			standard = defaults.StandardRate
		}
		if standard < 0 {
			return domain.ErrInvalidRate
		}
		if req.FirstLeadsCount != nil && *req.FirstLeadsCount < 0 {
			return domain.ErrInvalidQuota
		}
		b.StandardRate = standard
		b.FirstLeadsCount = req.FirstLeadsCount
		b.FirstLeadsRate = rateOrDefault(req.FirstLeadsRate, defaults.FirstLeadsRate)
		b.AfterFirstRate = rateOrDefault(req.AfterFirstRate, defaults.AfterFirstRate)
		if *b.FirstLeadsRate < 0 || *b.AfterFirstRate < 0 {
			return domain.ErrInvalidRate
		}
	default:
		return domain.ErrInvalidBillingMode
	}

	b.BillingMode = mode
	return nil
}

func (s *Service) resolveBillingCode(ctx context.Context, tx *gorm.DB, requested, company string) (string, error) {
	if code := slug.Make(requested); code != "" {
		exists, err := s.repo.BillingCodeExists(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if exists {
			return "", domain.ErrBillingCodeTaken
		}
		return code, nil
	}

	base := slug.Make(company)
	if base == "" {
		base = "broker"
	}
	candidate := base
	for i := 2; i <= maxBillingCodeAttempts; i++ {
		exists, err := s.repo.BillingCodeExists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", domain.ErrBillingCodeTaken
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, brokerID snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	targetID := brokerID.String()
	return s.auditSvc.AuditLog(ctx, tx, "", nil, action, "broker", &targetID, metadata)
}

func normalizeTerritory(raw string) string {
	return strings.Join(domain.SplitTerritory(raw), ",")
}

func rateOrDefault(rate *int64, def int64) *int64 {
	if rate != nil {
		return rate
	}
	value := def
	return &value
}
