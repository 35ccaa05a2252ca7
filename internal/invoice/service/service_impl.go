package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/contract"
	"github.com/leadgate/leadgate/internal/invoice/domain"
	"github.com/leadgate/leadgate/internal/invoice/format"
	"github.com/leadgate/leadgate/internal/invoice/render"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	obsmetrics "github.com/leadgate/leadgate/internal/observability/metrics"
	"github.com/leadgate/leadgate/internal/pricing"
	"github.com/leadgate/leadgate/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reconcileLockTTL = 5 * time.Minute

var brand = render.Brand{
	CompanyName:  "Leadgate GmbH",
	PrimaryColor: "#1f3a5f",
	FooterLegal:  "Leadgate GmbH · Amtsgericht München · USt-IdNr. DE000000000",
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Policy     *config.PolicyHolder
	Repo       domain.Repository
	BrokerRepo brokerdomain.Repository
	LeadRepo   leaddomain.Repository
	Renderer   render.Renderer
	Locker     *ratelimit.Locker   `optional:"true"`
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
	leadRepo   leaddomain.Repository
	renderer   render.Renderer
	locker     *ratelimit.Locker
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		brokerRepo: p.BrokerRepo,
		leadRepo:   p.LeadRepo,
		renderer:   p.Renderer,
		locker:     p.Locker,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) FindOrCreateMonthly(ctx context.Context, req domain.MonthlyRequest) (domain.Invoice, bool, error) {
	if req.BrokerID == 0 {
		return domain.Invoice{}, false, domain.ErrInvalidID
	}
	if err := validatePeriod(req.Month, req.Year); err != nil {
		return domain.Invoice{}, false, err
	}

	var (
		invoice domain.Invoice
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		broker, err := s.brokerRepo.FindByIDForUpdate(ctx, tx, req.BrokerID)
		if err != nil {
			return err
		}
		if broker == nil {
			return domain.ErrBrokerNotFound
		}

		from, to := contract.MonthBounds(req.Month, req.Year)
		count, err := s.leadRepo.CountQualifiedInRange(ctx, tx, broker.ID, from, to, 0)
		if err != nil {
			return err
		}

		policy := s.policy.Get()
		now := s.clock.Now()
		cfg := broker.PricingConfig(policy.Credits.FirstLeadsCount)
		contractMonth := contract.Month(broker.ContractStart, req.Month, req.Year)

		var net, perLead int64
		if !contract.IsActiveForBilling(broker.Terms(), req.Month, req.Year, count, now) && count == 0 {
			perLead = broker.StandardRate
		} else {
			net = pricing.NetForCount(cfg, contractMonth, count)
			perLead = pricing.AveragePrice(cfg, contractMonth, count)
		}
		gross := pricing.GrossFromNet(net, policy.VATPercent)

		existing, err := s.repo.FindMonthly(ctx, tx, broker.ID, req.Month, req.Year)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.LeadCount == count && existing.PricePerLead == perLead &&
				existing.NetAmount == net && existing.GrossAmount == gross {
				invoice = *existing
				return nil
			}
			existing.LeadCount = count
			existing.PricePerLead = perLead
			existing.NetAmount = net
			existing.GrossAmount = gross
			existing.UpdatedAt = now
			if err := s.repo.UpdateAmounts(ctx, tx, existing); err != nil {
				return err
			}
			invoice = *existing
			return s.audit(ctx, tx, req.CreatedBy, "invoice.monthly.updated", invoice)
		}

		period := time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
		invoice = domain.Invoice{
			BrokerID:     broker.ID,
			Type:         domain.TypeMonthly,
			Month:        req.Month,
			Year:         req.Year,
			LeadCount:    count,
			PricePerLead: perLead,
			NetAmount:    net,
			GrossAmount:  gross,
			Status:       domain.StatusOpen,
			CreatedBy:    optionalString(req.CreatedBy),
		}
		if err := s.insert(ctx, tx, &invoice, format.MonthlyNumberTemplate, period, broker.BillingCode); err != nil {
			return err
		}
		created = true
		return s.audit(ctx, tx, req.CreatedBy, "invoice.monthly.created", invoice)
	})
	if err != nil {
		return domain.Invoice{}, false, err
	}

	s.obsMetrics.RecordInvoice(ctx, string(domain.TypeMonthly), created)
	return invoice, created, nil
}

func (s *Service) CreateParticipation(ctx context.Context, req domain.ParticipationRequest) (domain.Invoice, error) {
	if req.LeadID == 0 {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lead, err := s.leadRepo.FindByIDForUpdate(ctx, tx, req.LeadID)
		if err != nil {
			return err
		}
		if lead == nil {
			return domain.ErrLeadNotFound
		}
		if !lead.Sold() {
			return domain.ErrLeadNotSold
		}
		if lead.BrokerID == nil || *lead.BrokerID == 0 {
			return domain.ErrLeadUnassigned
		}
		if strings.TrimSpace(lead.SalePriceText) == "" || lead.ParticipationPct == nil || *lead.ParticipationPct <= 0 {
			return domain.ErrMissingSaleData
		}
		salePrice, err := domain.ParseSalePrice(lead.SalePriceText)
		if err != nil {
			return err
		}

		existing, err := s.repo.FindParticipation(ctx, tx, lead.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyInvoiced
		}

		broker, err := s.brokerRepo.FindByID(ctx, tx, *lead.BrokerID)
		if err != nil {
			return err
		}
		if broker == nil {
			return domain.ErrBrokerNotFound
		}

		policy := s.policy.Get()
		now := s.clock.Now()
		pct := *lead.ParticipationPct
		net := pricing.Participation(salePrice, pct, policy.TakeRatePercent)
		leadID := lead.ID

		invoice = domain.Invoice{
			BrokerID:         broker.ID,
			Type:             domain.TypeParticipation,
			Month:            int(now.Month()),
			Year:             now.Year(),
			LeadCount:        1,
			PricePerLead:     net,
			LeadID:           &leadID,
			SalePrice:        &salePrice,
			ParticipationPct: &pct,
			NetAmount:        net,
			GrossAmount:      pricing.GrossFromNet(net, policy.VATPercent),
			Status:           domain.StatusOpen,
			CreatedBy:        optionalString(req.CreatedBy),
		}
		if err := s.insert(ctx, tx, &invoice, format.ParticipationNumberTemplate, now, broker.BillingCode); err != nil {
			return err
		}
		return s.audit(ctx, tx, req.CreatedBy, "invoice.participation.created", invoice)
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.obsMetrics.RecordInvoice(ctx, string(domain.TypeParticipation), true)
	return invoice, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status) (domain.Invoice, error) {
	if id == 0 {
		return domain.Invoice{}, domain.ErrInvalidID
	}
	if !status.Valid() {
		return domain.Invoice{}, domain.ErrInvalidStatus
	}

	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		if existing.Status == status {
			invoice = *existing
			return nil
		}

		previous := existing.Status
		existing.Status = status
		existing.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, existing.ID, status, existing.UpdatedAt); err != nil {
			return err
		}
		invoice = *existing
		if s.auditSvc == nil {
			return nil
		}
		targetID := invoice.ID.String()
		return s.auditSvc.AuditLog(ctx, tx, "", nil, "invoice.status_updated", "invoice", &targetID, map[string]any{
			"from": string(previous),
			"to":   string(status),
		})
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Invoice, error) {
	if id == 0 {
		return domain.Invoice{}, domain.ErrInvalidID
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return *invoice, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Invoice, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if filter.Month < 0 || filter.Month > 12 {
		return nil, domain.ErrInvalidPeriod
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) ListBillableSales(ctx context.Context) ([]leaddomain.Lead, error) {
	invoiced, err := s.repo.InvoicedLeadIDs(ctx, s.db)
	if err != nil {
		return nil, err
	}
	skip := make(map[snowflake.ID]struct{}, len(invoiced))
	for _, id := range invoiced {
		skip[id] = struct{}{}
	}

	leads, err := s.leadRepo.List(ctx, s.db, leaddomain.ListFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]leaddomain.Lead, 0)
	for _, lead := range leads {
		if lead.BrokerID == nil || !lead.Sold() {
			continue
		}
		if _, ok := skip[lead.ID]; ok {
			continue
		}
		out = append(out, *lead)
	}
	return out, nil
}

func (s *Service) ReconcileMonth(ctx context.Context, month, year int) (domain.ReconcileResult, error) {
	if err := validatePeriod(month, year); err != nil {
		return domain.ReconcileResult{}, err
	}

	result := domain.ReconcileResult{Month: month, Year: year, Invoices: []domain.Invoice{}}
	key := fmt.Sprintf("leadgate:reconcile:%04d-%02d", year, month)

	var failures []error
	err := s.locker.WithLock(ctx, key, reconcileLockTTL, func(ctx context.Context) error {
		brokers, err := s.brokerRepo.List(ctx, s.db)
		if err != nil {
			return err
		}
		for _, broker := range brokers {
			if broker.UsesCredits() {
				result.Skipped++
				continue
			}
			invoice, created, err := s.FindOrCreateMonthly(ctx, domain.MonthlyRequest{
				BrokerID: broker.ID,
				Month:    month,
				Year:     year,
			})
			if err != nil {
				s.log.Warn("monthly invoice reconcile failed",
					zap.String("broker_id", broker.ID.String()),
					zap.Int("month", month),
					zap.Int("year", year),
					zap.Error(err),
				)
				failures = append(failures, fmt.Errorf("broker %s: %w", broker.ID, err))
				continue
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
			result.Invoices = append(result.Invoices, invoice)
		}
		return nil
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return domain.ReconcileResult{}, domain.ErrReconcileRunning
	}
	if err != nil {
		return domain.ReconcileResult{}, err
	}

	s.log.Info("monthly invoices reconciled",
		zap.Int("month", month),
		zap.Int("year", year),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(failures)),
	)
	return result, errors.Join(failures...)
}

func (s *Service) RenderHTML(ctx context.Context, id snowflake.ID) (string, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	broker, err := s.brokerRepo.FindByID(ctx, s.db, invoice.BrokerID)
	if err != nil {
		return "", err
	}
	if broker == nil {
		return "", domain.ErrBrokerNotFound
	}

	policy := s.policy.Get()
	doc := render.Document{
		Number:   invoice.Number,
		IssuedAt: invoice.CreatedAt,
		DueAt:    invoice.DueDate(),
		Brand:    brand,
		Recipient: render.Recipient{
			Name:    broker.CompanyName,
			Contact: broker.ContactName,
			Email:   broker.Email,
			Address: broker.Address,
		},
		Items:      []render.Item{lineItem(invoice)},
		Net:        invoice.NetAmount,
		VAT:        invoice.GrossAmount - invoice.NetAmount,
		VATPercent: policy.VATPercent,
		Gross:      invoice.GrossAmount,
	}
	return s.renderer.RenderHTML(doc)
}

func lineItem(invoice domain.Invoice) render.Item {
	if invoice.Type == domain.TypeParticipation {
		sub := ""
		if invoice.SalePrice != nil && invoice.ParticipationPct != nil {
			sub = fmt.Sprintf("Verkaufspreis %s, Beteiligung %.2f %%", pricing.FormatEUR(*invoice.SalePrice), *invoice.ParticipationPct)
		}
		return render.Item{
			Title:     "Erfolgsbeteiligung",
			SubTitle:  sub,
			Quantity:  1,
			UnitPrice: invoice.NetAmount,
			Amount:    invoice.NetAmount,
		}
	}
	return render.Item{
		Title:     "Qualifizierte Leads",
		SubTitle:  fmt.Sprintf("Leistungszeitraum %02d/%d", invoice.Month, invoice.Year),
		Quantity:  invoice.LeadCount,
		UnitPrice: invoice.PricePerLead,
		Amount:    invoice.NetAmount,
	}
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, template string, period time.Time, code string) error {
	seq, err := s.repo.NextSequence(ctx, tx)
	if err != nil {
		return err
	}
	number, err := format.InvoiceNumber(template, period, code, seq)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	invoice.ID = s.genID.Generate()
	invoice.Number = number
	invoice.Sequence = seq
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	return s.repo.Insert(ctx, tx, invoice)
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, actor, action string, invoice domain.Invoice) error {
	if s.auditSvc == nil {
		return nil
	}
	actorType := ""
	actorID := optionalString(actor)
	if actorID != nil {
		actorType = string(auditdomain.ActorTypeUser)
	}
	metadata := map[string]any{
		"broker_id":    invoice.BrokerID.String(),
		"number":       invoice.Number,
		"month":        invoice.Month,
		"year":         invoice.Year,
		"lead_count":   invoice.LeadCount,
		"net_amount":   invoice.NetAmount,
		"gross_amount": invoice.GrossAmount,
	}
	if invoice.LeadID != nil {
		metadata["lead_id"] = invoice.LeadID.String()
	}
	targetID := invoice.ID.String()
	return s.auditSvc.AuditLog(ctx, tx, actorType, actorID, action, "invoice", &targetID, metadata)
}

func validatePeriod(month, year int) error {
	if month < 1 || month > 12 || year < 2000 {
		return domain.ErrInvalidPeriod
	}
	return nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
