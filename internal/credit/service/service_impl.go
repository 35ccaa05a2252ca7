package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/contract"
	"github.com/leadgate/leadgate/internal/credit/domain"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	obsmetrics "github.com/leadgate/leadgate/internal/observability/metrics"
	"github.com/leadgate/leadgate/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		brokerRepo: p.BrokerRepo,
		leadRepo:   p.LeadRepo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Balance(ctx context.Context, brokerID snowflake.ID) (int64, error) {
	if brokerID == 0 {
		return 0, domain.ErrInvalidBroker
	}
	return s.repo.SumByBroker(ctx, s.db, brokerID)
}

func (s *Service) ListTransactions(ctx context.Context, brokerID snowflake.ID) ([]domain.Transaction, error) {
	if brokerID == 0 {
		return nil, domain.ErrInvalidBroker
	}
	return s.repo.ListByBroker(ctx, s.db, brokerID)
}

func (s *Service) TopUp(ctx context.Context, req domain.TopUpRequest) (domain.Transaction, error) {
	txType := req.Type
	if txType == "" {
		txType = domain.TypeTopUp
	}
	if txType != domain.TypeTopUp && txType != domain.TypeOnlinePayment {
		return domain.Transaction{}, domain.ErrInvalidType
	}
	if req.Amount <= 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	entry := domain.Transaction{
		BrokerID:         req.BrokerID,
		Amount:           req.Amount,
		Type:             txType,
		Description:      strings.TrimSpace(req.Description),
		PaymentReference: optionalString(req.PaymentReference),
		PaymentStatus:    optionalString(req.PaymentStatus),
		CreatedBy:        optionalString(req.CreatedBy),
	}
	if entry.Description == "" {
		entry.Description = fmt.Sprintf("Top-up %s", pricing.FormatEUR(req.Amount))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockCreditsBroker(ctx, tx, req.BrokerID); err != nil {
			return err
		}
		return s.append(ctx, tx, &entry, map[string]any{
			"payment_reference": req.PaymentReference,
		})
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return entry, nil
}

func (s *Service) Adjust(ctx context.Context, req domain.AdjustRequest) (domain.Transaction, error) {
	if req.Amount == 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	entry := domain.Transaction{
		BrokerID:    req.BrokerID,
		Amount:      req.Amount,
		Type:        domain.TypeManualAdjustment,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   optionalString(req.CreatedBy),
	}
	if entry.Description == "" {
		entry.Description = "Manual adjustment"
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockCreditsBroker(ctx, tx, req.BrokerID); err != nil {
			return err
		}
		return s.append(ctx, tx, &entry, nil)
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return entry, nil
}

func (s *Service) ChargeLead(ctx context.Context, db *gorm.DB, req domain.ChargeLeadRequest) (domain.ChargeOutcome, error) {
	if req.BrokerID == 0 {
		return domain.ChargeOutcome{}, domain.ErrInvalidBroker
	}
	if req.LeadID == 0 {
		return domain.ChargeOutcome{}, domain.ErrInvalidLead
	}

	var outcome domain.ChargeOutcome
	err := s.inTx(ctx, db, func(tx *gorm.DB) error {
		broker, err := s.brokerRepo.FindByIDForUpdate(ctx, tx, req.BrokerID)
		if err != nil {
			return err
		}
		if broker == nil {
			return domain.ErrBrokerNotFound
		}
		if !broker.UsesCredits() {
			outcome = domain.ChargeOutcome{Status: domain.ChargeSkipped}
			return nil
		}

		balance, err := s.repo.SumByBroker(ctx, tx, broker.ID)
		if err != nil {
			return err
		}
		open, err := s.repo.SumForLead(ctx, tx, broker.ID, req.LeadID)
		if err != nil {
			return err
		}
		if open < 0 {
			outcome = domain.ChargeOutcome{Status: domain.ChargeSkipped, Price: -open, Balance: balance}
			return nil
		}

		price, err := s.priceFor(ctx, tx, broker, req)
		if err != nil {
			return err
		}
		if balance < price {
			outcome = domain.ChargeOutcome{Status: domain.ChargeInsufficient, Price: price, Balance: balance}
			return nil
		}

		leadID := req.LeadID
		entry := domain.Transaction{
			BrokerID:    broker.ID,
			Amount:      -price,
			Type:        domain.TypeLeadCharge,
			LeadID:      &leadID,
			Description: leadDescription("Lead", req.LeadNumber, leadID, price),
			CreatedBy:   optionalString(req.CreatedBy),
		}
		if err := s.append(ctx, tx, &entry, map[string]any{"lead_id": leadID.String()}); err != nil {
			return err
		}
		outcome = domain.ChargeOutcome{
			Status:      domain.ChargeCharged,
			Price:       price,
			Balance:     balance - price,
			Transaction: &entry,
		}
		return nil
	})
	if err != nil {
		return domain.ChargeOutcome{}, err
	}

	s.obsMetrics.RecordLeadCharge(ctx, string(outcome.Status))
	if outcome.Blocked() {
		s.log.Info("lead charge blocked by balance",
			zap.String("broker_id", req.BrokerID.String()),
			zap.String("lead_id", req.LeadID.String()),
			zap.Int64("price", outcome.Price),
			zap.Int64("balance", outcome.Balance),
		)
	}
	return outcome, nil
}

func (s *Service) RefundLead(ctx context.Context, db *gorm.DB, brokerID, leadID snowflake.ID, description string) (*domain.Transaction, error) {
	if brokerID == 0 {
		return nil, domain.ErrInvalidBroker
	}
	if leadID == 0 {
		return nil, domain.ErrInvalidLead
	}

	var refund *domain.Transaction
	err := s.inTx(ctx, db, func(tx *gorm.DB) error {
		broker, err := s.brokerRepo.FindByIDForUpdate(ctx, tx, brokerID)
		if err != nil {
			return err
		}
		if broker == nil {
			return domain.ErrBrokerNotFound
		}
		if !broker.UsesCredits() {
			return nil
		}

		charge, err := s.repo.FindLeadCharge(ctx, tx, brokerID, leadID)
		if err != nil {
			return err
		}
		if charge == nil {
			return nil
		}
		open, err := s.repo.SumForLead(ctx, tx, brokerID, leadID)
		if err != nil {
			return err
		}
		if open >= 0 {
			return nil
		}

		id := leadID
		entry := domain.Transaction{
			BrokerID:    brokerID,
			Amount:      -open,
			Type:        domain.TypeLeadRefund,
			LeadID:      &id,
			Description: strings.TrimSpace(description),
		}
		if entry.Description == "" {
			entry.Description = leadDescription("Refund for lead", 0, id, -open)
		}
		if err := s.append(ctx, tx, &entry, map[string]any{"lead_id": id.String()}); err != nil {
			return err
		}
		refund = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func (s *Service) Eligible(ctx context.Context, brokerID snowflake.ID) ([]domain.EligibleTopUp, error) {
	if brokerID == 0 {
		return nil, domain.ErrInvalidBroker
	}

	txs, err := s.repo.ListByBroker(ctx, s.db, brokerID)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.OpenRefundTransactionIDs(ctx, s.db, brokerID)
	if err != nil {
		return nil, err
	}
	blocked := make(map[snowflake.ID]struct{}, len(open))
	for _, id := range open {
		blocked[id] = struct{}{}
	}

	eligible := domain.Eligible(txs, s.clock.Now(), s.policy.Get().RefundMinAgeMonths)
	out := make([]domain.EligibleTopUp, 0, len(eligible))
	for _, item := range eligible {
		if _, ok := blocked[item.TransactionID]; ok {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) CreatePayout(ctx context.Context, db *gorm.DB, req domain.PayoutRequest) (domain.Transaction, error) {
	if req.Amount <= 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if req.TransactionID == 0 {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}

	var entry domain.Transaction
	err := s.inTx(ctx, db, func(tx *gorm.DB) error {
		if _, err := s.lockCreditsBroker(ctx, tx, req.BrokerID); err != nil {
			return err
		}

		original, err := s.repo.FindByID(ctx, tx, req.TransactionID)
		if err != nil {
			return err
		}
		if original == nil || original.BrokerID != req.BrokerID || original.Amount <= 0 {
			return domain.ErrTransactionNotFound
		}

		existing, err := s.repo.FindPayoutFor(ctx, tx, req.BrokerID, original.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyPaidOut
		}

		balance, err := s.repo.SumByBroker(ctx, tx, req.BrokerID)
		if err != nil {
			return err
		}
		if balance < req.Amount {
			return domain.ErrInsufficientBalance
		}

		ref := original.ID
		entry = domain.Transaction{
			BrokerID:    req.BrokerID,
			Amount:      -req.Amount,
			Type:        domain.TypePayout,
			ReferenceID: &ref,
			Description: strings.TrimSpace(req.Description),
			CreatedBy:   optionalString(req.CreatedBy),
		}
		if entry.Description == "" {
			entry.Description = fmt.Sprintf("Payout of unused credits (transaction %s)", ref)
		}
		return s.append(ctx, tx, &entry, map[string]any{"reference_id": ref.String()})
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return entry, nil
}

// priceFor prices the lead as the next one of its qualification month.
func (s *Service) priceFor(ctx context.Context, tx *gorm.DB, broker *brokerdomain.Broker, req domain.ChargeLeadRequest) (int64, error) {
	qualifiedAt := req.QualifiedAt
	if qualifiedAt.IsZero() {
		qualifiedAt = s.clock.Now()
	}
	month, year := int(qualifiedAt.Month()), qualifiedAt.Year()
	from, to := contract.MonthBounds(month, year)

	billed, err := s.leadRepo.CountQualifiedInRange(ctx, tx, broker.ID, from, to, req.LeadID)
	if err != nil {
		return 0, err
	}
	cfg := broker.PricingConfig(s.policy.Get().Credits.FirstLeadsCount)
	return pricing.PriceForLead(cfg, contract.Month(broker.ContractStart, month, year), billed), nil
}

func (s *Service) lockCreditsBroker(ctx context.Context, tx *gorm.DB, brokerID snowflake.ID) (*brokerdomain.Broker, error) {
	if brokerID == 0 {
		return nil, domain.ErrInvalidBroker
	}
	broker, err := s.brokerRepo.FindByIDForUpdate(ctx, tx, brokerID)
	if err != nil {
		return nil, err
	}
	if broker == nil {
		return nil, domain.ErrBrokerNotFound
	}
	if !broker.UsesCredits() {
		return nil, domain.ErrNotCreditsMode
	}
	return broker, nil
}

func (s *Service) append(ctx context.Context, tx *gorm.DB, entry *domain.Transaction, metadata map[string]any) error {
	entry.ID = s.genID.Generate()
	entry.CreatedAt = s.clock.Now()
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		return err
	}
	s.obsMetrics.RecordCreditTransaction(ctx, string(entry.Type))

	if s.auditSvc == nil {
		return nil
	}
	payload := map[string]any{
		"broker_id": entry.BrokerID.String(),
		"amount":    entry.Amount,
	}
	for key, value := range metadata {
		if str, ok := value.(string); ok && str == "" {
			continue
		}
		payload[key] = value
	}
	actorType := ""
	if entry.CreatedBy != nil {
		actorType = string(auditdomain.ActorTypeUser)
	}
	targetID := entry.ID.String()
	return s.auditSvc.AuditLog(ctx, tx, actorType, entry.CreatedBy, "credit."+string(entry.Type), "credit_transaction", &targetID, payload)
}

func (s *Service) inTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db != nil {
		return fn(db)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func leadDescription(prefix string, number int64, id snowflake.ID, amount int64) string {
	label := id.String()
	if number > 0 {
		label = fmt.Sprintf("%d", number)
	}
	return fmt.Sprintf("%s #%s - %s", prefix, label, pricing.FormatEUR(amount))
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
