package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	"github.com/leadgate/leadgate/internal/refund/domain"
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
	CreditRepo creditdomain.Repository
	CreditSvc  creditdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.PolicyHolder
	repo       domain.Repository
	creditRepo creditdomain.Repository
	creditSvc  creditdomain.Service
	auditSvc   auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("refund.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		creditRepo: p.CreditRepo,
		creditSvc:  p.CreditSvc,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Request, error) {
	if req.BrokerID == 0 || req.TransactionID == 0 {
		return domain.Request{}, domain.ErrInvalidID
	}
	if req.Amount <= 0 {
		return domain.Request{}, domain.ErrInvalidAmount
	}

	open, err := s.repo.FindOpenForTransaction(ctx, s.db, req.TransactionID)
	if err != nil {
		return domain.Request{}, err
	}
	if open != nil {
		return domain.Request{}, domain.ErrDuplicateRequest
	}

	eligible, err := s.creditSvc.Eligible(ctx, req.BrokerID)
	if err != nil {
		return domain.Request{}, err
	}
	var remainder int64 = -1
	for _, item := range eligible {
		if item.TransactionID == req.TransactionID {
			remainder = item.Amount
			break
		}
	}
	if remainder < 0 {
		return domain.Request{}, domain.ErrNotEligible
	}
	if req.Amount > remainder {
		return domain.Request{}, domain.ErrExceedsEligible
	}

	request := domain.Request{
		ID:            s.genID.Generate(),
		BrokerID:      req.BrokerID,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Status:        domain.StatusPending,
		Description:   strings.TrimSpace(req.Description),
		CreatedAt:     s.clock.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &request); err != nil {
			return err
		}
		brokerID := req.BrokerID.String()
		return s.audit(ctx, tx, string(auditdomain.ActorTypeBroker), &brokerID, "refund.request", request, nil)
	})
	if err != nil {
		return domain.Request{}, err
	}
	return request, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Request, error) {
	if id == 0 {
		return domain.Request{}, domain.ErrInvalidID
	}
	req, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Request{}, err
	}
	if req == nil {
		return domain.Request{}, domain.ErrNotFound
	}
	return *req, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Request, error) {
	switch filter.Status {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		return nil, domain.ErrInvalidStatus
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) Approve(ctx context.Context, req domain.DecideRequest) (domain.Request, error) {
	return s.decide(ctx, req, domain.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, req domain.DecideRequest) (domain.Request, error) {
	return s.decide(ctx, req, domain.StatusRejected)
}

func (s *Service) decide(ctx context.Context, req domain.DecideRequest, status domain.Status) (domain.Request, error) {
	if req.ID == 0 {
		return domain.Request{}, domain.ErrInvalidID
	}

	return s.mutate(ctx, req.ID, req.DecidedBy, "refund."+string(status), func(_ *gorm.DB, request *domain.Request) error {
		if request.Status != domain.StatusPending {
			return domain.ErrNotPending
		}
		now := s.clock.Now()
		request.Status = status
		request.DecidedAt = &now
		if req.DecidedBy != 0 {
			decidedBy := req.DecidedBy
			request.DecidedBy = &decidedBy
		}
		if status == domain.StatusApproved {
			repayment := domain.RepaymentToBeRepaid
			request.RepaymentStatus = &repayment
		}
		request.Description = appendNote(request.Description, req.Note)
		return nil
	})
}

func (s *Service) Execute(ctx context.Context, req domain.ExecuteRequest) (domain.Request, error) {
	if req.ID == 0 {
		return domain.Request{}, domain.ErrInvalidID
	}

	return s.mutate(ctx, req.ID, req.ExecutedBy, "refund.execute", func(tx *gorm.DB, request *domain.Request) error {
		if request.Status != domain.StatusApproved {
			return domain.ErrNotApproved
		}
		if request.Executed() {
			return domain.ErrAlreadyExecuted
		}

		createdBy := ""
		if req.ExecutedBy != 0 {
			createdBy = req.ExecutedBy.String()
		}
		payout, err := s.creditSvc.CreatePayout(ctx, tx, creditdomain.PayoutRequest{
			BrokerID:      request.BrokerID,
			TransactionID: request.TransactionID,
			Amount:        request.Amount,
			Description:   fmt.Sprintf("Refund executed (request %s)", request.ID),
			CreatedBy:     createdBy,
		})
		if err != nil {
			return err
		}
		payoutID := payout.ID
		request.PayoutTransactionID = &payoutID

		original, err := s.creditRepo.FindByID(ctx, tx, request.TransactionID)
		if err != nil {
			return err
		}
		repayment := domain.RepaymentToBeRepaid
		if original != nil && original.PaymentReference != nil && req.Provider != nil {
			repayment = domain.RepaymentProviderPending
			if req.Provider.Succeeded {
				repayment = domain.RepaymentProviderCompleted
			}
			if ref := strings.TrimSpace(req.Provider.Reference); ref != "" {
				request.ProviderRefundReference = &ref
			}
			net := s.ProviderRefundAmount(request.Amount)
			request.Description = appendNote(request.Description,
				fmt.Sprintf("provider fee %d cents, refunded %d cents", request.Amount-net, net))
		}
		request.RepaymentStatus = &repayment
		return nil
	})
}

func (s *Service) MarkRepaid(ctx context.Context, id, userID snowflake.ID) (domain.Request, error) {
	if id == 0 {
		return domain.Request{}, domain.ErrInvalidID
	}

	return s.mutate(ctx, id, userID, "refund.repaid", func(_ *gorm.DB, request *domain.Request) error {
		if request.Status != domain.StatusApproved {
			return domain.ErrNotApproved
		}
		if request.RepaymentStatus == nil || *request.RepaymentStatus != domain.RepaymentToBeRepaid {
			return domain.ErrNotToBeRepaid
		}
		repaid := domain.RepaymentRepaid
		request.RepaymentStatus = &repaid
		return nil
	})
}

func (s *Service) ProviderRefundAmount(amount int64) int64 {
	policy := s.policy.Get()
	return domain.ProviderRefundAmount(amount, policy.ProviderFeePercent, policy.ProviderFeeFixedCents)
}

func (s *Service) mutate(ctx context.Context, id, userID snowflake.ID, action string, apply func(tx *gorm.DB, request *domain.Request) error) (domain.Request, error) {
	var out domain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if request == nil {
			return domain.ErrNotFound
		}
		previous := request.Status
		if err := apply(tx, request); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, request); err != nil {
			return err
		}
		out = *request

		var actorID *string
		if userID != 0 {
			value := userID.String()
			actorID = &value
		}
		return s.audit(ctx, tx, string(auditdomain.ActorTypeUser), actorID, action, *request, map[string]any{
			"previous_status": string(previous),
		})
	})
	if err != nil {
		return domain.Request{}, err
	}
	s.log.Info("refund request updated",
		zap.String("refund_request_id", out.ID.String()),
		zap.String("action", action),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, actorType string, actorID *string, action string, request domain.Request, extra map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	metadata := map[string]any{
		"broker_id":      request.BrokerID.String(),
		"transaction_id": request.TransactionID.String(),
		"amount":         request.Amount,
		"status":         string(request.Status),
	}
	if request.RepaymentStatus != nil {
		metadata["repayment_status"] = string(*request.RepaymentStatus)
	}
	if request.ProviderRefundReference != nil {
		metadata["provider_refund_reference"] = *request.ProviderRefundReference
	}
	for key, value := range extra {
		metadata[key] = value
	}
	targetID := request.ID.String()
	return s.auditSvc.AuditLog(ctx, tx, actorType, actorID, action, "refund_request", &targetID, metadata)
}

func appendNote(description, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return description
	}
	if description == "" {
		return note
	}
	return description + "\n" + note
}
