package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	gatelinkdomain "github.com/leadgate/leadgate/internal/gatelink/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads the stored policy through the gorm adapter and tops it up
// with the built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal gatelinkdomain.Principal, action string) error {
	if principal == nil {
		return ErrInvalidActor
	}
	subject := strings.TrimSpace(principal.Subject())
	if subject == "" {
		return ErrInvalidActor
	}
	action = strings.TrimSpace(action)
	object := objectFor(action)
	if object == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(subject), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("actor_id", principal.ActorID()),
			zap.String("action", action),
		)
		s.audit(ctx, principal, "authorization.denied", object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.audit(ctx, principal, "authorization.granted", object, action)
	}
	return nil
}

func (s *ServiceImpl) audit(ctx context.Context, principal gatelinkdomain.Principal, event string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorType := string(auditdomain.ActorTypeUser)
	if principal.Kind() == gatelinkdomain.KindBroker {
		actorType = string(auditdomain.ActorTypeBroker)
	}
	actorID := principal.ActorID()
	targetID := "capability"
	if err := s.auditSvc.AuditLog(ctx, nil, actorType, &actorID, event, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": principal.Subject(),
	}); err != nil {
		s.log.Warn("failed to audit authorization decision", zap.String("action", action), zap.Error(err))
	}
}

func roleSubject(subject string) string {
	return "role:" + strings.ToLower(subject)
}

// objectFor returns the resource part of a dotted action name.
func objectFor(action string) string {
	object, _, ok := strings.Cut(action, ".")
	if !ok {
		return ""
	}
	return object
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionCreditAdjust, ActionRefundDecide, ActionRefundExecute, ActionUserManage:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Telephonists work the lead queue.
		{"role:telephonist", ObjectLead, ActionLeadQualify},
		{"role:telephonist", ObjectLead, ActionLeadLock},
		{"role:telephonist", ObjectRecommendation, ActionRecommendationView},

		// Managers run brokers and their ledgers.
		{"role:manager", ObjectBroker, ActionBrokerManage},
		{"role:manager", ObjectCredit, ActionCreditTopUp},
		{"role:manager", ObjectCredit, ActionCreditAdjust},
		{"role:manager", ObjectCredit, ActionCreditView},
		{"role:manager", ObjectRefund, ActionRefundDecide},
		{"role:manager", ObjectRefund, ActionRefundExecute},
		{"role:manager", ObjectInvoice, ActionInvoiceParticipationCreate},
		{"role:manager", ObjectInvoice, ActionInvoiceView},

		// Accountants own invoicing.
		{"role:accountant", ObjectInvoice, ActionInvoiceParticipationCreate},
		{"role:accountant", ObjectInvoice, ActionInvoiceStatusUpdate},
		{"role:accountant", ObjectInvoice, ActionInvoiceReconcile},
		{"role:accountant", ObjectInvoice, ActionInvoiceView},
		{"role:accountant", ObjectCredit, ActionCreditView},
		{"role:accountant", ObjectRefund, ActionRefundExecute},

		{"role:admin", ObjectUser, ActionUserManage},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// Brokers act on their own account only; ownership is checked by the
		// owning service.
		{"role:broker", ObjectRefund, ActionRefundRequest},
		{"role:broker", ObjectCredit, ActionCreditView},
		{"role:broker", ObjectInvoice, ActionInvoiceView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	grouping := [][]string{
		{"role:manager", "role:telephonist"},
		{"role:admin", "role:manager"},
		{"role:admin", "role:accountant"},
	}
	for _, rule := range grouping {
		if _, err := enforcer.AddGroupingPolicy(rule); err != nil {
			return err
		}
	}
	return nil
}
