package authorization

import (
	"context"
	"errors"

	gatelinkdomain "github.com/leadgate/leadgate/internal/gatelink/domain"
)

const (
	ObjectLead           = "lead"
	ObjectCredit         = "credit"
	ObjectRefund         = "refund"
	ObjectInvoice        = "invoice"
	ObjectRecommendation = "recommendation"
	ObjectBroker         = "broker"
	ObjectUser           = "user"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionLeadQualify = "lead.qualify"
	ActionLeadLock    = "lead.lock"

	ActionCreditTopUp  = "credit.top_up"
	ActionCreditAdjust = "credit.adjust"
	ActionCreditView   = "credit.view"

	ActionRefundRequest = "refund.request"
	ActionRefundDecide  = "refund.decide"
	ActionRefundExecute = "refund.execute"

	ActionInvoiceParticipationCreate = "invoice.participation.create"
	ActionInvoiceStatusUpdate        = "invoice.status.update"
	ActionInvoiceReconcile           = "invoice.reconcile"
	ActionInvoiceView                = "invoice.view"

	ActionRecommendationView = "recommendation.view"

	ActionBrokerManage = "broker.manage"
	ActionUserManage   = "user.manage"
	ActionAuditLogView = "audit_log.view"
)

// Service answers whether an authenticated principal may perform an action.
type Service interface {
	Authorize(ctx context.Context, principal gatelinkdomain.Principal, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
