package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leadgate/leadgate/internal/authorization"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	gatelinkdomain "github.com/leadgate/leadgate/internal/gatelink/domain"
	invoicedomain "github.com/leadgate/leadgate/internal/invoice/domain"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	refunddomain "github.com/leadgate/leadgate/internal/refund/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware renders the last handler error as a JSON envelope
// unless the handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
	code := err.Error()

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, gatelinkdomain.ErrInvalidCredentials),
		errors.Is(err, gatelinkdomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case errors.Is(err, gatelinkdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many attempts"}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Code: code, Message: "conflict"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Code: code, Message: "validation error"}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, gatelinkdomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// classifyErrorForLog returns the error type and code recorded on request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && err != nil {
		code = err.Error()
	}
	return payload.Type, code
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, brokerdomain.ErrBillingCodeTaken),
		errors.Is(err, leaddomain.ErrLeadLocked),
		errors.Is(err, leaddomain.ErrLeadAlreadyBilled),
		errors.Is(err, leaddomain.ErrBrokerUnavailable),
		errors.Is(err, creditdomain.ErrAlreadyPaidOut),
		errors.Is(err, creditdomain.ErrInsufficientBalance),
		errors.Is(err, refunddomain.ErrDuplicateRequest),
		errors.Is(err, refunddomain.ErrNotPending),
		errors.Is(err, refunddomain.ErrNotApproved),
		errors.Is(err, refunddomain.ErrAlreadyExecuted),
		errors.Is(err, refunddomain.ErrNotToBeRepaid),
		errors.Is(err, invoicedomain.ErrAlreadyInvoiced),
		errors.Is(err, invoicedomain.ErrReconcileRunning),
		errors.Is(err, gatelinkdomain.ErrUserExists),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, brokerdomain.ErrNotFound),
		errors.Is(err, leaddomain.ErrNotFound),
		errors.Is(err, leaddomain.ErrBrokerNotFound),
		errors.Is(err, creditdomain.ErrBrokerNotFound),
		errors.Is(err, creditdomain.ErrTransactionNotFound),
		errors.Is(err, refunddomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrBrokerNotFound),
		errors.Is(err, invoicedomain.ErrLeadNotFound),
		errors.Is(err, gatelinkdomain.ErrBrokerNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// Domain validation sentinels share the invalid_ prefix; the rest are
// precondition failures the caller can fix.
func isValidationError(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.HasPrefix(e.Error(), "invalid_") {
			return true
		}
	}
	switch {
	case errors.Is(err, leaddomain.ErrBrokerRequired),
		errors.Is(err, leaddomain.ErrStatusUnchanged),
		errors.Is(err, creditdomain.ErrNotCreditsMode),
		errors.Is(err, refunddomain.ErrNotEligible),
		errors.Is(err, refunddomain.ErrExceedsEligible),
		errors.Is(err, invoicedomain.ErrLeadNotSold),
		errors.Is(err, invoicedomain.ErrLeadUnassigned),
		errors.Is(err, invoicedomain.ErrMissingSaleData),
		errors.Is(err, gatelinkdomain.ErrWeakPassword):
		return true
	default:
		return false
	}
}
