package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leadgate/leadgate/internal/authorization"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	gatelinkdomain "github.com/leadgate/leadgate/internal/gatelink/domain"
	invoicedomain "github.com/leadgate/leadgate/internal/invoice/domain"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	"github.com/leadgate/leadgate/internal/observability"
	"github.com/leadgate/leadgate/pkg/db/dbtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine, err := NewEngine(Params{
		ObsConfig: observability.Config{LogLevel: "info"},
		DB:        dbtest.Open(t),
		Registry:  prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return engine
}

func get(t *testing.T, engine http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	engine := newTestEngine(t)

	rec := get(t, engine, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, engine, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"database":"up","redis":"disabled"}}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetricsExposeRequestCounters(t *testing.T) {
	engine := newTestEngine(t)
	get(t, engine, "/health")
	get(t, engine, "/health")

	rec := get(t, engine, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `leadgate_http_requests_total{method="GET",route="/health",status="200"} 2`)
}

func TestErrorMiddlewareRendersDomainErrors(t *testing.T) {
	engine := newTestEngine(t)
	engine.GET("/fail/:kind", func(c *gin.Context) {
		switch c.Param("kind") {
		case "locked":
			AbortWithError(c, fmt.Errorf("qualify: %w", leaddomain.ErrLeadLocked))
		case "forbidden":
			AbortWithError(c, authorization.ErrForbidden)
		default:
			AbortWithError(c, invoicedomain.ErrInvalidPeriod)
		}
	})

	rec := get(t, engine, "/fail/locked")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":{"type":"conflict","code":"qualify: lead_locked","message":"conflict"}}`, rec.Body.String())

	rec = get(t, engine, "/fail/forbidden")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(t, engine, "/fail/period")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":{"type":"validation_error","code":"invalid_period","message":"validation error"}}`, rec.Body.String())
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{gatelinkdomain.ErrInvalidCredentials, http.StatusUnauthorized},
		{gatelinkdomain.ErrRateLimited, http.StatusTooManyRequests},
		{gatelinkdomain.ErrNotConfigured, http.StatusServiceUnavailable},
		{creditdomain.ErrTransactionNotFound, http.StatusNotFound},
		{creditdomain.ErrNotCreditsMode, http.StatusBadRequest},
		{invoicedomain.ErrAlreadyInvoiced, http.StatusConflict},
		{invoicedomain.ErrReconcileRunning, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}

	typ, code := classifyErrorForLog(fmt.Errorf("boom"))
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "boom", code)
}
