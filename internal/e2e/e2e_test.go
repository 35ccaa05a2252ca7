package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/audit"
	"github.com/leadgate/leadgate/internal/authorization"
	"github.com/leadgate/leadgate/internal/broker"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/contract"
	"github.com/leadgate/leadgate/internal/credit"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	"github.com/leadgate/leadgate/internal/gatelink"
	gatelinkdomain "github.com/leadgate/leadgate/internal/gatelink/domain"
	"github.com/leadgate/leadgate/internal/invoice"
	invoicedomain "github.com/leadgate/leadgate/internal/invoice/domain"
	"github.com/leadgate/leadgate/internal/lead"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	"github.com/leadgate/leadgate/internal/migration"
	"github.com/leadgate/leadgate/internal/pricing"
	"github.com/leadgate/leadgate/internal/ratelimit"
	"github.com/leadgate/leadgate/internal/recommendation"
	recommendationdomain "github.com/leadgate/leadgate/internal/recommendation/domain"
	"github.com/leadgate/leadgate/internal/refund"
	refunddomain "github.com/leadgate/leadgate/internal/refund/domain"
	"github.com/leadgate/leadgate/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	clock *clock.FakeClock
	staff snowflake.ID

	brokers         brokerdomain.Service
	leads           leaddomain.Service
	credits         creditdomain.Service
	refunds         refunddomain.Service
	invoices        invoicedomain.Service
	recommendations recommendationdomain.Service
	gatelink        gatelinkdomain.Service
	authz           authorization.Service
}

// newTestEnv wires the domain modules the way cmd/leadgate does, on a
// private sqlite database and a fake clock.
func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	conn := dbtest.Open(t)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(now)

	env := &testEnv{clock: fake, staff: node.Generate()}
	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(conn, node),
		fx.Provide(func() *zap.Logger { return zaptest.NewLogger(t) }),
		fx.Provide(func() clock.Clock { return fake }),
		fx.Provide(func() *config.PolicyHolder { return config.NewStaticPolicyHolder(config.DefaultPolicy()) }),
		fx.Supply(config.Config{
			Auth: config.AuthConfig{
				JWTSecret:       "e2e-secret",
				AccessTokenTTL:  time.Hour,
				LoginRatePerMin: 5,
				LoginBurst:      5,
			},
		}),
		ratelimit.Module,
		audit.Module,
		authorization.Module,
		gatelink.Module,
		broker.Module,
		lead.Module,
		credit.Module,
		refund.Module,
		invoice.Module,
		recommendation.Module,
		fx.Populate(
			&env.brokers,
			&env.leads,
			&env.credits,
			&env.refunds,
			&env.invoices,
			&env.recommendations,
			&env.gatelink,
			&env.authz,
		),
	)
	app.RequireStart()
	t.Cleanup(app.RequireStop)
	return env
}

func (e *testEnv) legacyBroker(t *testing.T, name, territory string) brokerdomain.Broker {
	t.Helper()
	trialRate := int64(5000)
	b, err := e.brokers.Create(context.Background(), brokerdomain.CreateBrokerRequest{
		CompanyName:   name,
		Email:         "kontakt@" + name + ".example",
		Territory:     territory,
		ContractStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		BillingMode:   pricing.ModeLegacy,
		TrialLeads:    5,
		TrialRate:     &trialRate,
		StandardRate:  10000,
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) qualifyNew(t *testing.T, brokerID snowflake.ID) (leaddomain.TransitionResult, error) {
	t.Helper()
	ctx := context.Background()
	l, err := e.leads.Create(ctx, leaddomain.CreateLeadRequest{
		BrokerID: &brokerID,
		Postcode: "80331",
		City:     "München",
	})
	require.NoError(t, err)
	return e.leads.Transition(ctx, leaddomain.TransitionRequest{
		LeadID: l.ID,
		UserID: e.staff,
		Status: leaddomain.StatusQualified,
	})
}

func TestTrialLeadsThenStandardRate(t *testing.T) {
	env := newTestEnv(t, time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	b := env.legacyBroker(t, "isar", "80331")

	for i := 0; i < 7; i++ {
		res, err := env.qualifyNew(t, b.ID)
		require.NoError(t, err)
		assert.Nil(t, res.Charge)
	}

	inv, created, err := env.invoices.FindOrCreateMonthly(ctx, invoicedomain.MonthlyRequest{BrokerID: b.ID, Month: 6, Year: 2025})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 7, inv.LeadCount)
	assert.Equal(t, int64(45000), inv.NetAmount)
	assert.Equal(t, int64(53550), inv.GrossAmount)

	html, err := env.invoices.RenderHTML(ctx, inv.ID)
	require.NoError(t, err)
	assert.Contains(t, html, "535,50 €")
}

func TestPausedBrokerKeepsBilledLeadsButGetsNoNewOnes(t *testing.T) {
	env := newTestEnv(t, time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	paused := env.legacyBroker(t, "elbe", "20095")
	active := env.legacyBroker(t, "alster", "22085")

	for i := 0; i < 3; i++ {
		_, err := env.qualifyNew(t, paused.ID)
		require.NoError(t, err)
	}
	env.clock.Advance(time.Hour)
	paused, err := env.brokers.Pause(ctx, paused.ID)
	require.NoError(t, err)

	now := env.clock.Now()
	assert.True(t, contract.IsActiveForBilling(paused.Terms(), 6, 2025, 3, now))
	assert.False(t, contract.CanReceiveNewLeads(paused.Terms(), 6, 2025, now))

	_, err = env.qualifyNew(t, paused.ID)
	assert.ErrorIs(t, err, leaddomain.ErrBrokerUnavailable)

	inv, _, err := env.invoices.FindOrCreateMonthly(ctx, invoicedomain.MonthlyRequest{BrokerID: paused.ID, Month: 6, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 3, inv.LeadCount)
	assert.Equal(t, int64(15000), inv.NetAmount)

	overview, err := env.recommendations.Recommend(ctx, env.staff)
	require.NoError(t, err)
	var ids []snowflake.ID
	for _, s := range overview.Standings {
		ids = append(ids, s.BrokerID)
	}
	assert.Contains(t, ids, active.ID)
	assert.NotContains(t, ids, paused.ID)
}

func TestAgedTopUpsConsumedOrTooYoungAreNotRefundable(t *testing.T) {
	start := time.Date(2025, 3, 22, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	b, err := env.brokers.Create(ctx, brokerdomain.CreateBrokerRequest{
		CompanyName:   "Spree Wohnen",
		Email:         "info@spree.example",
		ContractStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		BillingMode:   pricing.ModeCredits,
	})
	require.NoError(t, err)

	old, err := env.credits.TopUp(ctx, creditdomain.TopUpRequest{BrokerID: b.ID, Amount: 10000})
	require.NoError(t, err)
	env.clock.Advance(50 * 24 * time.Hour)
	young, err := env.credits.TopUp(ctx, creditdomain.TopUpRequest{BrokerID: b.ID, Amount: 10000})
	require.NoError(t, err)
	env.clock.Advance(40 * 24 * time.Hour)

	_, err = env.credits.Adjust(ctx, creditdomain.AdjustRequest{BrokerID: b.ID, Amount: -12000, Description: "Lead-Abrechnung"})
	require.NoError(t, err)

	balance, err := env.credits.Balance(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), balance)

	eligible, err := env.credits.Eligible(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, eligible)

	for _, tx := range []creditdomain.Transaction{old, young} {
		_, err = env.refunds.Create(ctx, refunddomain.CreateRequest{BrokerID: b.ID, TransactionID: tx.ID, Amount: 1000})
		assert.ErrorIs(t, err, refunddomain.ErrNotEligible)
	}
}

func TestStaffLoginAndAuthorization(t *testing.T) {
	env := newTestEnv(t, time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := env.gatelink.CreateUser(ctx, gatelinkdomain.CreateUserRequest{
		Username: "anna",
		Email:    "anna@leadgate.example",
		Password: "geheim-123",
		Role:     "telephonist",
	})
	require.NoError(t, err)

	res, err := env.gatelink.Login(ctx, gatelinkdomain.LoginRequest{Login: "anna", Password: "geheim-123"})
	require.NoError(t, err)

	principal, err := env.gatelink.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, gatelinkdomain.KindUser, principal.Kind())

	assert.NoError(t, env.authz.Authorize(ctx, principal, authorization.ActionLeadQualify))
	assert.ErrorIs(t, env.authz.Authorize(ctx, principal, authorization.ActionRefundDecide), authorization.ErrForbidden)
}
