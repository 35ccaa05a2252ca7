package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	auditrepository "github.com/leadgate/leadgate/internal/audit/repository"
	auditservice "github.com/leadgate/leadgate/internal/audit/service"
	"github.com/leadgate/leadgate/internal/broker/domain"
	"github.com/leadgate/leadgate/internal/broker/repository"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/contract"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	invoicedomain "github.com/leadgate/leadgate/internal/invoice/domain"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	"github.com/leadgate/leadgate/internal/pricing"
	refunddomain "github.com/leadgate/leadgate/internal/refund/domain"
	"github.com/leadgate/leadgate/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	clock *clock.FakeClock
	node  *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&domain.Broker{},
		&leaddomain.Lead{},
		&creditdomain.Transaction{},
		&refunddomain.Request{},
		&invoicedomain.Invoice{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  fake,
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Repo:   repository.Provide(),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Repo:  auditrepository.Provide(),
		}),
	})
	return &fixture{db: db, svc: svc, clock: fake, node: node}
}

func legacyRequest(company string) domain.CreateBrokerRequest {
	trialRate := int64(5000)
	return domain.CreateBrokerRequest{
		CompanyName:   company,
		Email:         "kontakt@makler.example",
		Territory:     " 80331, 80333 ,,81675",
		ContractStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		BillingMode:   pricing.ModeLegacy,
		TrialLeads:    5,
		TrialRate:     &trialRate,
		StandardRate:  10000,
	}
}

func TestCreateDerivesBillingCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, legacyRequest("Sonnenhof Immobilien GmbH"))
	require.NoError(t, err)
	assert.Equal(t, "sonnenhof-immobilien-gmbh", first.BillingCode)
	assert.Equal(t, "80331,80333,81675", first.Territory)
	assert.Equal(t, []string{"80331", "80333", "81675"}, first.TerritoryCodes())

	second, err := f.svc.Create(ctx, legacyRequest("Sonnenhof Immobilien GmbH"))
	require.NoError(t, err)
	assert.Equal(t, "sonnenhof-immobilien-gmbh-2", second.BillingCode)

	explicit := legacyRequest("Anders GmbH")
	explicit.BillingCode = first.BillingCode
	_, err = f.svc.Create(ctx, explicit)
	assert.ErrorIs(t, err, domain.ErrBillingCodeTaken)
}

func TestCreateValidates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := legacyRequest(" ")
	_, err := f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidCompanyName)

	req = legacyRequest("Nord Immobilien")
	req.Email = "kein-at"
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	req = legacyRequest("Nord Immobilien")
	req.StandardRate = 0
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	req = legacyRequest("Nord Immobilien")
	req.BillingMode = pricing.Mode("prepaid")
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidBillingMode)
}

func TestCreditsModeTakesPolicyDefaults(t *testing.T) {
	f := setup(t)

	broker, err := f.svc.Create(context.Background(), domain.CreateBrokerRequest{
		CompanyName:   "Spree Wohnen",
		Email:         "info@spree.example",
		ContractStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		BillingMode:   pricing.ModeCredits,
	})
	require.NoError(t, err)
	assert.True(t, broker.UsesCredits())
	assert.Equal(t, int64(10000), broker.StandardRate)
	require.NotNil(t, broker.FirstLeadsRate)
	assert.Equal(t, int64(5000), *broker.FirstLeadsRate)
	require.NotNil(t, broker.AfterFirstRate)
	assert.Equal(t, int64(7500), *broker.AfterFirstRate)
	assert.Nil(t, broker.FirstLeadsCount)
}

func TestPauseResumeTerminate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	broker, err := f.svc.Create(ctx, legacyRequest("Elbe Makler"))
	require.NoError(t, err)

	paused, err := f.svc.Pause(ctx, broker.ID)
	require.NoError(t, err)
	assert.True(t, paused.Paused)
	assert.False(t, contract.CanReceiveNewLeads(paused.Terms(), 6, 2025, f.clock.Now()))

	resumed, err := f.svc.Resume(ctx, broker.ID)
	require.NoError(t, err)
	assert.False(t, resumed.Paused)

	_, err = f.svc.Terminate(ctx, broker.ID, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, domain.ErrInvalidContract)

	terminated, err := f.svc.Terminate(ctx, broker.ID, time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, terminated.ContractEnd)
	assert.True(t, contract.CanReceiveNewLeads(terminated.Terms(), 6, 2025, f.clock.Now()))
	assert.False(t, contract.CanReceiveNewLeads(terminated.Terms(), 7, 2025, f.clock.Now()))

	stored, err := f.svc.Get(ctx, broker.ID)
	require.NoError(t, err)
	assert.Equal(t, terminated.ContractEnd.Unix(), stored.ContractEnd.Unix())

	_, err = f.svc.Pause(ctx, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePricingSwitchesMode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	broker, err := f.svc.Create(ctx, legacyRequest("Rhein Immobilien"))
	require.NoError(t, err)

	count := 3
	updated, err := f.svc.UpdatePricing(ctx, domain.UpdatePricingRequest{
		ID:              broker.ID,
		BillingMode:     pricing.ModeCredits,
		FirstLeadsCount: &count,
		StandardRate:    12000,
	})
	require.NoError(t, err)
	assert.True(t, updated.UsesCredits())
	assert.Equal(t, int64(12000), updated.StandardRate)
	assert.Equal(t, 5, updated.TrialLeads)
}

func TestDeleteCleansUpDependents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	broker, err := f.svc.Create(ctx, legacyRequest("Main Makler"))
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, legacyRequest("Neckar Makler"))
	require.NoError(t, err)

	now := f.clock.Now()
	brokerID := broker.ID
	otherID := other.ID
	require.NoError(t, f.db.Create(&leaddomain.Lead{
		ID: f.node.Generate(), LeadNumber: 10000, BrokerID: &brokerID, Status: leaddomain.StatusDelivered,
		Checklist: datatypes.JSONMap{}, CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, f.db.Create(&leaddomain.Lead{
		ID: f.node.Generate(), LeadNumber: 10001, BrokerID: &otherID, Status: leaddomain.StatusDelivered,
		Checklist: datatypes.JSONMap{}, CreatedAt: now, UpdatedAt: now,
	}).Error)
	topUp := creditdomain.Transaction{
		ID: f.node.Generate(), BrokerID: brokerID, Amount: 10000, Type: creditdomain.TypeTopUp, CreatedAt: now,
	}
	require.NoError(t, f.db.Create(&topUp).Error)
	require.NoError(t, f.db.Create(&refunddomain.Request{
		ID: f.node.Generate(), BrokerID: brokerID, TransactionID: topUp.ID, Amount: 5000,
		Status: refunddomain.StatusPending, CreatedAt: now,
	}).Error)
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID: f.node.Generate(), Number: "LG-2025-06-MAIN001", Sequence: 1, BrokerID: brokerID,
		Type: invoicedomain.TypeMonthly, Month: 6, Year: 2025, Status: invoicedomain.StatusOpen,
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	require.NoError(t, f.svc.Delete(ctx, broker.ID))

	_, err = f.svc.Get(ctx, broker.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count := func(model any, where string, args ...any) int64 {
		var n int64
		require.NoError(t, f.db.Model(model).Where(where, args...).Count(&n).Error)
		return n
	}
	assert.Zero(t, count(&refunddomain.Request{}, "broker_id = ?", brokerID))
	assert.Zero(t, count(&creditdomain.Transaction{}, "broker_id = ?", brokerID))
	assert.Zero(t, count(&invoicedomain.Invoice{}, "broker_id = ?", brokerID))
	assert.Zero(t, count(&leaddomain.Lead{}, "broker_id = ?", brokerID))
	assert.Equal(t, int64(2), count(&leaddomain.Lead{}, "1 = 1"))
	assert.Equal(t, int64(1), count(&leaddomain.Lead{}, "broker_id = ?", otherID))

	assert.ErrorIs(t, f.svc.Delete(ctx, broker.ID), domain.ErrNotFound)
}
