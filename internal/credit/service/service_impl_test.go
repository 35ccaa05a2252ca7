package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	auditrepository "github.com/leadgate/leadgate/internal/audit/repository"
	auditservice "github.com/leadgate/leadgate/internal/audit/service"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	brokerrepository "github.com/leadgate/leadgate/internal/broker/repository"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/credit/domain"
	"github.com/leadgate/leadgate/internal/credit/repository"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	leadrepository "github.com/leadgate/leadgate/internal/lead/repository"
	"github.com/leadgate/leadgate/internal/pricing"
	refunddomain "github.com/leadgate/leadgate/internal/refund/domain"
	"github.com/leadgate/leadgate/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var june10 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	clock *clock.FakeClock
	node  *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&brokerdomain.Broker{},
		&leaddomain.Lead{},
		&domain.Transaction{},
		&refunddomain.Request{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(june10)

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	svc := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fake,
		Policy:     config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Repo:       repository.Provide(),
		BrokerRepo: brokerrepository.Provide(),
		LeadRepo:   leadrepository.Provide(),
		AuditSvc:   audit,
	})
	return &fixture{db: db, svc: svc, clock: fake, node: node}
}

func (f *fixture) broker(t *testing.T, mode pricing.Mode) brokerdomain.Broker {
	t.Helper()
	first := 2
	firstRate := int64(5000)
	afterRate := int64(7500)
	b := brokerdomain.Broker{
		ID:              f.node.Generate(),
		CompanyName:     "Muster Immobilien",
		Email:           "info@muster.example",
		BillingCode:     "muster-" + f.node.Generate().String(),
		ContractStart:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		BillingMode:     mode,
		FirstLeadsCount: &first,
		FirstLeadsRate:  &firstRate,
		AfterFirstRate:  &afterRate,
		StandardRate:    10000,
		CreatedAt:       june10,
		UpdatedAt:       june10,
	}
	require.NoError(t, brokerrepository.Provide().Insert(context.Background(), f.db, &b))
	return b
}

func (f *fixture) qualifiedLead(t *testing.T, brokerID snowflake.ID, number int64) leaddomain.Lead {
	t.Helper()
	now := f.clock.Now()
	l := leaddomain.Lead{
		ID:          f.node.Generate(),
		LeadNumber:  number,
		BrokerID:    &brokerID,
		Status:      leaddomain.StatusQualified,
		Postcode:    "10115",
		QualifiedAt: &now,
		Checklist:   datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, leadrepository.Provide().Insert(context.Background(), f.db, &l))
	return l
}

func (f *fixture) charge(t *testing.T, b brokerdomain.Broker, l leaddomain.Lead) domain.ChargeOutcome {
	t.Helper()
	outcome, err := f.svc.ChargeLead(context.Background(), nil, domain.ChargeLeadRequest{
		BrokerID:    b.ID,
		LeadID:      l.ID,
		LeadNumber:  l.LeadNumber,
		QualifiedAt: *l.QualifiedAt,
	})
	require.NoError(t, err)
	return outcome
}

func TestTopUpRequiresCreditsMode(t *testing.T) {
	f := setup(t)
	legacy := f.broker(t, pricing.ModeLegacy)

	_, err := f.svc.TopUp(context.Background(), domain.TopUpRequest{BrokerID: legacy.ID, Amount: 1000})
	assert.ErrorIs(t, err, domain.ErrNotCreditsMode)

	_, err = f.svc.TopUp(context.Background(), domain.TopUpRequest{BrokerID: f.node.Generate(), Amount: 1000})
	assert.ErrorIs(t, err, domain.ErrBrokerNotFound)
}

func TestTopUpValidatesInput(t *testing.T) {
	f := setup(t)
	b := f.broker(t, pricing.ModeCredits)

	_, err := f.svc.TopUp(context.Background(), domain.TopUpRequest{BrokerID: b.ID, Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.TopUp(context.Background(), domain.TopUpRequest{BrokerID: b.ID, Amount: 100, Type: domain.TypeLeadCharge})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = f.svc.Adjust(context.Background(), domain.AdjustRequest{BrokerID: b.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestOnlinePaymentKeepsReferenceAndAudits(t *testing.T) {
	f := setup(t)
	b := f.broker(t, pricing.ModeCredits)

	tx, err := f.svc.TopUp(context.Background(), domain.TopUpRequest{
		BrokerID:         b.ID,
		Amount:           25000,
		Type:             domain.TypeOnlinePayment,
		PaymentReference: "pi_3Nabcdef12345678",
		PaymentStatus:    "succeeded",
	})
	require.NoError(t, err)
	require.NotNil(t, tx.PaymentReference)
	assert.Equal(t, "pi_3Nabcdef12345678", *tx.PaymentReference)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "credit.online_payment").First(&entry).Error)
	assert.Equal(t, "pi_****5678", entry.Metadata["payment_reference"])
}

func TestChargeLeadWalksPriceTiers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.broker(t, pricing.ModeCredits)
	_, err := f.svc.TopUp(ctx, domain.TopUpRequest{BrokerID: b.ID, Amount: 100000})
	require.NoError(t, err)

	var prices []int64
	for i := int64(0); i < 3; i++ {
		out := f.charge(t, b, f.qualifiedLead(t, b.ID, 10000+i))
		require.Equal(t, domain.ChargeCharged, out.Status)
		require.NotNil(t, out.Transaction)
		assert.Equal(t, -out.Price, out.Transaction.Amount)
		prices = append(prices, out.Price)
	}
	assert.Equal(t, []int64{5000, 5000, 7500}, prices)

	balance, err := f.svc.Balance(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000-17500), balance)
}

func TestChargeLeadIsNotRepeated(t *testing.T) {
	f := setup(t)
	b := f.broker(t, pricing.ModeCredits)
	_, err := f.svc.TopUp(context.Background(), domain.TopUpRequest{BrokerID: b.ID, Amount: 20000})
	require.NoError(t, err)

	l := f.qualifiedLead(t, b.ID, 10000)
	assert.Equal(t, domain.ChargeCharged, f.charge(t, b, l).Status)

	again := f.charge(t, b, l)
	assert.Equal(t, domain.ChargeSkipped, again.Status)
	assert.Nil(t, again.Transaction)

	txs, err := f.svc.ListTransactions(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestChargeLeadReportsInsufficientBalance(t *testing.T) {
	f := setup(t)
	b := f.broker(t, pricing.ModeCredits)
	_, err := f.svc.TopUp(context.Background(), domain.TopUpRequest{BrokerID: b.ID, Amount: 1000})
	require.NoError(t, err)

	out := f.charge(t, b, f.qualifiedLead(t, b.ID, 10000))
	assert.True(t, out.Blocked())
	assert.Equal(t, int64(5000), out.Price)
	assert.Equal(t, int64(1000), out.Balance)

	balance, err := f.svc.Balance(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestChargeLeadSkipsLegacyBrokers(t *testing.T) {
	f := setup(t)
	b := f.broker(t, pricing.ModeLegacy)

	out := f.charge(t, b, f.qualifiedLead(t, b.ID, 10000))
	assert.Equal(t, domain.ChargeSkipped, out.Status)
}

func TestRefundLeadReversesOpenCharge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.broker(t, pricing.ModeCredits)
	_, err := f.svc.TopUp(ctx, domain.TopUpRequest{BrokerID: b.ID, Amount: 10000})
	require.NoError(t, err)
	l := f.qualifiedLead(t, b.ID, 10000)
	require.Equal(t, domain.ChargeCharged, f.charge(t, b, l).Status)

	refund, err := f.svc.RefundLead(ctx, nil, b.ID, l.ID, "")
	require.NoError(t, err)
	require.NotNil(t, refund)
	assert.Equal(t, domain.TypeLeadRefund, refund.Type)
	assert.Equal(t, int64(5000), refund.Amount)

	again, err := f.svc.RefundLead(ctx, nil, b.ID, l.ID, "")
	require.NoError(t, err)
	assert.Nil(t, again)

	balance, err := f.svc.Balance(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance)
}

func TestCreatePayoutRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.broker(t, pricing.ModeCredits)
	other := f.broker(t, pricing.ModeCredits)

	topUp, err := f.svc.TopUp(ctx, domain.TopUpRequest{BrokerID: b.ID, Amount: 10000})
	require.NoError(t, err)
	foreign, err := f.svc.TopUp(ctx, domain.TopUpRequest{BrokerID: other.ID, Amount: 10000})
	require.NoError(t, err)

	_, err = f.svc.CreatePayout(ctx, nil, domain.PayoutRequest{BrokerID: b.ID, TransactionID: foreign.ID, Amount: 100})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = f.svc.CreatePayout(ctx, nil, domain.PayoutRequest{BrokerID: b.ID, TransactionID: topUp.ID, Amount: 20000})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	payout, err := f.svc.CreatePayout(ctx, nil, domain.PayoutRequest{BrokerID: b.ID, TransactionID: topUp.ID, Amount: 4000})
	require.NoError(t, err)
	assert.Equal(t, int64(-4000), payout.Amount)
	require.NotNil(t, payout.ReferenceID)
	assert.Equal(t, topUp.ID, *payout.ReferenceID)

	_, err = f.svc.CreatePayout(ctx, nil, domain.PayoutRequest{BrokerID: b.ID, TransactionID: topUp.ID, Amount: 1000})
	assert.ErrorIs(t, err, domain.ErrAlreadyPaidOut)
}

func TestEligibleAppliesAgeAndHidesOpenRequests(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.broker(t, pricing.ModeCredits)

	_, err := f.svc.TopUp(ctx, domain.TopUpRequest{BrokerID: b.ID, Amount: 10000})
	require.NoError(t, err)
	f.clock.Advance(50 * 24 * time.Hour)
	_, err = f.svc.TopUp(ctx, domain.TopUpRequest{BrokerID: b.ID, Amount: 10000})
	require.NoError(t, err)
	f.clock.Advance(40 * 24 * time.Hour)

	_, err = f.svc.Adjust(ctx, domain.AdjustRequest{BrokerID: b.ID, Amount: -12000, Description: "lead batch"})
	require.NoError(t, err)

	eligible, err := f.svc.Eligible(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, eligible)

	f.clock.Advance(30 * 24 * time.Hour)
	eligible, err = f.svc.Eligible(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, int64(8000), eligible[0].Amount)

	require.NoError(t, f.db.Create(&refunddomain.Request{
		ID:            f.node.Generate(),
		BrokerID:      b.ID,
		TransactionID: eligible[0].TransactionID,
		Amount:        1000,
		Status:        refunddomain.StatusPending,
		CreatedAt:     f.clock.Now(),
	}).Error)
	eligible, err = f.svc.Eligible(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}
