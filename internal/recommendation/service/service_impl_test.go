package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	brokerrepository "github.com/leadgate/leadgate/internal/broker/repository"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	creditrepository "github.com/leadgate/leadgate/internal/credit/repository"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	leadrepository "github.com/leadgate/leadgate/internal/lead/repository"
	"github.com/leadgate/leadgate/internal/pricing"
	"github.com/leadgate/leadgate/internal/recommendation/domain"
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
	seq   int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&brokerdomain.Broker{},
		&leaddomain.Lead{},
		&creditdomain.Transaction{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	// Wednesday; nine working days remain in June.
	fake := clock.NewFakeClock(time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:         db,
		Log:        zaptest.NewLogger(t),
		Clock:      fake,
		Policy:     config.NewStaticPolicyHolder(config.DefaultPolicy()),
		BrokerRepo: brokerrepository.Provide(),
		LeadRepo:   leadrepository.Provide(),
		CreditRepo: creditrepository.Provide(),
	})
	return &fixture{db: db, svc: svc, clock: fake, node: node, seq: 10000}
}

func (f *fixture) broker(t *testing.T, name string, mutate func(*brokerdomain.Broker)) brokerdomain.Broker {
	t.Helper()
	b := brokerdomain.Broker{
		ID:            f.node.Generate(),
		CompanyName:   name,
		Email:         "kontakt@" + f.node.Generate().String() + ".example",
		BillingCode:   f.node.Generate().String(),
		ContractStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		BillingMode:   pricing.ModeLegacy,
		StandardRate:  10000,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	if mutate != nil {
		mutate(&b)
	}
	require.NoError(t, brokerrepository.Provide().Insert(context.Background(), f.db, &b))
	return b
}

func (f *fixture) openLead(t *testing.T, postcode string, age time.Duration, lockedBy *snowflake.ID) leaddomain.Lead {
	t.Helper()
	f.seq++
	created := f.clock.Now().Add(-age)
	l := leaddomain.Lead{
		ID:         f.node.Generate(),
		LeadNumber: f.seq,
		Status:     leaddomain.StatusUnqualified,
		Postcode:   postcode,
		Checklist:  datatypes.JSONMap{},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	if lockedBy != nil {
		since := f.clock.Now().Add(-5 * time.Minute)
		l.LockedBy = lockedBy
		l.LockedSince = &since
	}
	require.NoError(t, leadrepository.Provide().Insert(context.Background(), f.db, &l))
	return l
}

func TestRecommendRanksBrokersAndSkipsForeignLocks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alster := f.broker(t, "Alster Immobilien", func(b *brokerdomain.Broker) {
		quota := 18
		b.MonthlyQuota = &quota
		b.Territory = "20095,20097"
	})
	open := f.broker(t, "Ohne Gebiet Makler", nil)
	f.broker(t, "Pausiert Makler", func(b *brokerdomain.Broker) { b.Paused = true })
	prepaid := f.broker(t, "Prepaid Makler", func(b *brokerdomain.Broker) {
		first, after := int64(5000), int64(7500)
		b.BillingMode = pricing.ModeCredits
		b.ContractStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		b.FirstLeadsRate = &first
		b.AfterFirstRate = &after
		b.Territory = "50667"
	})
	require.NoError(t, f.db.Create(&creditdomain.Transaction{
		ID: f.node.Generate(), BrokerID: prepaid.ID, Amount: 15000, Type: creditdomain.TypeTopUp, CreatedAt: f.clock.Now(),
	}).Error)

	holder, telephonist := f.node.Generate(), f.node.Generate()
	locked := f.openLead(t, "20095", 72*time.Hour, &holder)
	f.openLead(t, "80331", 48*time.Hour, nil)
	hamburg := f.openLead(t, "20097", 24*time.Hour, nil)

	overview, err := f.svc.Recommend(ctx, telephonist)
	require.NoError(t, err)
	assert.Equal(t, 9, overview.WorkingDaysLeft)
	assert.Equal(t, time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC), overview.Date)

	require.Len(t, overview.Standings, 3)
	assert.Equal(t, alster.ID, overview.Standings[0].BrokerID)
	assert.Equal(t, domain.PriorityHigh, overview.Standings[0].Priority)
	assert.InDelta(t, 2.0, overview.Standings[0].DailyQuota, 1e-9)
	assert.Equal(t, open.ID, overview.Standings[1].BrokerID)
	assert.True(t, overview.Standings[1].Unlimited())
	assert.Equal(t, prepaid.ID, overview.Standings[2].BrokerID)
	require.NotNil(t, overview.Standings[2].Remaining)
	assert.Equal(t, 3, *overview.Standings[2].Remaining)

	assert.Equal(t, 21, overview.TotalRemaining)
	assert.InDelta(t, 21.0/9.0, overview.MinimumDailyRate, 1e-9)

	require.NotNil(t, overview.Recommendation)
	assert.Equal(t, hamburg.ID, overview.Recommendation.LeadID)
	assert.Equal(t, alster.ID, *overview.Recommendation.BrokerID)
	assert.Equal(t, domain.MatchTerritory, overview.Recommendation.Match)

	mine, err := f.svc.Recommend(ctx, holder)
	require.NoError(t, err)
	require.NotNil(t, mine.Recommendation)
	assert.Equal(t, locked.ID, mine.Recommendation.LeadID)
}

func TestRecommendCountsTodaysDeliveries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	quota := 9
	broker := f.broker(t, "Isar Makler", func(b *brokerdomain.Broker) { b.MonthlyQuota = &quota })
	brokerID := broker.ID
	today := f.clock.Now().Add(-time.Hour)
	require.NoError(t, leadrepository.Provide().Insert(ctx, f.db, &leaddomain.Lead{
		ID: f.node.Generate(), LeadNumber: 9000, BrokerID: &brokerID, Status: leaddomain.StatusQualified,
		QualifiedAt: &today, Checklist: datatypes.JSONMap{}, CreatedAt: today, UpdatedAt: today,
	}))
	f.openLead(t, "80331", time.Hour, nil)

	overview, err := f.svc.Recommend(ctx, 0)
	require.NoError(t, err)
	require.Len(t, overview.Standings, 1)
	standing := overview.Standings[0]
	assert.Equal(t, 1, standing.DeliveredMonth)
	assert.Equal(t, 1, standing.DeliveredToday)
	assert.Equal(t, 8, *standing.Remaining)
	assert.Zero(t, standing.Deficit)
	assert.Equal(t, domain.PriorityLow, standing.Priority)
}

func TestRecommendWithoutLeadsOrBrokers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	overview, err := f.svc.Recommend(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, overview.Recommendation)
	assert.Empty(t, overview.Standings)

	lead := f.openLead(t, "", time.Hour, nil)
	overview, err = f.svc.Recommend(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, overview.Recommendation)
	assert.Equal(t, lead.ID, overview.Recommendation.LeadID)
	assert.Equal(t, domain.MatchNoBroker, overview.Recommendation.Match)
}
