package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	brokerdomain "github.com/leadgate/leadgate/internal/broker/domain"
	"github.com/leadgate/leadgate/internal/clock"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/contract"
	creditdomain "github.com/leadgate/leadgate/internal/credit/domain"
	leaddomain "github.com/leadgate/leadgate/internal/lead/domain"
	obsmetrics "github.com/leadgate/leadgate/internal/observability/metrics"
	"github.com/leadgate/leadgate/internal/pricing"
	"github.com/leadgate/leadgate/internal/recommendation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Leads in these statuses count as delivered to the broker.
var deliveredStatuses = []leaddomain.Status{leaddomain.StatusQualified, leaddomain.StatusDelivered}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Policy     *config.PolicyHolder
	BrokerRepo brokerdomain.Repository
	LeadRepo   leaddomain.Repository
	CreditRepo creditdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	policy     *config.PolicyHolder
	brokerRepo brokerdomain.Repository
	leadRepo   leaddomain.Repository
	creditRepo creditdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("recommendation.service"),
		clock:      p.Clock,
		policy:     p.Policy,
		brokerRepo: p.BrokerRepo,
		leadRepo:   p.LeadRepo,
		creditRepo: p.CreditRepo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Recommend(ctx context.Context, userID snowflake.ID) (domain.Overview, error) {
	now := s.clock.Now()
	workingDays := contract.WorkingDaysUntilMonthEnd(now)

	brokers, err := s.snapshots(ctx, now)
	if err != nil {
		return domain.Overview{}, err
	}
	leads, err := s.openLeads(ctx, userID, now)
	if err != nil {
		return domain.Overview{}, err
	}

	standings := domain.Rank(brokers, workingDays)
	rec := domain.Pick(standings, leads)
	total, minimum := domain.Summarise(standings, workingDays)

	outcome := "none"
	if rec != nil {
		outcome = string(rec.Match)
	}
	s.obsMetrics.RecordRecommendation(ctx, outcome)

	day, _ := contract.DayBounds(now)
	return domain.Overview{
		Date:             day,
		WorkingDaysLeft:  workingDays,
		Recommendation:   rec,
		Standings:        standings,
		TotalRemaining:   total,
		MinimumDailyRate: minimum,
	}, nil
}

func (s *Service) snapshots(ctx context.Context, now time.Time) ([]domain.BrokerSnapshot, error) {
	month, year := int(now.Month()), now.Year()
	monthFrom, monthTo := contract.MonthBounds(month, year)
	dayFrom, dayTo := contract.DayBounds(now)

	brokers, err := s.brokerRepo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	monthCounts, err := s.countByBroker(ctx, monthFrom, monthTo)
	if err != nil {
		return nil, err
	}
	todayCounts, err := s.countByBroker(ctx, dayFrom, dayTo)
	if err != nil {
		return nil, err
	}

	fallbackFirst := s.policy.Get().Credits.FirstLeadsCount
	out := make([]domain.BrokerSnapshot, 0, len(brokers))
	for _, broker := range brokers {
		snap := domain.BrokerSnapshot{
			BrokerID:       broker.ID,
			Name:           broker.CompanyName,
			Territory:      broker.TerritoryCodes(),
			CanReceive:     contract.CanReceiveNewLeads(broker.Terms(), month, year, now),
			DeliveredMonth: monthCounts[broker.ID],
			DeliveredToday: todayCounts[broker.ID],
		}
		if !snap.CanReceive {
			out = append(out, snap)
			continue
		}

		contractMonth := contract.Month(broker.ContractStart, month, year)
		if broker.UsesCredits() {
			balance, err := s.creditRepo.SumByBroker(ctx, s.db, broker.ID)
			if err != nil {
				return nil, err
			}
			price := pricing.PriceForLead(broker.PricingConfig(fallbackFirst), contractMonth, snap.DeliveredMonth)
			if price > 0 {
				affordable := int(balance / price)
				if affordable < 0 {
					affordable = 0
				}
				snap.Remaining = &affordable
			}
		} else {
			snap.Target = legacyTarget(broker, contractMonth)
			if snap.Target != nil {
				remaining := *snap.Target - snap.DeliveredMonth
				if remaining < 0 {
					remaining = 0
				}
				snap.Remaining = &remaining
			}
		}
		out = append(out, snap)
	}
	return out, nil
}

// legacyTarget is the monthly quota, or the trial size in the first contract
// month. nil means no target.
func legacyTarget(broker *brokerdomain.Broker, contractMonth int) *int {
	if broker.MonthlyQuota != nil {
		target := *broker.MonthlyQuota
		return &target
	}
	if contractMonth == 1 && broker.TrialLeads > 0 {
		target := broker.TrialLeads
		return &target
	}
	return nil
}

func (s *Service) countByBroker(ctx context.Context, from, to time.Time) (map[snowflake.ID]int, error) {
	counts, err := s.leadRepo.CountByBroker(ctx, s.db, deliveredStatuses, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]int, len(counts))
	for _, c := range counts {
		out[c.BrokerID] = c.Count
	}
	return out, nil
}

func (s *Service) openLeads(ctx context.Context, userID snowflake.ID, now time.Time) ([]domain.LeadSnapshot, error) {
	leads, err := s.leadRepo.ListOpenUnassigned(ctx, s.db)
	if err != nil {
		return nil, err
	}
	timeout := s.policy.Get().LockTimeout()
	out := make([]domain.LeadSnapshot, 0, len(leads))
	for _, lead := range leads {
		if leaddomain.IsLocked(lead, userID, now, timeout) {
			continue
		}
		out = append(out, domain.LeadSnapshot{
			ID:         lead.ID,
			LeadNumber: lead.LeadNumber,
			Postcode:   lead.Postcode,
			City:       lead.City,
			CreatedAt:  lead.CreatedAt,
		})
	}
	return out, nil
}
