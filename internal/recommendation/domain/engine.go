package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Rank turns eligible snapshots into standings ordered by priority bucket and
// then by descending deficit. Brokers that cannot receive leads or have
// nothing left to receive this month are dropped.
func Rank(brokers []BrokerSnapshot, workingDaysLeft int) []Standing {
	standings := make([]Standing, 0, len(brokers))
	for _, b := range brokers {
		if !b.CanReceive {
			continue
		}
		if b.Remaining != nil && *b.Remaining <= 0 {
			continue
		}
		standings = append(standings, standingFor(b, workingDaysLeft))
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() < b.Priority.rank()
		}
		if a.Deficit != b.Deficit {
			return a.Deficit > b.Deficit
		}
		if a.BrokerName != b.BrokerName {
			return a.BrokerName < b.BrokerName
		}
		return a.BrokerID < b.BrokerID
	})
	return standings
}

func standingFor(b BrokerSnapshot, workingDaysLeft int) Standing {
	s := Standing{
		BrokerID:        b.BrokerID,
		BrokerName:      b.Name,
		Target:          b.Target,
		Remaining:       b.Remaining,
		DeliveredMonth:  b.DeliveredMonth,
		DeliveredToday:  b.DeliveredToday,
		WorkingDaysLeft: workingDaysLeft,
		territory:       b.Territory,
	}

	if b.Remaining == nil {
		s.Deficit = 1
		s.Priority = PriorityNormal
		return s
	}

	remaining := float64(*b.Remaining)
	if workingDaysLeft > 0 {
		s.DailyQuota = remaining / float64(workingDaysLeft)
	} else {
		s.DailyQuota = remaining
	}
	s.Deficit = s.DailyQuota - float64(b.DeliveredToday)
	if s.Deficit < 0 {
		s.Deficit = 0
	}

	switch {
	case s.Deficit == 0:
		s.Priority = PriorityLow
	case s.DailyQuota >= 1:
		s.Priority = PriorityHigh
	default:
		s.Priority = PriorityNormal
	}
	return s
}

// Pick walks the ranking and returns the oldest open lead in the territory of
// the first broker that has one. Without a territory match the oldest lead
// goes to the top broker; without any eligible broker it is returned alone.
func Pick(standings []Standing, leads []LeadSnapshot) *Recommendation {
	if len(leads) == 0 {
		return nil
	}
	ordered := make([]LeadSnapshot, len(leads))
	copy(ordered, leads)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].LeadNumber < ordered[j].LeadNumber
	})

	for _, s := range standings {
		for _, lead := range ordered {
			if !Covers(s.territory, lead.Postcode) {
				continue
			}
			rec := recommendationFor(lead, &s, MatchTerritory)
			rec.Reason = territoryReason(s)
			return rec
		}
	}

	oldest := ordered[0]
	if len(standings) > 0 {
		top := standings[0]
		rec := recommendationFor(oldest, &top, MatchFallbackLead)
		rec.Reason = fmt.Sprintf("Qualifiziere für %s - kein Lead im Gebiet, Zuordnung bitte prüfen", top.BrokerName)
		return rec
	}

	rec := recommendationFor(oldest, nil, MatchNoBroker)
	rec.Reason = "Kein Makler verfügbar - bitte manuell zuordnen"
	return rec
}

// Covers reports whether a broker territory accepts a postcode. An empty
// territory accepts every lead, a non-empty one only listed postcodes.
func Covers(territory []string, postcode string) bool {
	if len(territory) == 0 {
		return true
	}
	postcode = strings.TrimSpace(postcode)
	if postcode == "" {
		return false
	}
	for _, code := range territory {
		if code == postcode {
			return true
		}
	}
	return false
}

// Summarise totals the remaining leads of brokers with a target and spreads
// them over the working days left.
func Summarise(standings []Standing, workingDaysLeft int) (int, float64) {
	total := 0
	for _, s := range standings {
		if s.Remaining != nil && *s.Remaining > 0 {
			total += *s.Remaining
		}
	}
	if workingDaysLeft > 0 {
		return total, float64(total) / float64(workingDaysLeft)
	}
	return total, float64(total)
}

func recommendationFor(lead LeadSnapshot, s *Standing, match Match) *Recommendation {
	rec := &Recommendation{
		LeadID:     lead.ID,
		LeadNumber: lead.LeadNumber,
		Postcode:   lead.Postcode,
		City:       lead.City,
		Priority:   PriorityLow,
		Match:      match,
	}
	if s != nil {
		id := s.BrokerID
		rec.BrokerID = &id
		rec.BrokerName = s.BrokerName
		rec.Priority = s.Priority
		rec.DailyQuota = s.DailyQuota
		rec.Remaining = s.Remaining
	}
	return rec
}

func territoryReason(s Standing) string {
	if s.Unlimited() {
		return fmt.Sprintf("Qualifiziere für %s - unbegrenzte Leads möglich", s.BrokerName)
	}
	if s.DailyQuota > 0 {
		return fmt.Sprintf("Qualifiziere für %s - benötigt %.1f Leads/Tag (heute: %d/%.1f, noch %d im Monat)",
			s.BrokerName, s.DailyQuota, s.DeliveredToday, s.DailyQuota, *s.Remaining)
	}
	return fmt.Sprintf("Qualifiziere für %s - noch %d Leads im Monat", s.BrokerName, *s.Remaining)
}
