package domain

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
)

const daysPerMonth = 30

// Balance is the plain sum of all amounts.
func Balance(txs []Transaction) int64 {
	var total int64
	for _, tx := range txs {
		total += tx.Amount
	}
	return total
}

// Eligible simulates FIFO consumption of top-ups and returns the remainders
// that are old enough to be paid out. A month counts as 30 days.
//
// All consumption is charged against the oldest aged top-up first,
// regardless of which charge actually spent which money. A payout that repays
// an aged top-up is added to the consumption pool a second time, and top-ups
// that were already paid out are never offered again.
func Eligible(txs []Transaction, now time.Time, minAgeMonths int) []EligibleTopUp {
	cutoff := now.AddDate(0, 0, -minAgeMonths*daysPerMonth)

	var aged []Transaction
	for _, tx := range txs {
		if tx.Amount > 0 && tx.Type.FundsBalance() && !tx.CreatedAt.After(cutoff) {
			aged = append(aged, tx)
		}
	}
	sort.SliceStable(aged, func(i, j int) bool {
		if aged[i].CreatedAt.Equal(aged[j].CreatedAt) {
			return aged[i].ID < aged[j].ID
		}
		return aged[i].CreatedAt.Before(aged[j].CreatedAt)
	})

	agedIDs := make(map[snowflake.ID]struct{}, len(aged))
	for _, tx := range aged {
		agedIDs[tx.ID] = struct{}{}
	}

	var consumed int64
	paidOut := map[snowflake.ID]struct{}{}
	for _, tx := range txs {
		if tx.Amount < 0 {
			consumed += -tx.Amount
		}
		if tx.Type != TypePayout || tx.ReferenceID == nil {
			continue
		}
		paidOut[*tx.ReferenceID] = struct{}{}
		if _, ok := agedIDs[*tx.ReferenceID]; ok {
			consumed += abs(tx.Amount)
		}
	}

	var out []EligibleTopUp
	for _, topUp := range aged {
		if _, ok := paidOut[topUp.ID]; ok {
			continue
		}
		if consumed >= topUp.Amount {
			consumed -= topUp.Amount
			continue
		}
		remaining := topUp.Amount - consumed
		consumed = 0
		out = append(out, EligibleTopUp{
			TransactionID:  topUp.ID,
			Amount:         remaining,
			OriginalAmount: topUp.Amount,
			Type:           topUp.Type,
			Description:    topUp.Description,
			CreatedAt:      topUp.CreatedAt,
			AgeDays:        int(now.Sub(topUp.CreatedAt).Hours() / 24),
		})
	}
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
