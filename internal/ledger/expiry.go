package ledger

import (
	"sort"
	"time"

	"pointsledger/internal/models"
)

type ExpiryTracker struct{}

func (ExpiryTracker) AddLot(account *models.Account, amount int, earnedAt time.Time, expiryDate time.Time) {
	account.ExpiringLots = append(account.ExpiringLots, models.PointLot{
		Amount:     amount,
		EarnedAt:   earnedAt,
		ExpiryDate: expiryDate,
	})
	sort.SliceStable(account.ExpiringLots, func(i, j int) bool {
		return account.ExpiringLots[i].ExpiryDate.Before(account.ExpiringLots[j].ExpiryDate)
	})
}

func (ExpiryTracker) ExpiringWithin(account *models.Account, days int, now time.Time) int {
	horizon := now.AddDate(0, 0, days)
	total := 0
	for _, lot := range account.ExpiringLots {
		if !lot.ExpiryDate.After(horizon) {
			total += lot.Amount
		}
	}
	return total
}

// SweepExpired drops every lot whose expiry date has passed and takes the
// points out of the available balance. The balance never goes below zero.
func (ExpiryTracker) SweepExpired(account *models.Account, now time.Time) int {
	removed := 0
	kept := account.ExpiringLots[:0]
	for _, lot := range account.ExpiringLots {
		if !lot.ExpiryDate.After(now) {
			removed += lot.Amount
			continue
		}
		kept = append(kept, lot)
	}
	account.ExpiringLots = kept

	if removed > account.AvailablePoints {
		removed = account.AvailablePoints
	}
	if removed == 0 {
		return 0
	}

	account.AvailablePoints -= removed
	account.ExpiredPoints += removed
	account.LastUpdated = now
	return removed
}

// Consume spends points from the lots that expire first.
func (ExpiryTracker) Consume(account *models.Account, amount int) {
	remaining := amount
	kept := account.ExpiringLots[:0]
	for _, lot := range account.ExpiringLots {
		if remaining > 0 {
			if lot.Amount <= remaining {
				remaining -= lot.Amount
				continue
			}
			lot.Amount -= remaining
			remaining = 0
		}
		kept = append(kept, lot)
	}
	account.ExpiringLots = kept
}
