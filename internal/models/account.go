package models

import (
	"time"
)

type PointLot struct {
	Amount     int       `json:"amount"`
	EarnedAt   time.Time `json:"earned_at"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// Account is the per-user points balance. AvailablePoints always equals
// TotalPoints - UsedPoints - ExpiredPoints and the sum of ExpiringLots.
type Account struct {
	UserID          string     `json:"user_id"`
	TotalPoints     int        `json:"total_points"`
	AvailablePoints int        `json:"available_points"`
	UsedPoints      int        `json:"used_points"`
	ExpiredPoints   int        `json:"expired_points"`
	LifetimeEarned  int        `json:"lifetime_earned"`
	CurrentTier     string     `json:"current_tier"`
	SignupGranted   bool       `json:"signup_granted"`
	ExpiringLots    []PointLot `json:"expiring_lots"`
	CreatedAt       time.Time  `json:"created_at"`
	LastUpdated     time.Time  `json:"last_updated"`
}

func NewAccount(userID string, tierID string, now time.Time) *Account {
	return &Account{
		UserID:       userID,
		CurrentTier:  tierID,
		ExpiringLots: []PointLot{},
		CreatedAt:    now,
		LastUpdated:  now,
	}
}

func (account *Account) Balanced() bool {
	if account.AvailablePoints < 0 {
		return false
	}

	return account.AvailablePoints == account.TotalPoints-account.UsedPoints-account.ExpiredPoints
}
