package ledger

import (
	"fmt"
	"math"
	"time"

	"pointsledger/internal/models"
)

// MAX_POINTS_PER_EARN caps a single credit after the tier multiplier.
const MAX_POINTS_PER_EARN = 1_000_000_000

type EarningEngine struct {
	calculator       *TierCalculator
	expiry           ExpiryTracker
	pointsExpiryDays int
	tierBonusEnabled bool
	newID            func() string
}

func NewEarningEngine(calculator *TierCalculator, pointsExpiryDays int, tierBonusEnabled bool, newID func() string) *EarningEngine {
	return &EarningEngine{
		calculator:       calculator,
		pointsExpiryDays: pointsExpiryDays,
		tierBonusEnabled: tierBonusEnabled,
		newID:            newID,
	}
}

// Earn credits the account and returns the earned transaction. Purchases are
// multiplied by the account's current tier and floored to whole points.
func (engine *EarningEngine) Earn(account *models.Account, amount int, source models.Source, description string, meta *models.EarnMetadata, now time.Time) (*models.Transaction, error) {
	if amount <= 0 || amount > MAX_POINTS_PER_EARN {
		return nil, ErrInvalidAmount
	}
	if !source.Earnable() {
		return nil, fmt.Errorf("%w: source %q cannot earn points", ErrInvalidAmount, source)
	}
	if err := meta.Validate(source); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	current := engine.calculator.TierFor(account.TotalPoints)
	if tier, ok := engine.calculator.table.ByID(account.CurrentTier); ok {
		current = tier
	}

	multiplier := 1.0
	earned := amount
	if source == models.SOURCE_PURCHASE && engine.tierBonusEnabled {
		multiplier = current.Multiplier
		scaled := math.Floor(float64(amount) * multiplier)
		if scaled > MAX_POINTS_PER_EARN {
			return nil, fmt.Errorf("%w: %d points exceed the per-earn cap", ErrInvalidAmount, int64(scaled))
		}
		earned = int(scaled)
	}
	if earned <= 0 || overflows(account.TotalPoints, earned) || overflows(account.AvailablePoints, earned) || overflows(account.LifetimeEarned, earned) {
		return nil, fmt.Errorf("%w: balance would overflow", ErrInvalidAmount)
	}

	expiryDate := now.AddDate(0, 0, engine.pointsExpiryDays)
	tx := &models.Transaction{
		ID:          engine.newID(),
		UserID:      account.UserID,
		Type:        models.TRANSACTION_EARNED,
		Amount:      earned,
		BaseAmount:  amount,
		Multiplier:  multiplier,
		Source:      source,
		Description: description,
		ReferenceID: meta.ReferenceID(),
		ExpiryDate:  &expiryDate,
		Metadata:    meta,
		Status:      models.TRANSACTION_STATUS_COMPLETED,
		CreatedAt:   now,
	}

	account.TotalPoints += earned
	account.AvailablePoints += earned
	account.LifetimeEarned += earned

	next := engine.calculator.TierFor(account.TotalPoints)
	if next.MinPoints >= current.MinPoints {
		account.CurrentTier = next.ID
	}

	engine.expiry.AddLot(account, earned, now, expiryDate)
	account.LastUpdated = now

	return tx, nil
}

func overflows(balance int, add int) bool {
	return balance > math.MaxInt-add
}
