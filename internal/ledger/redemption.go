package ledger

import (
	"errors"
	"time"

	"pointsledger/internal/models"
)

var errCodeSpaceExhausted = errors.New("could not generate a unique code")

type RedemptionEngine struct {
	expiry       ExpiryTracker
	newID        func() string
	newCode      func() string
	codeAttempts int
}

func NewRedemptionEngine(newID func() string, newCode func() string, codeAttempts int) *RedemptionEngine {
	if codeAttempts <= 0 {
		codeAttempts = 1
	}
	return &RedemptionEngine{newID: newID, newCode: newCode, codeAttempts: codeAttempts}
}

// Redeem spends reward.PointsCost from the account and takes one unit of a
// limited reward. reserve claims a redemption code and reports false when the
// code is already taken. Callers hold the account and reward locks.
func (engine *RedemptionEngine) Redeem(account *models.Account, reward *models.RewardItem, reserve func(code string, redemptionID string) (bool, error), now time.Time) (*models.Redemption, *models.Transaction, error) {
	if reward.PointsCost <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if account.AvailablePoints < reward.PointsCost {
		return nil, nil, ErrInsufficientPoints
	}
	if !reward.InStock() {
		return nil, nil, ErrOutOfStock
	}

	redemptionID := engine.newID()
	code := ""
	for i := 0; i < engine.codeAttempts; i++ {
		candidate := engine.newCode()
		ok, err := reserve(candidate, redemptionID)
		if err != nil {
			return nil, nil, storageError(err)
		}
		if ok {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, nil, storageError(errCodeSpaceExhausted)
	}

	redemption := &models.Redemption{
		ID:             redemptionID,
		UserID:         account.UserID,
		RewardID:       reward.ID,
		PointsUsed:     reward.PointsCost,
		Status:         models.REDEMPTION_APPROVED,
		RedemptionCode: code,
		ExpiryDate:     now.AddDate(0, 0, reward.ValidityDays),
		CreatedAt:      now,
	}

	ref := redemption.ID
	tx := &models.Transaction{
		ID:          engine.newID(),
		UserID:      account.UserID,
		Type:        models.TRANSACTION_REDEEMED,
		Amount:      -reward.PointsCost,
		BaseAmount:  reward.PointsCost,
		Multiplier:  1,
		Source:      models.SOURCE_REDEMPTION,
		Description: "Redeemed " + reward.Name,
		ReferenceID: &ref,
		Status:      models.TRANSACTION_STATUS_COMPLETED,
		CreatedAt:   now,
	}

	account.AvailablePoints -= reward.PointsCost
	account.UsedPoints += reward.PointsCost
	engine.expiry.Consume(account, reward.PointsCost)
	account.LastUpdated = now

	if reward.IsLimited {
		remaining := *reward.RemainingQuantity - 1
		reward.RemainingQuantity = &remaining
	}

	return redemption, tx, nil
}

// Use moves an approved redemption to redeemed. A redemption used after its
// expiry date becomes expired instead.
func (engine *RedemptionEngine) Use(redemption *models.Redemption, orderID *string, now time.Time) error {
	if redemption.Status != models.REDEMPTION_APPROVED {
		return ErrInvalidState
	}

	if now.After(redemption.ExpiryDate) {
		redemption.Status = models.REDEMPTION_EXPIRED
		return ErrRedemptionExpired
	}

	redemption.Status = models.REDEMPTION_REDEEMED
	redemption.RedeemedAt = &now
	redemption.UsedAt = &now
	redemption.OrderID = orderID
	return nil
}
