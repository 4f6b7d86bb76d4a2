package models

import (
	"time"
)

type RedemptionStatus string

const (
	REDEMPTION_APPROVED RedemptionStatus = "approved"
	REDEMPTION_REDEEMED RedemptionStatus = "redeemed"
	REDEMPTION_EXPIRED  RedemptionStatus = "expired"
)

type Redemption struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	RewardID       string           `json:"reward_id"`
	PointsUsed     int              `json:"points_used"`
	Status         RedemptionStatus `json:"status"`
	RedemptionCode string           `json:"redemption_code"`
	ExpiryDate     time.Time        `json:"expiry_date"`
	CreatedAt      time.Time        `json:"created_at"`
	RedeemedAt     *time.Time       `json:"redeemed_at"`
	UsedAt         *time.Time       `json:"used_at"`
	OrderID        *string          `json:"order_id"`
}
