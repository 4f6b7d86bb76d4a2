package models

import (
	"time"
)

type ReferralStatus string

const (
	REFERRAL_PENDING   ReferralStatus = "pending"
	REFERRAL_COMPLETED ReferralStatus = "completed"
)

type ReferralCode struct {
	Code       string    `json:"code"`
	UserID     string    `json:"user_id"`
	ShareLink  string    `json:"share_link"`
	UsageCount int       `json:"usage_count"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

type Referral struct {
	ReferrerID      string         `json:"referrer_id"`
	RefereeID       string         `json:"referee_id"`
	ReferralCode    string         `json:"referral_code"`
	Status          ReferralStatus `json:"status"`
	IsRewardClaimed bool           `json:"is_reward_claimed"`
	RewardAmount    *int           `json:"reward_amount"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at"`
}
