package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TransactionType string

const (
	TRANSACTION_EARNED   TransactionType = "earned"
	TRANSACTION_REDEEMED TransactionType = "redeemed"
	TRANSACTION_EXPIRED  TransactionType = "expired"
)

type Source string

const (
	SOURCE_SIGNUP       Source = "signup"
	SOURCE_PURCHASE     Source = "purchase"
	SOURCE_REFERRAL     Source = "referral"
	SOURCE_SOCIAL_SHARE Source = "social_share"
	SOURCE_DAILY_LOGIN  Source = "daily_login"
	SOURCE_REVIEW       Source = "review"
	SOURCE_REDEMPTION   Source = "redemption"
	SOURCE_EXPIRY       Source = "expiry"
)

// EarnSources are the sources a caller may earn points from.
var EarnSources = []Source{
	SOURCE_SIGNUP,
	SOURCE_PURCHASE,
	SOURCE_REFERRAL,
	SOURCE_SOCIAL_SHARE,
	SOURCE_DAILY_LOGIN,
	SOURCE_REVIEW,
}

func (s Source) Earnable() bool {
	for _, v := range EarnSources {
		if v == s {
			return true
		}
	}
	return false
}

const TRANSACTION_STATUS_COMPLETED = "completed"

type Transaction struct {
	bun.BaseModel `bun:"table:loyalty_transaction"`
	ID            string          `bun:"id,pk" json:"id"`
	UserID        string          `bun:"user_id" json:"user_id"`
	Type          TransactionType `bun:"type" json:"type"`
	Amount        int             `bun:"amount" json:"amount"`
	BaseAmount    int             `bun:"base_amount" json:"base_amount"`
	Multiplier    float64         `bun:"multiplier" json:"multiplier"`
	Source        Source          `bun:"source" json:"source"`
	Description   string          `bun:"description" json:"description"`
	ReferenceID   *string         `bun:"reference_id" json:"reference_id"`
	ExpiryDate    *time.Time      `bun:"expiry_date" json:"expiry_date"`
	Metadata      *EarnMetadata   `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	Status        string          `bun:"status" json:"status"`
	CreatedAt     time.Time       `bun:"created_at,default:current_timestamp" json:"created_at"`
}
