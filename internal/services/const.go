package services

import (
	"fmt"
	"time"
)

const (
	SERVER_MODE_DEVELOPMENT = "development"
	SERVER_MODE_STAGING     = "staging"
	SERVER_MODE_PRODUCTION  = "production"

	REDEEM_RATE_LIMIT_PER_MINUTE   = 10
	REFERRAL_RATE_LIMIT_PER_MINUTE = 5

	TOKEN_TTL = 24 * time.Hour
)

func LimitKeyRedeem(userID string) string {
	return fmt.Sprintf("limit:redeem:%s", userID)
}

func LimitKeyReferral(userID string) string {
	return fmt.Sprintf("limit:referral:%s", userID)
}
