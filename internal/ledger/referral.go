package ledger

import (
	"net/url"
	"time"

	"pointsledger/internal/models"
)

type ReferralPolicy string

const (
	REFERRAL_POLICY_IMMEDIATE         ReferralPolicy = "immediate"
	REFERRAL_POLICY_ON_FIRST_PURCHASE ReferralPolicy = "on_first_purchase"
)

type ReferralTracker struct {
	earning        *EarningEngine
	newCode        func() string
	shareBaseURL   string
	referrerReward int
	refereeReward  int
	policy         ReferralPolicy
}

func NewReferralTracker(earning *EarningEngine, newCode func() string, shareBaseURL string, referrerReward, refereeReward int, policy ReferralPolicy) *ReferralTracker {
	if policy == "" {
		policy = REFERRAL_POLICY_IMMEDIATE
	}
	return &ReferralTracker{earning, newCode, shareBaseURL, referrerReward, refereeReward, policy}
}

func (tracker *ReferralTracker) Deferred() bool {
	return tracker.policy == REFERRAL_POLICY_ON_FIRST_PURCHASE
}

func (tracker *ReferralTracker) shareLink(code string) string {
	if tracker.shareBaseURL == "" {
		return ""
	}

	u, err := url.Parse(tracker.shareBaseURL)
	if err != nil {
		return tracker.shareBaseURL + "?ref=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set("ref", code)
	u.RawQuery = q.Encode()
	return u.String()
}

// NewCode returns existing when it is still active, a fresh code otherwise.
func (tracker *ReferralTracker) NewCode(existing *models.ReferralCode, userID string, now time.Time) (*models.ReferralCode, bool) {
	if existing != nil && existing.IsActive {
		return existing, false
	}

	code := tracker.newCode()
	return &models.ReferralCode{
		Code:      code,
		UserID:    userID,
		ShareLink: tracker.shareLink(code),
		IsActive:  true,
		CreatedAt: now,
	}, true
}

// Open validates a signup against a referral code. previous is any referral
// already recorded for the referee.
func (tracker *ReferralTracker) Open(code *models.ReferralCode, refereeID string, previous *models.Referral, now time.Time) (*models.Referral, error) {
	if !code.IsActive {
		return nil, ErrReferralCodeInactive
	}
	if code.UserID == refereeID {
		return nil, ErrSelfReferral
	}
	if previous != nil {
		return nil, ErrDuplicateReferral
	}

	return &models.Referral{
		ReferrerID:   code.UserID,
		RefereeID:    refereeID,
		ReferralCode: code.Code,
		Status:       models.REFERRAL_PENDING,
		CreatedAt:    now,
	}, nil
}

// Claim marks the referral rewarded. It fails when the reward was already
// claimed, so a referral pays out at most once.
func (tracker *ReferralTracker) Claim(referral *models.Referral, now time.Time) error {
	if referral.IsRewardClaimed {
		return ErrDuplicateReferral
	}

	amount := tracker.referrerReward
	referral.IsRewardClaimed = true
	referral.Status = models.REFERRAL_COMPLETED
	referral.RewardAmount = &amount
	referral.CompletedAt = &now
	return nil
}

// Reward credits the referrer, and the referee when a referee reward is
// configured. referee may be nil when there is no referee reward.
func (tracker *ReferralTracker) Reward(referral *models.Referral, referrer, referee *models.Account, now time.Time) ([]*models.Transaction, error) {
	var txs []*models.Transaction

	if tracker.referrerReward > 0 {
		tx, err := tracker.earning.Earn(referrer, tracker.referrerReward, models.SOURCE_REFERRAL, "Referral reward", &models.EarnMetadata{
			Referral: &models.ReferralMeta{Code: referral.ReferralCode, RefereeID: referral.RefereeID},
		}, now)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if tracker.refereeReward > 0 && referee != nil {
		tx, err := tracker.earning.Earn(referee, tracker.refereeReward, models.SOURCE_REFERRAL, "Welcome referral bonus", &models.EarnMetadata{
			Referral: &models.ReferralMeta{Code: referral.ReferralCode, RefereeID: referral.RefereeID},
		}, now)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

func (tracker *ReferralTracker) RefereeReward() int {
	return tracker.refereeReward
}
