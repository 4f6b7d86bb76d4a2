package ledger

import (
	"context"

	"pointsledger/internal/models"
)

// Store is the key-value record store behind the ledger. Lookups of missing
// records return nil and no error.
type Store interface {
	GetAccount(ctx context.Context, userID string) (*models.Account, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	ListTransactions(ctx context.Context, userID string) ([]*models.Transaction, error)

	GetReward(ctx context.Context, rewardID string) (*models.RewardItem, error)
	ListRewards(ctx context.Context) ([]*models.RewardItem, error)

	GetRedemption(ctx context.Context, redemptionID string) (*models.Redemption, error)
	ListRedemptions(ctx context.Context, userID string) ([]*models.Redemption, error)
	ReserveRedemptionCode(ctx context.Context, code string, redemptionID string) (bool, error)
	ReleaseRedemptionCode(ctx context.Context, code string, redemptionID string) error

	GetReferralCode(ctx context.Context, code string) (*models.ReferralCode, error)
	GetReferralCodeByUser(ctx context.Context, userID string) (*models.ReferralCode, error)
	CreateReferralCode(ctx context.Context, code *models.ReferralCode) (bool, error)
	GetReferral(ctx context.Context, code string, refereeID string) (*models.Referral, error)
	GetReferralByReferee(ctx context.Context, refereeID string) (*models.Referral, error)

	Commit(ctx context.Context, changes *models.Changeset) error
}

// Archive receives every committed transaction. It is an audit mirror, the
// store stays the source of truth.
type Archive interface {
	ArchiveTransactions(ctx context.Context, txs []*models.Transaction) error
}

type Notifier interface {
	TierUpgraded(ctx context.Context, account *models.Account, from models.Tier, to models.Tier)
	ReferralCompleted(ctx context.Context, referral *models.Referral)
}
