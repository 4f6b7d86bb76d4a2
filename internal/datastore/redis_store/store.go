package redis_store

import (
	"context"
	"errors"

	"pointsledger/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrClusterUnsupported is returned for cluster clients. A changeset spans
// several users' keys, and MULTI/EXEC cannot cover keys in different slots.
var ErrClusterUnsupported = errors.New("redis_store: cluster clients are not supported, use a single node or a failover client")

// Store keeps every ledger record as a msgpack blob in redis.
type Store struct {
	db redis.UniversalClient
}

func NewStore(db redis.UniversalClient) (*Store, error) {
	if _, ok := db.(*redis.ClusterClient); ok {
		return nil, ErrClusterUnsupported
	}
	return &Store{db}, nil
}

func (store *Store) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	return GetAccount(ctx, store.db, userID)
}

func (store *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	return ListAccountIDs(ctx, store.db)
}

func (store *Store) ListTransactions(ctx context.Context, userID string) ([]*models.Transaction, error) {
	return ListTransactions(ctx, store.db, userID)
}

func (store *Store) GetReward(ctx context.Context, rewardID string) (*models.RewardItem, error) {
	return GetReward(ctx, store.db, rewardID)
}

func (store *Store) ListRewards(ctx context.Context) ([]*models.RewardItem, error) {
	return ListRewards(ctx, store.db)
}

func (store *Store) GetRedemption(ctx context.Context, redemptionID string) (*models.Redemption, error) {
	return GetRedemption(ctx, store.db, redemptionID)
}

func (store *Store) ListRedemptions(ctx context.Context, userID string) ([]*models.Redemption, error) {
	return ListRedemptions(ctx, store.db, userID)
}

func (store *Store) ReserveRedemptionCode(ctx context.Context, code string, redemptionID string) (bool, error) {
	return ReserveRedemptionCode(ctx, store.db, code, redemptionID)
}

func (store *Store) ReleaseRedemptionCode(ctx context.Context, code string, redemptionID string) error {
	return ReleaseRedemptionCode(ctx, store.db, code, redemptionID)
}

func (store *Store) GetReferralCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	return GetReferralCode(ctx, store.db, code)
}

func (store *Store) GetReferralCodeByUser(ctx context.Context, userID string) (*models.ReferralCode, error) {
	return GetReferralCodeByUser(ctx, store.db, userID)
}

func (store *Store) CreateReferralCode(ctx context.Context, code *models.ReferralCode) (bool, error) {
	return CreateReferralCode(ctx, store.db, code)
}

func (store *Store) GetReferral(ctx context.Context, code string, refereeID string) (*models.Referral, error) {
	return GetReferral(ctx, store.db, code, refereeID)
}

func (store *Store) GetReferralByReferee(ctx context.Context, refereeID string) (*models.Referral, error) {
	return GetReferralByReferee(ctx, store.db, refereeID)
}

// Commit writes the changeset in a single MULTI/EXEC so readers never see a
// claimed referral without its credited points, or a debited account without
// its redemption.
func (store *Store) Commit(ctx context.Context, changes *models.Changeset) error {
	_, err := store.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, v := range changes.Accounts {
			if err := SaveAccount(ctx, pipe, v); err != nil {
				return err
			}
		}
		for _, v := range changes.Transactions {
			if err := AppendTransaction(ctx, pipe, v); err != nil {
				return err
			}
		}
		for _, v := range changes.Rewards {
			if err := SaveReward(ctx, pipe, v); err != nil {
				return err
			}
		}
		for _, v := range changes.Redemptions {
			if err := SaveRedemption(ctx, pipe, v); err != nil {
				return err
			}
		}
		for _, v := range changes.Referrals {
			if err := SaveReferral(ctx, pipe, v); err != nil {
				return err
			}
		}
		for _, v := range changes.ReferralCodes {
			if err := SaveReferralCode(ctx, pipe, v); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}
