package ledger

import (
	"context"
	"fmt"

	"pointsledger/internal/models"
	"pointsledger/internal/pkg/caching"

	"github.com/sirupsen/logrus"
)

func LockKeyAccount(userID string) string {
	return fmt.Sprintf("lock:account:%s", userID)
}

func LockKeyReward(rewardID string) string {
	return fmt.Sprintf("lock:reward:%s", rewardID)
}

func LockKeyRedemption(redemptionID string) string {
	return fmt.Sprintf("lock:redemption:%s", redemptionID)
}

func LockKeyReferralCode(code string) string {
	return fmt.Sprintf("lock:referral-code:%s", code)
}

func LockKeyReferee(userID string) string {
	return fmt.Sprintf("lock:referee:%s", userID)
}

func LockKeyReferralOwner(userID string) string {
	return fmt.Sprintf("lock:referral-owner:%s", userID)
}

func (l *Ledger) readReward(ctx context.Context, rewardID string) (*models.RewardItem, error) {
	reward, err := l.store.GetReward(ctx, rewardID)
	if err != nil {
		return nil, storageError(err)
	}
	if reward == nil {
		return nil, ErrRewardNotFound
	}
	return reward, nil
}

// Rewards lists the catalog, served from the cache when one is configured.
func (l *Ledger) Rewards(ctx context.Context) ([]*models.RewardItem, error) {
	load := func() ([]*models.RewardItem, error) {
		return l.store.ListRewards(ctx)
	}

	var (
		rewards []*models.RewardItem
		err     error
	)
	if l.cache == nil {
		rewards, err = load()
	} else {
		rewards, err = caching.UseCache(ctx, l.cache, CACHE_KEY_REWARDS, l.cfg.CatalogCacheTTL, load)
	}
	if err != nil {
		return nil, storageError(err)
	}
	return rewards, nil
}

// PutReward creates or replaces a catalog entry.
func (l *Ledger) PutReward(ctx context.Context, reward *models.RewardItem) (*models.RewardItem, error) {
	if reward.ID == "" {
		return nil, fmt.Errorf("%w: reward id is required", ErrInvalidAmount)
	}
	if reward.PointsCost <= 0 {
		return nil, fmt.Errorf("%w: points cost must be positive", ErrInvalidAmount)
	}
	if reward.ValidityDays < 0 {
		return nil, fmt.Errorf("%w: validity days must not be negative", ErrInvalidAmount)
	}
	if reward.IsLimited {
		if reward.RemainingQuantity == nil || *reward.RemainingQuantity < 0 {
			return nil, fmt.Errorf("%w: limited reward needs a remaining quantity", ErrInvalidAmount)
		}
	} else {
		reward.RemainingQuantity = nil
	}

	unlock, err := l.lock(ctx, LockKeyReward(reward.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := l.commit(ctx, &models.Changeset{Rewards: []*models.RewardItem{reward}}); err != nil {
		return nil, err
	}
	l.invalidateCatalog(ctx)

	l.log.WithFields(logrus.Fields{
		"reward_id": reward.ID,
		"cost":      reward.PointsCost,
	}).Info("reward saved")

	return reward, nil
}

func (l *Ledger) invalidateCatalog(ctx context.Context) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, CACHE_KEY_REWARDS); err != nil {
		l.log.WithError(err).Warn("invalidate reward catalog")
	}
}

// SweepAll runs SweepExpired over every account and returns the number of
// points expired. Accounts that fail are logged and skipped.
func (l *Ledger) SweepAll(ctx context.Context) (int, error) {
	ids, err := l.store.ListAccountIDs(ctx)
	if err != nil {
		return 0, storageError(err)
	}

	total := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		removed, err := l.SweepExpired(ctx, id)
		if err != nil {
			l.log.WithError(err).WithField("user_id", id).Error("sweep account")
			continue
		}
		total += removed
	}

	l.log.WithFields(logrus.Fields{
		"accounts": len(ids),
		"expired":  total,
	}).Info("expiry sweep done")

	return total, nil
}
