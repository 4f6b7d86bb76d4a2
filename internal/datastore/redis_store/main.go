package redis_store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pointsledger/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const prefixAccount = "account:"

func dbKeyAccount(userID string) string {
	return prefixAccount + userID
}

func dbKeyTransaction(txID string) string {
	return fmt.Sprintf("tx:%s", txID)
}

func dbKeyUserTransactions(userID string) string {
	return fmt.Sprintf("user:%s:transactions", userID)
}

func dbKeyReward(rewardID string) string {
	return fmt.Sprintf("reward:%s", rewardID)
}

func dbKeyRewards() string {
	return "rewards"
}

func dbKeyRedemption(redemptionID string) string {
	return fmt.Sprintf("redemption:%s", redemptionID)
}

func dbKeyUserRedemptions(userID string) string {
	return fmt.Sprintf("user:%s:redemptions", userID)
}

func dbKeyRedemptionCode(code string) string {
	return fmt.Sprintf("redemption_code:%s", code)
}

func dbKeyReferralCode(code string) string {
	return fmt.Sprintf("referral_code:%s", code)
}

func dbKeyUserReferralCode(userID string) string {
	return fmt.Sprintf("user:%s:referral_code", userID)
}

func dbKeyReferral(code string, refereeID string) string {
	return fmt.Sprintf("referral:%s:%s", code, refereeID)
}

func dbKeyRefereeReferral(refereeID string) string {
	return fmt.Sprintf("referee:%s:referral", refereeID)
}

// get decodes the record at key into a new T. A missing key is nil, nil.
func get[T any](ctx context.Context, cmd redis.Cmdable, key string) (*T, error) {
	b, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v T
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// getMany decodes the records at keys, skipping keys that no longer exist.
func getMany[T any](ctx context.Context, cmd redis.Cmdable, keys []string) ([]*T, error) {
	if len(keys) == 0 {
		return []*T{}, nil
	}

	values, err := cmd.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	items := make([]*T, 0, len(values))
	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var v T
		if err := msgpack.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		items = append(items, &v)
	}
	return items, nil
}

func set(ctx context.Context, cmd redis.Cmdable, key string, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return cmd.Set(ctx, key, b, 0).Err()
}

func GetAccount(ctx context.Context, cmd redis.Cmdable, userID string) (*models.Account, error) {
	return get[models.Account](ctx, cmd, dbKeyAccount(userID))
}

func SaveAccount(ctx context.Context, cmd redis.Cmdable, v *models.Account) error {
	if v.UserID == "" {
		return errors.New("invalid account")
	}
	return set(ctx, cmd, dbKeyAccount(v.UserID), v)
}

func ListAccountIDs(ctx context.Context, cmd redis.Cmdable) ([]string, error) {
	var ids []string

	iter := cmd.Scan(ctx, 0, prefixAccount+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), prefixAccount))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func ListTransactions(ctx context.Context, cmd redis.Cmdable, userID string) ([]*models.Transaction, error) {
	ids, err := cmd.LRange(ctx, dbKeyUserTransactions(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = dbKeyTransaction(id)
	}
	return getMany[models.Transaction](ctx, cmd, keys)
}

// AppendTransaction stores an immutable transaction and indexes it under its
// user in insertion order.
func AppendTransaction(ctx context.Context, cmd redis.Cmdable, v *models.Transaction) error {
	if v.ID == "" || v.UserID == "" {
		return errors.New("invalid transaction")
	}
	if err := set(ctx, cmd, dbKeyTransaction(v.ID), v); err != nil {
		return err
	}
	return cmd.RPush(ctx, dbKeyUserTransactions(v.UserID), v.ID).Err()
}

func GetReward(ctx context.Context, cmd redis.Cmdable, rewardID string) (*models.RewardItem, error) {
	return get[models.RewardItem](ctx, cmd, dbKeyReward(rewardID))
}

func ListRewards(ctx context.Context, cmd redis.Cmdable) ([]*models.RewardItem, error) {
	ids, err := cmd.SMembers(ctx, dbKeyRewards()).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = dbKeyReward(id)
	}
	return getMany[models.RewardItem](ctx, cmd, keys)
}

func SaveReward(ctx context.Context, cmd redis.Cmdable, v *models.RewardItem) error {
	if v.ID == "" {
		return errors.New("invalid reward")
	}
	if err := set(ctx, cmd, dbKeyReward(v.ID), v); err != nil {
		return err
	}
	return cmd.SAdd(ctx, dbKeyRewards(), v.ID).Err()
}

func GetRedemption(ctx context.Context, cmd redis.Cmdable, redemptionID string) (*models.Redemption, error) {
	return get[models.Redemption](ctx, cmd, dbKeyRedemption(redemptionID))
}

func ListRedemptions(ctx context.Context, cmd redis.Cmdable, userID string) ([]*models.Redemption, error) {
	ids, err := cmd.ZRange(ctx, dbKeyUserRedemptions(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = dbKeyRedemption(id)
	}
	return getMany[models.Redemption](ctx, cmd, keys)
}

func SaveRedemption(ctx context.Context, cmd redis.Cmdable, v *models.Redemption) error {
	if v.ID == "" || v.UserID == "" {
		return errors.New("invalid redemption")
	}
	if err := set(ctx, cmd, dbKeyRedemption(v.ID), v); err != nil {
		return err
	}
	return cmd.ZAdd(ctx, dbKeyUserRedemptions(v.UserID), redis.Z{
		Score:  float64(v.CreatedAt.UnixMilli()),
		Member: v.ID,
	}).Err()
}

// ReserveRedemptionCode claims code for redemptionID. It reports false when
// another redemption already holds the code.
func ReserveRedemptionCode(ctx context.Context, cmd redis.Cmdable, code string, redemptionID string) (bool, error) {
	return cmd.SetNX(ctx, dbKeyRedemptionCode(code), redemptionID, 0).Result()
}

var releaseCodeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseRedemptionCode frees a code reserved by redemptionID. A code held by
// another redemption is left alone.
func ReleaseRedemptionCode(ctx context.Context, cmd redis.Scripter, code string, redemptionID string) error {
	return releaseCodeScript.Run(ctx, cmd, []string{dbKeyRedemptionCode(code)}, redemptionID).Err()
}

func GetReferralCode(ctx context.Context, cmd redis.Cmdable, code string) (*models.ReferralCode, error) {
	return get[models.ReferralCode](ctx, cmd, dbKeyReferralCode(code))
}

func GetReferralCodeByUser(ctx context.Context, cmd redis.Cmdable, userID string) (*models.ReferralCode, error) {
	code, err := cmd.Get(ctx, dbKeyUserReferralCode(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return GetReferralCode(ctx, cmd, code)
}

// CreateReferralCode stores a new code and makes it the owner's current one.
// It reports false when the code string is already taken.
func CreateReferralCode(ctx context.Context, cmd redis.Cmdable, v *models.ReferralCode) (bool, error) {
	if v.Code == "" || v.UserID == "" {
		return false, errors.New("invalid referral code")
	}

	b, err := msgpack.Marshal(v)
	if err != nil {
		return false, err
	}

	ok, err := cmd.SetNX(ctx, dbKeyReferralCode(v.Code), b, 0).Result()
	if err != nil || !ok {
		return false, err
	}

	if err := cmd.Set(ctx, dbKeyUserReferralCode(v.UserID), v.Code, 0).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func SaveReferralCode(ctx context.Context, cmd redis.Cmdable, v *models.ReferralCode) error {
	if v.Code == "" {
		return errors.New("invalid referral code")
	}
	return set(ctx, cmd, dbKeyReferralCode(v.Code), v)
}

func GetReferral(ctx context.Context, cmd redis.Cmdable, code string, refereeID string) (*models.Referral, error) {
	return get[models.Referral](ctx, cmd, dbKeyReferral(code, refereeID))
}

func GetReferralByReferee(ctx context.Context, cmd redis.Cmdable, refereeID string) (*models.Referral, error) {
	code, err := cmd.Get(ctx, dbKeyRefereeReferral(refereeID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return GetReferral(ctx, cmd, code, refereeID)
}

func SaveReferral(ctx context.Context, cmd redis.Cmdable, v *models.Referral) error {
	if v.ReferralCode == "" || v.RefereeID == "" {
		return errors.New("invalid referral")
	}
	if err := set(ctx, cmd, dbKeyReferral(v.ReferralCode, v.RefereeID), v); err != nil {
		return err
	}
	return cmd.Set(ctx, dbKeyRefereeReferral(v.RefereeID), v.ReferralCode, 0).Err()
}
