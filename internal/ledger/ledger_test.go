package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pointsledger/internal/datastore/redis_store"
	"pointsledger/internal/ledger"
	"pointsledger/internal/models"
	"pointsledger/internal/pkg/caching"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const day = 24 * time.Hour

type fixture struct {
	ledger *ledger.Ledger
	clock  *clock
	client redis.UniversalClient
	rs     *redsync.Redsync
	store  *flakyStore
}

func newFixture(t *testing.T, cfg ledger.Config, opts ...ledger.Option) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rs := redsync.New(goredis.NewPool(client))
	log, _ := test.NewNullLogger()
	c := &clock{now: start}

	store, err := redis_store.NewStore(client)
	require.NoError(t, err)

	flaky := &flakyStore{Store: store}
	opts = append([]ledger.Option{ledger.WithLogger(log), ledger.WithClock(c.Now)}, opts...)
	l, err := ledger.New(flaky, rs, cfg, opts...)
	require.NoError(t, err)

	return &fixture{ledger: l, clock: c, client: client, rs: rs, store: flaky}
}

// flakyStore fails commits on demand.
type flakyStore struct {
	*redis_store.Store
	failCommit bool
}

func (s *flakyStore) Commit(ctx context.Context, changes *models.Changeset) error {
	if s.failCommit {
		return errors.New("connection reset by peer")
	}
	return s.Store.Commit(ctx, changes)
}

func (f *fixture) putReward(t *testing.T, id string, cost int, quantity *int) *models.RewardItem {
	t.Helper()
	reward, err := f.ledger.PutReward(context.Background(), &models.RewardItem{
		ID:                id,
		Name:              "Reward " + id,
		PointsCost:        cost,
		Category:          models.REWARD_CATEGORY_VOUCHER,
		Type:              models.REWARD_TYPE_FIXED,
		Value:             5,
		IsLimited:         quantity != nil,
		RemainingQuantity: quantity,
		ValidityDays:      30,
	})
	require.NoError(t, err)
	return reward
}

func quantity(n int) *int {
	return &n
}

// assertReconciled checks that the transaction history adds up to the
// account's available points.
func assertReconciled(t *testing.T, l *ledger.Ledger, userID string) {
	t.Helper()
	ctx := context.Background()

	account, err := l.GetAccount(ctx, userID)
	require.NoError(t, err)
	txs, err := l.Transactions(ctx, userID)
	require.NoError(t, err)

	sum := 0
	for _, tx := range txs {
		sum += tx.Amount
	}
	assert.Equal(t, account.AvailablePoints, sum)
	assert.True(t, account.Balanced())
}

func TestEnrollEarnRedeem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	account, err := f.ledger.Enroll(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100, account.AvailablePoints)
	assert.Equal(t, "bronze", account.CurrentTier)

	again, err := f.ledger.Enroll(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100, again.TotalPoints)

	tx, err := f.ledger.Earn(ctx, "alice", 1000, models.SOURCE_PURCHASE, "Order o-1", &models.EarnMetadata{
		Purchase: &models.PurchaseMeta{OrderID: "o-1", Spend: 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, tx.Amount)

	account, err = f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1100, account.TotalPoints)
	assert.Equal(t, "silver", account.CurrentTier)

	progress, err := f.ledger.TierProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "silver", progress.Current.ID)
	require.NotNil(t, progress.Next)
	assert.Equal(t, "gold", progress.Next.ID)
	assert.Equal(t, 3900, progress.PointsToNext)
	assert.InDelta(t, 2.5, progress.Percent, 0.001)

	f.putReward(t, "coffee", 500, nil)
	redemption, err := f.ledger.Redeem(ctx, "alice", "coffee")
	require.NoError(t, err)
	assert.Equal(t, models.REDEMPTION_APPROVED, redemption.Status)
	assert.True(t, strings.HasPrefix(redemption.RedemptionCode, "RDM-"))
	assert.WithinDuration(t, start.Add(30*day), redemption.ExpiryDate, time.Second)

	account, err = f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 600, account.AvailablePoints)
	assert.Equal(t, 500, account.UsedPoints)
	assert.Equal(t, 1100, account.TotalPoints)

	redemptions, err := f.ledger.Redemptions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, redemptions, 1)
	assert.Equal(t, redemption.ID, redemptions[0].ID)

	txs, err := f.ledger.Transactions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, models.SOURCE_SIGNUP, txs[0].Source)
	assert.Equal(t, models.SOURCE_PURCHASE, txs[1].Source)
	assert.Equal(t, models.TRANSACTION_REDEEMED, txs[2].Type)

	assertReconciled(t, f.ledger, "alice")
}

func TestEarnCreatesAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.ledger.Earn(ctx, "bob", 20, models.SOURCE_DAILY_LOGIN, "", nil)
	require.NoError(t, err)

	account, err := f.ledger.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 20, account.AvailablePoints)
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.ledger.GetAccount(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = f.ledger.Earn(ctx, "alice", 0, models.SOURCE_PURCHASE, "", nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.ledger.Redeem(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ledger.ErrRewardNotFound)

	f.putReward(t, "coffee", 500, nil)
	_, err = f.ledger.Redeem(ctx, "nobody", "coffee")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = f.ledger.Enroll(ctx, "alice")
	require.NoError(t, err)
	_, err = f.ledger.Redeem(ctx, "alice", "coffee")
	assert.ErrorIs(t, err, ledger.ErrInsufficientPoints)

	_, err = f.ledger.ExpiringPoints(ctx, "alice", -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.ledger.PutReward(ctx, &models.RewardItem{ID: "free", PointsCost: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.ledger.GetRedemption(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrRedemptionNotFound)

	cfg := ledger.DefaultConfig()
	cfg.PointsExpiryDays = 0
	_, err = ledger.New(f.store, f.rs, cfg)
	assert.Error(t, err)
}

func TestPointsExpire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.ledger.Enroll(ctx, "alice")
	require.NoError(t, err)
	_, err = f.ledger.Earn(ctx, "alice", 1000, models.SOURCE_PURCHASE, "", nil)
	require.NoError(t, err)

	f.clock.Advance(340 * day)
	expiring, err := f.ledger.ExpiringPoints(ctx, "alice", 30)
	require.NoError(t, err)
	assert.Equal(t, 1100, expiring)

	expiring, err = f.ledger.ExpiringPoints(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Zero(t, expiring)

	f.clock.Advance(60 * day)
	account, err := f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, account.AvailablePoints)
	assert.Equal(t, 1100, account.ExpiredPoints)
	assert.Equal(t, "silver", account.CurrentTier)

	expiring, err = f.ledger.ExpiringPoints(ctx, "alice", 30)
	require.NoError(t, err)
	assert.Zero(t, expiring)

	txs, err := f.ledger.Transactions(ctx, "alice")
	require.NoError(t, err)
	last := txs[len(txs)-1]
	assert.Equal(t, models.TRANSACTION_EXPIRED, last.Type)
	assert.Equal(t, -1100, last.Amount)

	assertReconciled(t, f.ledger, "alice")
}

func TestRedeemSpendsOldestPointsFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.ledger.Earn(ctx, "alice", 300, models.SOURCE_REVIEW, "", nil)
	require.NoError(t, err)
	f.clock.Advance(100 * day)
	_, err = f.ledger.Earn(ctx, "alice", 300, models.SOURCE_REVIEW, "", nil)
	require.NoError(t, err)

	f.putReward(t, "mug", 400, nil)
	_, err = f.ledger.Redeem(ctx, "alice", "mug")
	require.NoError(t, err)

	// first lot fully spent, the remaining 200 expire with the second lot
	f.clock.Advance(300 * day)
	removed, err := f.ledger.SweepExpired(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, removed)

	f.clock.Advance(70 * day)
	removed, err = f.ledger.SweepExpired(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 200, removed)

	assertReconciled(t, f.ledger, "alice")
}

func TestSweepAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := f.ledger.Enroll(ctx, id)
		require.NoError(t, err)
	}

	f.clock.Advance(400 * day)
	total, err := f.ledger.SweepAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 300, total)

	total, err = f.ledger.SweepAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestConcurrentRedemptionsNeverOverspend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.ledger.Enroll(ctx, "alice")
	require.NoError(t, err)
	_, err = f.ledger.Earn(ctx, "alice", 1000, models.SOURCE_REVIEW, "", nil)
	require.NoError(t, err)
	f.putReward(t, "coffee", 500, nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Redeem(ctx, "alice", "coffee")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ledger.ErrInsufficientPoints):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 3, rejected)

	account, err := f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100, account.AvailablePoints)
	assertReconciled(t, f.ledger, "alice")
}

func TestLastUnitGoesToOneRedeemer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	users := []string{"alice", "bob", "carol"}
	for _, id := range users {
		_, err := f.ledger.Earn(ctx, id, 1000, models.SOURCE_REVIEW, "", nil)
		require.NoError(t, err)
	}
	f.putReward(t, "signed-ball", 500, quantity(1))

	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, id := range users {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.ledger.Redeem(ctx, id, "signed-ball")
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrOutOfStock)
	}
	assert.Equal(t, 1, succeeded)

	rewards, err := f.ledger.Rewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	require.NotNil(t, rewards[0].RemainingQuantity)
	assert.Zero(t, *rewards[0].RemainingQuantity)
}

func TestUseRedemption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.ledger.Earn(ctx, "alice", 2000, models.SOURCE_REVIEW, "", nil)
	require.NoError(t, err)
	f.putReward(t, "coffee", 500, nil)

	first, err := f.ledger.Redeem(ctx, "alice", "coffee")
	require.NoError(t, err)
	second, err := f.ledger.Redeem(ctx, "alice", "coffee")
	require.NoError(t, err)
	assert.NotEqual(t, first.RedemptionCode, second.RedemptionCode)

	order := "order-1"
	used, err := f.ledger.UseRedemption(ctx, first.ID, &order)
	require.NoError(t, err)
	assert.Equal(t, models.REDEMPTION_REDEEMED, used.Status)

	_, err = f.ledger.UseRedemption(ctx, first.ID, nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)

	f.clock.Advance(31 * day)
	_, err = f.ledger.UseRedemption(ctx, second.ID, nil)
	assert.ErrorIs(t, err, ledger.ErrRedemptionExpired)

	stored, err := f.ledger.GetRedemption(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.REDEMPTION_EXPIRED, stored.Status)

	stored, err = f.ledger.GetRedemption(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.OrderID)
	assert.Equal(t, "order-1", *stored.OrderID)
}

func TestRedemptionCodeCollision(t *testing.T) {
	ctx := context.Background()

	codes := []string{"RDM-DUP", "RDM-DUP", "RDM-NEW"}
	n := 0
	gen := func() string {
		code := codes[n%len(codes)]
		n++
		return code
	}
	f := newFixture(t, ledger.DefaultConfig(), ledger.WithRedemptionCodes(gen))

	_, err := f.ledger.Earn(ctx, "alice", 1000, models.SOURCE_REVIEW, "", nil)
	require.NoError(t, err)
	f.putReward(t, "coffee", 100, nil)

	first, err := f.ledger.Redeem(ctx, "alice", "coffee")
	require.NoError(t, err)
	assert.Equal(t, "RDM-DUP", first.RedemptionCode)

	second, err := f.ledger.Redeem(ctx, "alice", "coffee")
	require.NoError(t, err)
	assert.Equal(t, "RDM-NEW", second.RedemptionCode)
}

func TestFailedRedeemReleasesCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig(), ledger.WithRedemptionCodes(func() string { return "RDM-FIXED" }))

	_, err := f.ledger.Earn(ctx, "alice", 1000, models.SOURCE_REVIEW, "", nil)
	require.NoError(t, err)
	f.putReward(t, "coffee", 100, nil)

	f.store.failCommit = true
	_, err = f.ledger.Redeem(ctx, "alice", "coffee")
	assert.True(t, ledger.Retryable(err))

	f.store.failCommit = false
	redemption, err := f.ledger.Redeem(ctx, "alice", "coffee")
	require.NoError(t, err)
	assert.Equal(t, "RDM-FIXED", redemption.RedemptionCode)

	account, err := f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 900, account.AvailablePoints)
}

func TestReleaseKeepsOtherReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	ok, err := f.store.ReserveRedemptionCode(ctx, "RDM-1", "rd-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.store.ReleaseRedemptionCode(ctx, "RDM-1", "rd-2"))
	ok, err = f.store.ReserveRedemptionCode(ctx, "RDM-1", "rd-3")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.store.ReleaseRedemptionCode(ctx, "RDM-1", "rd-1"))
	ok, err = f.store.ReserveRedemptionCode(ctx, "RDM-1", "rd-3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReferralImmediate(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	f := newFixture(t, ledger.DefaultConfig(), ledger.WithNotifier(notifier))

	code, err := f.ledger.GenerateReferralCode(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, code.Code, 8)

	same, err := f.ledger.GenerateReferralCode(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, code.Code, same.Code)

	referral, err := f.ledger.CompleteReferral(ctx, code.Code, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.REFERRAL_COMPLETED, referral.Status)
	assert.True(t, referral.IsRewardClaimed)

	alice, err := f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 500, alice.AvailablePoints)

	bob, err := f.ledger.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 100, bob.AvailablePoints)

	_, err = f.ledger.CompleteReferral(ctx, code.Code, "bob")
	assert.ErrorIs(t, err, ledger.ErrDuplicateReferral)

	_, err = f.ledger.CompleteReferral(ctx, code.Code, "alice")
	assert.ErrorIs(t, err, ledger.ErrSelfReferral)

	_, err = f.ledger.CompleteReferral(ctx, "nope", "carol")
	assert.ErrorIs(t, err, ledger.ErrReferralCodeNotFound)

	stored, err := f.ledger.GenerateReferralCode(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)

	alice, err = f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 500, alice.AvailablePoints)

	assert.Equal(t, 1, notifier.referrals())
	assertReconciled(t, f.ledger, "alice")
	assertReconciled(t, f.ledger, "bob")
}

func TestEnrollAfterReferralGrantsSignupBonus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	code, err := f.ledger.GenerateReferralCode(ctx, "alice")
	require.NoError(t, err)
	_, err = f.ledger.CompleteReferral(ctx, code.Code, "bob")
	require.NoError(t, err)

	bob, err := f.ledger.Enroll(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 200, bob.AvailablePoints)
	assert.True(t, bob.SignupGranted)

	bob, err = f.ledger.Enroll(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 200, bob.AvailablePoints)

	txs, err := f.ledger.Transactions(ctx, "bob")
	require.NoError(t, err)
	sources := make([]models.Source, 0, len(txs))
	for _, tx := range txs {
		sources = append(sources, tx.Source)
	}
	assert.Equal(t, []models.Source{models.SOURCE_REFERRAL, models.SOURCE_SIGNUP}, sources)
	assertReconciled(t, f.ledger, "bob")
}

func TestEnrollAfterEarnGrantsSignupBonus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.ledger.Earn(ctx, "carol", 20, models.SOURCE_DAILY_LOGIN, "", nil)
	require.NoError(t, err)

	carol, err := f.ledger.Enroll(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 120, carol.AvailablePoints)
}

func TestReferralSettlesOnFirstPurchase(t *testing.T) {
	ctx := context.Background()
	cfg := ledger.DefaultConfig()
	cfg.ReferralPolicy = ledger.REFERRAL_POLICY_ON_FIRST_PURCHASE
	f := newFixture(t, cfg)

	code, err := f.ledger.GenerateReferralCode(ctx, "alice")
	require.NoError(t, err)

	referral, err := f.ledger.CompleteReferral(ctx, code.Code, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.REFERRAL_PENDING, referral.Status)

	_, err = f.ledger.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	// only purchases settle the referral
	_, err = f.ledger.Earn(ctx, "bob", 50, models.SOURCE_REVIEW, "", nil)
	require.NoError(t, err)
	_, err = f.ledger.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = f.ledger.Earn(ctx, "bob", 200, models.SOURCE_PURCHASE, "", nil)
	require.NoError(t, err)

	alice, err := f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 500, alice.AvailablePoints)

	bob, err := f.ledger.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 350, bob.AvailablePoints)

	stored, err := redis_store.GetReferralByReferee(ctx, f.client, "bob")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.REFERRAL_COMPLETED, stored.Status)

	// a second purchase pays nothing more
	_, err = f.ledger.Earn(ctx, "bob", 200, models.SOURCE_PURCHASE, "", nil)
	require.NoError(t, err)
	alice, err = f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 500, alice.AvailablePoints)

	settled, err := f.ledger.SettlePendingReferral(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, settled)
}

func TestTierUpgradeNotification(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	f := newFixture(t, ledger.DefaultConfig(), ledger.WithNotifier(notifier))

	_, err := f.ledger.Enroll(ctx, "alice")
	require.NoError(t, err)
	_, err = f.ledger.Earn(ctx, "alice", 1000, models.SOURCE_PURCHASE, "", nil)
	require.NoError(t, err)
	_, err = f.ledger.Earn(ctx, "alice", 10, models.SOURCE_DAILY_LOGIN, "", nil)
	require.NoError(t, err)

	upgrades := notifier.upgrades()
	require.Len(t, upgrades, 1)
	assert.Equal(t, "bronze->silver", upgrades[0])
}

func TestArchiveReceivesTransactions(t *testing.T) {
	ctx := context.Background()
	archive := &recordingArchive{}
	f := newFixture(t, ledger.DefaultConfig(), ledger.WithArchive(archive))

	_, err := f.ledger.Enroll(ctx, "alice")
	require.NoError(t, err)
	_, err = f.ledger.Earn(ctx, "alice", 10, models.SOURCE_DAILY_LOGIN, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, archive.count())

	archive.fail = true
	_, err = f.ledger.Earn(ctx, "alice", 10, models.SOURCE_DAILY_LOGIN, "", nil)
	require.NoError(t, err)

	account, err := f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 120, account.AvailablePoints)
}

func TestCatalogCache(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	cacheClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cacheClient.Close() })
	cache, err := caching.NewCacheRedis(cacheClient, false)
	require.NoError(t, err)

	f := newFixture(t, ledger.DefaultConfig(), ledger.WithCache(cache))
	f.putReward(t, "coffee", 100, nil)

	rewards, err := f.ledger.Rewards(ctx)
	require.NoError(t, err)
	assert.Len(t, rewards, 1)

	// written behind the ledger's back, invisible until invalidated
	require.NoError(t, redis_store.SaveReward(ctx, f.client, &models.RewardItem{ID: "tea", PointsCost: 50}))
	rewards, err = f.ledger.Rewards(ctx)
	require.NoError(t, err)
	assert.Len(t, rewards, 1)

	f.putReward(t, "cake", 300, nil)
	rewards, err = f.ledger.Rewards(ctx)
	require.NoError(t, err)
	assert.Len(t, rewards, 3)
}

func TestLockedAccountIsRetryable(t *testing.T) {
	ctx := context.Background()
	cfg := ledger.DefaultConfig()
	cfg.LockTries = 1
	f := newFixture(t, cfg)

	mutex := f.rs.NewMutex(ledger.LockKeyAccount("alice"))
	require.NoError(t, mutex.Lock())
	t.Cleanup(func() { mutex.Unlock() })

	_, err := f.ledger.Earn(ctx, "alice", 10, models.SOURCE_DAILY_LOGIN, "", nil)
	assert.ErrorIs(t, err, ledger.ErrAccountLocked)
	assert.True(t, ledger.Retryable(err))
}

type recordingNotifier struct {
	mu        sync.Mutex
	tiers     []string
	completed int
}

func (n *recordingNotifier) TierUpgraded(ctx context.Context, account *models.Account, from models.Tier, to models.Tier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tiers = append(n.tiers, fmt.Sprintf("%s->%s", from.ID, to.ID))
}

func (n *recordingNotifier) ReferralCompleted(ctx context.Context, referral *models.Referral) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
}

func (n *recordingNotifier) upgrades() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.tiers...)
}

func (n *recordingNotifier) referrals() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.completed
}

type recordingArchive struct {
	mu   sync.Mutex
	txs  []*models.Transaction
	fail bool
}

func (a *recordingArchive) ArchiveTransactions(ctx context.Context, txs []*models.Transaction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("archive offline")
	}
	a.txs = append(a.txs, txs...)
	return nil
}

func (a *recordingArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.txs)
}
