package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pointsledger/internal/models"
	"pointsledger/internal/pkg/caching"

	"github.com/go-redsync/redsync/v4"
	"github.com/sirupsen/logrus"
)

const CACHE_KEY_REWARDS = "loyalty:rewards"

type Config struct {
	Tiers            []models.Tier
	PointsExpiryDays int
	TierBonusEnabled bool
	SignupBonus      int
	ReferrerReward   int
	RefereeReward    int
	ReferralPolicy   ReferralPolicy
	ShareBaseURL     string
	LockTries        int
	LockExpiry       time.Duration
	CodeAttempts     int
	CatalogCacheTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tiers:            DefaultTiers(),
		PointsExpiryDays: 365,
		TierBonusEnabled: true,
		SignupBonus:      100,
		ReferrerReward:   500,
		RefereeReward:    100,
		ReferralPolicy:   REFERRAL_POLICY_IMMEDIATE,
		LockTries:        32,
		LockExpiry:       8 * time.Second,
		CodeAttempts:     5,
		CatalogCacheTTL:  5 * time.Minute,
	}
}

type Option func(*Ledger)

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithCache(cache caching.Cache) Option {
	return func(l *Ledger) { l.cache = cache }
}

func WithArchive(archive Archive) Option {
	return func(l *Ledger) { l.archive = archive }
}

func WithNotifier(notifier Notifier) Option {
	return func(l *Ledger) { l.notifier = notifier }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithRedemptionCodes(gen func() string) Option {
	return func(l *Ledger) { l.redemptionCode = gen }
}

func WithReferralCodes(gen func() string) Option {
	return func(l *Ledger) { l.referralCode = gen }
}

// Ledger is the entry point of the loyalty engine. Every mutation of an
// account runs inside that account's redsync mutex.
type Ledger struct {
	store Store
	rs    *redsync.Redsync
	cfg   Config

	tiers      *TierTable
	calculator *TierCalculator
	expiry     ExpiryTracker
	earning    *EarningEngine
	redemption *RedemptionEngine
	referral   *ReferralTracker

	log            logrus.FieldLogger
	cache          caching.Cache
	archive        Archive
	notifier       Notifier
	now            func() time.Time
	redemptionCode func() string
	referralCode   func() string
}

func New(store Store, rs *redsync.Redsync, cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.Tiers == nil {
		cfg.Tiers = DefaultTiers()
	}
	if cfg.PointsExpiryDays <= 0 {
		return nil, fmt.Errorf("loyalty: points expiry days must be positive, got %d", cfg.PointsExpiryDays)
	}
	if cfg.LockTries <= 0 {
		cfg.LockTries = 32
	}
	if cfg.LockExpiry <= 0 {
		cfg.LockExpiry = 8 * time.Second
	}

	tiers, err := NewTierTable(cfg.Tiers)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		store:          store,
		rs:             rs,
		cfg:            cfg,
		tiers:          tiers,
		log:            logrus.StandardLogger(),
		now:            time.Now,
		redemptionCode: newRedemptionCode,
		referralCode:   newReferralCode,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.calculator = NewTierCalculator(tiers)
	l.earning = NewEarningEngine(l.calculator, cfg.PointsExpiryDays, cfg.TierBonusEnabled, newID)
	l.redemption = NewRedemptionEngine(newID, l.redemptionCode, cfg.CodeAttempts)
	l.referral = NewReferralTracker(l.earning, l.referralCode, cfg.ShareBaseURL, cfg.ReferrerReward, cfg.RefereeReward, cfg.ReferralPolicy)

	return l, nil
}

func (l *Ledger) Tiers() []models.Tier {
	return l.tiers.Tiers()
}

// lock acquires the mutexes in the order given and returns a func releasing
// them in reverse order.
func (l *Ledger) lock(ctx context.Context, keys ...string) (func(), error) {
	var held []*redsync.Mutex
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			// nolint:errcheck
			held[i].UnlockContext(context.Background())
		}
	}

	for _, key := range keys {
		mutex := l.rs.NewMutex(key, redsync.WithTries(l.cfg.LockTries), redsync.WithExpiry(l.cfg.LockExpiry))
		if err := mutex.LockContext(ctx); err != nil {
			release()
			l.log.WithError(err).WithField("lock", key).Warn("lock not acquired")
			return nil, fmt.Errorf("%w: %s", ErrAccountLocked, key)
		}
		held = append(held, mutex)
	}

	return release, nil
}

func accountLockKeys(userIDs ...string) []string {
	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = LockKeyAccount(id)
	}
	return keys
}

func (l *Ledger) commit(ctx context.Context, changes *models.Changeset) error {
	if changes.Empty() {
		return nil
	}

	if err := l.store.Commit(ctx, changes); err != nil {
		l.log.WithError(err).Error("commit ledger changes")
		return storageError(err)
	}

	if l.archive != nil && len(changes.Transactions) > 0 {
		if err := l.archive.ArchiveTransactions(ctx, changes.Transactions); err != nil {
			l.log.WithError(err).WithField("transactions", len(changes.Transactions)).Error("archive transactions")
		}
	}

	return nil
}

func (l *Ledger) readAccount(ctx context.Context, userID string) (*models.Account, error) {
	account, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (l *Ledger) readOrNewAccount(ctx context.Context, userID string, now time.Time) (*models.Account, error) {
	account, err := l.readAccount(ctx, userID)
	if err == ErrAccountNotFound {
		return models.NewAccount(userID, l.tiers.Lowest().ID, now), nil
	}
	return account, err
}

// sweep expires lots on the account and returns the expiry transaction, nil
// when nothing expired.
func (l *Ledger) sweep(account *models.Account, now time.Time) *models.Transaction {
	removed := l.expiry.SweepExpired(account, now)
	if removed == 0 {
		return nil
	}

	l.log.WithFields(logrus.Fields{
		"user_id": account.UserID,
		"expired": removed,
	}).Info("points expired")

	return &models.Transaction{
		ID:          newID(),
		UserID:      account.UserID,
		Type:        models.TRANSACTION_EXPIRED,
		Amount:      -removed,
		BaseAmount:  removed,
		Multiplier:  1,
		Source:      models.SOURCE_EXPIRY,
		Description: "Points expired",
		Status:      models.TRANSACTION_STATUS_COMPLETED,
		CreatedAt:   now,
	}
}

func (l *Ledger) sweepInto(changes *models.Changeset, account *models.Account, now time.Time) {
	if tx := l.sweep(account, now); tx != nil {
		changes.Transactions = append(changes.Transactions, tx)
		changes.Accounts = appendAccount(changes.Accounts, account)
	}
}

func appendAccount(accounts []*models.Account, account *models.Account) []*models.Account {
	for _, a := range accounts {
		if a == account {
			return accounts
		}
	}
	return append(accounts, account)
}

func (l *Ledger) tierOf(account *models.Account) models.Tier {
	if tier, ok := l.tiers.ByID(account.CurrentTier); ok {
		return tier
	}
	return l.calculator.TierFor(account.TotalPoints)
}

func (l *Ledger) notifyTier(ctx context.Context, account *models.Account, from models.Tier) {
	to := l.tierOf(account)
	if to.ID == from.ID {
		return
	}

	l.log.WithFields(logrus.Fields{
		"user_id": account.UserID,
		"from":    from.ID,
		"to":      to.ID,
	}).Info("tier upgraded")

	if l.notifier != nil {
		l.notifier.TierUpgraded(ctx, account, from, to)
	}
}

// GetAccount returns the account after expiring any lapsed points.
func (l *Ledger) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	unlock, err := l.lock(ctx, LockKeyAccount(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	return l.syncAccount(ctx, userID)
}

func (l *Ledger) syncAccount(ctx context.Context, userID string) (*models.Account, error) {
	account, err := l.readAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := &models.Changeset{}
	l.sweepInto(changes, account, l.now())
	if err := l.commit(ctx, changes); err != nil {
		return nil, err
	}

	return account, nil
}

// SweepExpired expires lapsed lots on the account and reports how many
// points were removed.
func (l *Ledger) SweepExpired(ctx context.Context, userID string) (int, error) {
	unlock, err := l.lock(ctx, LockKeyAccount(userID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	account, err := l.readAccount(ctx, userID)
	if err != nil {
		return 0, err
	}

	before := account.ExpiredPoints
	changes := &models.Changeset{}
	l.sweepInto(changes, account, l.now())
	if err := l.commit(ctx, changes); err != nil {
		return 0, err
	}

	return account.ExpiredPoints - before, nil
}

// Enroll creates the account and grants the signup bonus once. An account
// opened earlier by an earn or a referral still receives the bonus on its
// first enrollment.
func (l *Ledger) Enroll(ctx context.Context, userID string) (*models.Account, error) {
	unlock, err := l.lock(ctx, LockKeyAccount(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := l.now()
	account, err := l.readOrNewAccount(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if account.SignupGranted {
		return account, nil
	}

	changes := &models.Changeset{}
	l.sweepInto(changes, account, now)
	from := l.tierOf(account)

	if l.cfg.SignupBonus > 0 {
		tx, err := l.earning.Earn(account, l.cfg.SignupBonus, models.SOURCE_SIGNUP, "Signup bonus", nil, now)
		if err != nil {
			return nil, err
		}
		changes.Transactions = append(changes.Transactions, tx)
	}
	account.SignupGranted = true
	changes.Accounts = appendAccount(changes.Accounts, account)

	if err := l.commit(ctx, changes); err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"user_id": userID,
		"bonus":   l.cfg.SignupBonus,
	}).Info("account enrolled")

	l.notifyTier(ctx, account, from)
	return account, nil
}

func (l *Ledger) Earn(ctx context.Context, userID string, amount int, source models.Source, description string, meta *models.EarnMetadata) (*models.Transaction, error) {
	tx, err := l.earn(ctx, userID, amount, source, description, meta)
	if err != nil {
		return nil, err
	}

	if source == models.SOURCE_PURCHASE && l.referral.Deferred() {
		if _, err := l.SettlePendingReferral(ctx, userID); err != nil {
			l.log.WithError(err).WithField("user_id", userID).Error("settle pending referral")
		}
	}

	return tx, nil
}

func (l *Ledger) earn(ctx context.Context, userID string, amount int, source models.Source, description string, meta *models.EarnMetadata) (*models.Transaction, error) {
	unlock, err := l.lock(ctx, LockKeyAccount(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := l.now()
	account, err := l.readOrNewAccount(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	changes := &models.Changeset{}
	l.sweepInto(changes, account, now)
	from := l.tierOf(account)

	tx, err := l.earning.Earn(account, amount, source, description, meta, now)
	if err != nil {
		l.log.WithError(err).WithField("user_id", userID).Debug("earn rejected")
		if commitErr := l.commit(ctx, changes); commitErr != nil {
			return nil, commitErr
		}
		return nil, err
	}

	changes.Accounts = appendAccount(changes.Accounts, account)
	changes.Transactions = append(changes.Transactions, tx)
	if err := l.commit(ctx, changes); err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"user_id": userID,
		"source":  source,
		"amount":  tx.Amount,
	}).Debug("points earned")

	l.notifyTier(ctx, account, from)
	return tx, nil
}

func (l *Ledger) Redeem(ctx context.Context, userID string, rewardID string) (*models.Redemption, error) {
	reward, err := l.readReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}

	keys := []string{LockKeyAccount(userID)}
	if reward.IsLimited {
		keys = append(keys, LockKeyReward(rewardID))
	}

	unlock, err := l.lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := l.now()
	account, err := l.readAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	// inventory may have moved while waiting for the lock
	if reward.IsLimited {
		reward, err = l.readReward(ctx, rewardID)
		if err != nil {
			return nil, err
		}
	}

	changes := &models.Changeset{}
	l.sweepInto(changes, account, now)

	reserve := func(code string, redemptionID string) (bool, error) {
		return l.store.ReserveRedemptionCode(ctx, code, redemptionID)
	}
	redemption, tx, err := l.redemption.Redeem(account, reward, reserve, now)
	if err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"reward_id": rewardID,
		}).Debug("redemption rejected")
		if commitErr := l.commit(ctx, changes); commitErr != nil {
			return nil, commitErr
		}
		return nil, err
	}

	changes.Accounts = appendAccount(changes.Accounts, account)
	changes.Transactions = append(changes.Transactions, tx)
	changes.Redemptions = append(changes.Redemptions, redemption)
	if reward.IsLimited {
		changes.Rewards = append(changes.Rewards, reward)
	}
	if err := l.commit(ctx, changes); err != nil {
		if releaseErr := l.store.ReleaseRedemptionCode(ctx, redemption.RedemptionCode, redemption.ID); releaseErr != nil {
			l.log.WithError(releaseErr).WithField("code", redemption.RedemptionCode).Warn("release redemption code")
		}
		return nil, err
	}

	l.invalidateCatalog(ctx)
	l.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"reward_id":     rewardID,
		"redemption_id": redemption.ID,
		"points":        redemption.PointsUsed,
	}).Info("reward redeemed")

	return redemption, nil
}

func (l *Ledger) GetRedemption(ctx context.Context, redemptionID string) (*models.Redemption, error) {
	redemption, err := l.store.GetRedemption(ctx, redemptionID)
	if err != nil {
		return nil, storageError(err)
	}
	if redemption == nil {
		return nil, ErrRedemptionNotFound
	}
	return redemption, nil
}

func (l *Ledger) UseRedemption(ctx context.Context, redemptionID string, orderID *string) (*models.Redemption, error) {
	unlock, err := l.lock(ctx, LockKeyRedemption(redemptionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	redemption, err := l.GetRedemption(ctx, redemptionID)
	if err != nil {
		return nil, err
	}

	before := redemption.Status
	useErr := l.redemption.Use(redemption, orderID, l.now())
	if redemption.Status != before {
		if err := l.commit(ctx, &models.Changeset{Redemptions: []*models.Redemption{redemption}}); err != nil {
			return nil, err
		}
	}
	if useErr != nil {
		l.log.WithError(useErr).WithField("redemption_id", redemptionID).Debug("redemption use rejected")
		return redemption, useErr
	}

	l.log.WithFields(logrus.Fields{
		"redemption_id": redemptionID,
		"user_id":       redemption.UserID,
	}).Info("redemption used")

	return redemption, nil
}

func (l *Ledger) GenerateReferralCode(ctx context.Context, userID string) (*models.ReferralCode, error) {
	unlock, err := l.lock(ctx, LockKeyReferralOwner(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := l.store.GetReferralCodeByUser(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}

	now := l.now()
	code, fresh := l.referral.NewCode(existing, userID, now)
	if !fresh {
		return code, nil
	}

	attempts := l.cfg.CodeAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		ok, err := l.store.CreateReferralCode(ctx, code)
		if err != nil {
			return nil, storageError(err)
		}
		if ok {
			l.log.WithFields(logrus.Fields{
				"user_id": userID,
				"code":    code.Code,
			}).Info("referral code issued")
			return code, nil
		}
		code, _ = l.referral.NewCode(nil, userID, now)
	}

	return nil, storageError(errCodeSpaceExhausted)
}

// CompleteReferral records the referee's signup under code. With the
// immediate policy the rewards are granted right away, otherwise the
// referral stays pending until the referee's first purchase.
func (l *Ledger) CompleteReferral(ctx context.Context, code string, refereeID string) (*models.Referral, error) {
	unlock, err := l.lock(ctx, LockKeyReferralCode(code), LockKeyReferee(refereeID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	rc, err := l.store.GetReferralCode(ctx, code)
	if err != nil {
		return nil, storageError(err)
	}
	if rc == nil {
		return nil, ErrReferralCodeNotFound
	}

	previous, err := l.store.GetReferral(ctx, code, refereeID)
	if err != nil {
		return nil, storageError(err)
	}
	if previous == nil {
		previous, err = l.store.GetReferralByReferee(ctx, refereeID)
		if err != nil {
			return nil, storageError(err)
		}
	}

	now := l.now()
	referral, err := l.referral.Open(rc, refereeID, previous, now)
	if err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"code":       code,
			"referee_id": refereeID,
		}).Debug("referral rejected")
		return nil, err
	}
	rc.UsageCount++

	if l.referral.Deferred() {
		changes := &models.Changeset{
			Referrals:     []*models.Referral{referral},
			ReferralCodes: []*models.ReferralCode{rc},
		}
		if err := l.commit(ctx, changes); err != nil {
			return nil, err
		}
		l.log.WithFields(logrus.Fields{
			"code":       code,
			"referee_id": refereeID,
		}).Info("referral pending first purchase")
		return referral, nil
	}

	if err := l.grantReferral(ctx, referral, rc); err != nil {
		return nil, err
	}
	return referral, nil
}

// SettlePendingReferral grants the rewards of the referee's pending referral.
// It returns nil when there is nothing to settle.
func (l *Ledger) SettlePendingReferral(ctx context.Context, refereeID string) (*models.Referral, error) {
	referral, err := l.store.GetReferralByReferee(ctx, refereeID)
	if err != nil {
		return nil, storageError(err)
	}
	if referral == nil || referral.IsRewardClaimed {
		return nil, nil
	}

	unlock, err := l.lock(ctx, LockKeyReferralCode(referral.ReferralCode), LockKeyReferee(refereeID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	referral, err = l.store.GetReferral(ctx, referral.ReferralCode, refereeID)
	if err != nil {
		return nil, storageError(err)
	}
	if referral == nil || referral.IsRewardClaimed {
		return nil, nil
	}

	if err := l.grantReferral(ctx, referral, nil); err != nil {
		return nil, err
	}
	return referral, nil
}

// grantReferral claims the referral and credits the rewards in one commit,
// so the claim flag and the credited points land together. Callers hold the
// referral code and referee locks.
func (l *Ledger) grantReferral(ctx context.Context, referral *models.Referral, rc *models.ReferralCode) error {
	withReferee := l.referral.RefereeReward() > 0
	ids := []string{referral.ReferrerID}
	if withReferee {
		ids = append(ids, referral.RefereeID)
	}

	unlock, err := l.lock(ctx, accountLockKeys(ids...)...)
	if err != nil {
		return err
	}
	defer unlock()

	now := l.now()
	changes := &models.Changeset{Referrals: []*models.Referral{referral}}
	if rc != nil {
		changes.ReferralCodes = append(changes.ReferralCodes, rc)
	}

	referrer, err := l.readOrNewAccount(ctx, referral.ReferrerID, now)
	if err != nil {
		return err
	}
	l.sweepInto(changes, referrer, now)
	referrerTier := l.tierOf(referrer)

	var referee *models.Account
	var refereeTier models.Tier
	if withReferee {
		referee, err = l.readOrNewAccount(ctx, referral.RefereeID, now)
		if err != nil {
			return err
		}
		l.sweepInto(changes, referee, now)
		refereeTier = l.tierOf(referee)
	}

	if err := l.referral.Claim(referral, now); err != nil {
		return err
	}

	txs, err := l.referral.Reward(referral, referrer, referee, now)
	if err != nil {
		return err
	}
	changes.Transactions = append(changes.Transactions, txs...)
	changes.Accounts = appendAccount(changes.Accounts, referrer)
	if referee != nil {
		changes.Accounts = appendAccount(changes.Accounts, referee)
	}

	if err := l.commit(ctx, changes); err != nil {
		return err
	}

	l.log.WithFields(logrus.Fields{
		"code":        referral.ReferralCode,
		"referrer_id": referral.ReferrerID,
		"referee_id":  referral.RefereeID,
	}).Info("referral completed")

	l.notifyTier(ctx, referrer, referrerTier)
	if referee != nil {
		l.notifyTier(ctx, referee, refereeTier)
	}
	if l.notifier != nil {
		l.notifier.ReferralCompleted(ctx, referral)
	}

	return nil
}

func (l *Ledger) TierProgress(ctx context.Context, userID string) (*models.TierProgress, error) {
	account, err := l.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	progress := l.calculator.Progress(account.TotalPoints)
	return &progress, nil
}

func (l *Ledger) ExpiringPoints(ctx context.Context, userID string, days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("%w: days must not be negative", ErrInvalidAmount)
	}

	account, err := l.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}

	return l.expiry.ExpiringWithin(account, days, l.now()), nil
}

func (l *Ledger) Transactions(ctx context.Context, userID string) ([]*models.Transaction, error) {
	txs, err := l.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}
	return txs, nil
}

func (l *Ledger) Redemptions(ctx context.Context, userID string) ([]*models.Redemption, error) {
	redemptions, err := l.store.ListRedemptions(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}
	return redemptions, nil
}
