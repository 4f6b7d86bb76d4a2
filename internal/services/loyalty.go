package services

import (
	"context"
	"errors"

	"pointsledger/internal/config"
	"pointsledger/internal/datastore"
	"pointsledger/internal/datastore/redis_store"
	"pointsledger/internal/ledger"
	"pointsledger/internal/models"
	"pointsledger/internal/pkg/caching"
	"pointsledger/internal/pkg/limiter"

	"github.com/go-redis/redis_rate/v10"
	"github.com/go-redsync/redsync/v4"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) error
}

// ServiceLoyalty is the ledger as the API sees it: the same operations with
// per-user rate limits on the abuse-prone ones.
type ServiceLoyalty struct {
	*ledger.Ledger
	limiter Limiter
	log     logrus.FieldLogger
}

func NewServiceLoyalty(container *do.Injector) (*ServiceLoyalty, error) {
	db, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	rs, err := do.Invoke[*redsync.Redsync](container)
	if err != nil {
		return nil, err
	}

	cfg, err := do.Invoke[*config.Config](container)
	if err != nil {
		return nil, err
	}

	log, err := do.Invoke[logrus.FieldLogger](container)
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	rateLimiter, err := do.Invoke[Limiter](container)
	if err != nil {
		return nil, err
	}

	opts := []ledger.Option{
		ledger.WithLogger(log.WithField("component", "ledger")),
		ledger.WithCache(cache),
	}

	// the archive and the bot are optional
	if postgresDB, err := do.Invoke[*bun.DB](container); err == nil && postgresDB != nil {
		opts = append(opts, ledger.WithArchive(datastore.NewTransactionArchive(postgresDB)))
	}
	if bot, err := do.Invoke[*Bot](container); err == nil && bot != nil {
		opts = append(opts, ledger.WithNotifier(bot))
	}

	store, err := redis_store.NewStore(db)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(store, rs, cfg.Ledger, opts...)
	if err != nil {
		return nil, err
	}

	return &ServiceLoyalty{l, rateLimiter, log}, nil
}

func (service *ServiceLoyalty) allow(ctx context.Context, key string, limit redis_rate.Limit) error {
	if service.limiter == nil {
		return nil
	}

	err := service.limiter.Allow(ctx, key, limit)
	if err == nil {
		return nil
	}
	if errors.Is(err, limiter.ErrRateLimited) {
		return err
	}

	// limiter outages fail open
	service.log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
	return nil
}

func (service *ServiceLoyalty) Redeem(ctx context.Context, userID string, rewardID string) (*models.Redemption, error) {
	if err := service.allow(ctx, LimitKeyRedeem(userID), redis_rate.PerMinute(REDEEM_RATE_LIMIT_PER_MINUTE)); err != nil {
		return nil, err
	}
	return service.Ledger.Redeem(ctx, userID, rewardID)
}

func (service *ServiceLoyalty) CompleteReferral(ctx context.Context, code string, refereeID string) (*models.Referral, error) {
	if err := service.allow(ctx, LimitKeyReferral(refereeID), redis_rate.PerMinute(REFERRAL_RATE_LIMIT_PER_MINUTE)); err != nil {
		return nil, err
	}
	return service.Ledger.CompleteReferral(ctx, code, refereeID)
}
