package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pointsledger/internal/config"
	"pointsledger/internal/datastore"
	"pointsledger/internal/datastore/redis_store"
	"pointsledger/internal/ledger"
	"pointsledger/internal/pkg/logger"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/urfave/cli/v2"
)

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

func main() {
	app := &cli.App{
		Name: "cronjob",
		Commands: []*cli.Command{
			commandCronjob(),
			commandSweepOnce(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandCronjob() *cli.Command {
	return &cli.Command{
		Name:  "cron",
		Usage: "expire lapsed points on a schedule",
		Action: func(c *cli.Context) error {
			cfg, l, log, err := setup()
			if err != nil {
				return err
			}

			cronRunner := cron.New()

			sweepJob := NewSweepJob(l, log)
			if err := sweepJob.Start(cronRunner, cfg.SweepSchedule); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.WithField("schedule", cfg.SweepSchedule).Info("start cronjob")
			cronRunner.Start()
			<-ctx.Done()
			<-cronRunner.Stop().Done()
			return nil
		},
	}
}

func commandSweepOnce() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "expire lapsed points on every account once",
		Action: func(c *cli.Context) error {
			_, l, _, err := setup()
			if err != nil {
				return err
			}

			_, err = l.SweepAll(c.Context)
			return err
		},
	}
}

func setup() (*config.Config, *ledger.Ledger, logrus.FieldLogger, error) {
	if _, err := env.EnvsRequired("REDIS_DB"); err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	dbRedis, err := getRedis("CLUSTER_REDIS_DB", "REDIS_DB")
	if err != nil {
		return nil, nil, nil, err
	}

	mutexRedis, err := getRedis("CLUSTER_REDIS_MUTEX", "REDIS_MUTEX")
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []ledger.Option{ledger.WithLogger(log.WithField("component", "sweeper"))}
	if os.Getenv("DB_DSN") != "" {
		opts = append(opts, ledger.WithArchive(datastore.NewTransactionArchive(getDb())))
	}

	store, err := redis_store.NewStore(dbRedis)
	if err != nil {
		return nil, nil, nil, err
	}

	l, err := ledger.New(store, redsync.New(goredis.NewPool(mutexRedis)), cfg.Ledger, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, l, log, nil
}

func getDb() *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(os.Getenv("DB_DSN")),
		pgdriver.WithPassword(os.Getenv("DB_PASSWORD")),
	))

	return bun.NewDB(sqldb, pgdialect.New())
}

func getRedis(clusterKey string, key string) (redis.UniversalClient, error) {
	clusterURL := os.Getenv(clusterKey)
	if clusterURL != "" {
		clusterOpts, err := redis.ParseClusterURL(clusterURL)
		if err != nil {
			return nil, err
		}
		return redis.NewClusterClient(clusterOpts), nil
	}

	url := os.Getenv(key)
	if url == "" {
		url = os.Getenv("REDIS_DB")
	}
	return db.InitRedis(&db.RedisConfig{
		URL: url,
	})
}
