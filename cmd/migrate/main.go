package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"pointsledger/internal/config"
	"pointsledger/internal/datastore"
	"pointsledger/internal/datastore/redis_store"
	"pointsledger/internal/ledger"
	"pointsledger/internal/models"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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
		Name: "migrate",
		Commands: []*cli.Command{
			commandMigration(),
			commandImportRewards(),
			commandBackfillArchive(),
			commandReconcile(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandMigration() *cli.Command {
	return &cli.Command{
		Name: "migrate",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			db, err := getDb()
			if err != nil {
				return err
			}

			err = datastore.CreateTableTransaction(ctx, db)
			if err != nil {
				return err
			}

			fmt.Println("Migration success")

			return nil
		},
	}
}

// import-rewards loads the catalog from a csv with the columns
// id,name,points_cost,category,type,value,quantity,validity_days.
// An empty quantity means the reward is unlimited.
func commandImportRewards() *cli.Command {
	return &cli.Command{
		Name: "import-rewards",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "input",
				Value: "./rewards.csv",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			l, err := getLedger()
			if err != nil {
				return err
			}

			file, err := os.Open(c.String("input"))
			if err != nil {
				return err
			}
			defer file.Close()

			r := csv.NewReader(file)
			imported := 0
			for line := 1; ; line++ {
				row, err := r.Read()
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
				if line == 1 && row[0] == "id" {
					continue
				}

				reward, err := parseRewardRow(row)
				if err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}

				if _, err := l.PutReward(ctx, reward); err != nil {
					fmt.Println("line", line, err)
					continue
				}
				imported++
			}

			fmt.Println("Imported", imported, "rewards")
			return nil
		},
	}
}

func parseRewardRow(row []string) (*models.RewardItem, error) {
	if len(row) < 8 {
		return nil, fmt.Errorf("expected 8 columns, got %d", len(row))
	}

	cost, err := strconv.Atoi(row[2])
	if err != nil {
		return nil, err
	}

	value, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return nil, err
	}

	validity, err := strconv.Atoi(row[7])
	if err != nil {
		return nil, err
	}

	reward := &models.RewardItem{
		ID:           strings.TrimSpace(row[0]),
		Name:         row[1],
		PointsCost:   cost,
		Category:     row[3],
		Type:         row[4],
		Value:        value,
		ValidityDays: validity,
	}

	if quantity := strings.TrimSpace(row[6]); quantity != "" {
		q, err := strconv.Atoi(quantity)
		if err != nil {
			return nil, err
		}
		reward.IsLimited = true
		reward.RemainingQuantity = &q
	}

	return reward, nil
}

// backfill-archive copies every account's transactions from redis into the
// postgres archive. Rows already archived are skipped.
func commandBackfillArchive() *cli.Command {
	return &cli.Command{
		Name: "backfill-archive",
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			dbRedis, err := getRedis()
			if err != nil {
				return err
			}

			dbPostgres, err := getDb()
			if err != nil {
				return err
			}

			ids, err := redis_store.ListAccountIDs(ctx, dbRedis)
			if err != nil {
				return err
			}

			for i, userID := range ids {
				txs, err := redis_store.ListTransactions(ctx, dbRedis, userID)
				if err != nil {
					fmt.Println(userID, err)
					continue
				}

				if err := datastore.InsertTransactions(ctx, dbPostgres, txs); err != nil {
					fmt.Println(userID, err)
					continue
				}

				if (i+1)%100 == 0 {
					fmt.Println("Done", i+1, "of", len(ids))
				}
			}

			fmt.Println("Backfill success")
			return nil
		},
	}
}

// reconcile reports every account whose available points differ from the
// sum of its archived transactions.
func commandReconcile() *cli.Command {
	return &cli.Command{
		Name: "reconcile",
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			dbRedis, err := getRedis()
			if err != nil {
				return err
			}

			dbPostgres, err := getDb()
			if err != nil {
				return err
			}

			ids, err := redis_store.ListAccountIDs(ctx, dbRedis)
			if err != nil {
				return err
			}

			mismatched := 0
			for _, userID := range ids {
				account, err := redis_store.GetAccount(ctx, dbRedis, userID)
				if err != nil || account == nil {
					fmt.Println(userID, "missing account", err)
					continue
				}

				sum, err := datastore.SumTransactionsByUser(ctx, dbPostgres, userID)
				if err != nil {
					fmt.Println(userID, err)
					continue
				}

				if sum != account.AvailablePoints || !account.Balanced() {
					mismatched++
					fmt.Printf("%s available=%d archived=%d balanced=%t\n", userID, account.AvailablePoints, sum, account.Balanced())
				}
			}

			fmt.Println("Checked", len(ids), "accounts,", mismatched, "mismatched")
			return nil
		},
	}
}

func getDb() (*bun.DB, error) {
	vs, err := env.EnvsRequired("DB_DSN")
	if err != nil {
		return nil, err
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(vs["DB_DSN"]),
		pgdriver.WithPassword(os.Getenv("DB_PASSWORD")),
	))

	db := bun.NewDB(sqldb, pgdialect.New())
	return db, nil
}

func getRedis() (redis.UniversalClient, error) {
	clusterURL := os.Getenv("CLUSTER_REDIS_DB")
	if clusterURL != "" {
		clusterOpts, err := redis.ParseClusterURL(clusterURL)
		if err != nil {
			return nil, err
		}
		return redis.NewClusterClient(clusterOpts), nil
	}

	vs, err := env.EnvsRequired("REDIS_DB")
	if err != nil {
		return nil, err
	}
	return db.InitRedis(&db.RedisConfig{
		URL: vs["REDIS_DB"],
	})
}

func getLedger() (*ledger.Ledger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dbRedis, err := getRedis()
	if err != nil {
		return nil, err
	}

	store, err := redis_store.NewStore(dbRedis)
	if err != nil {
		return nil, err
	}

	return ledger.New(store, redsync.New(goredis.NewPool(dbRedis)), cfg.Ledger)
}
