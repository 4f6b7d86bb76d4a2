package main

import (
	"context"
	"encoding/csv"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"pointsledger/internal/datastore/redis_store"

	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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
		Name: "export",
		Commands: []*cli.Command{
			commandExport(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// export writes one csv row of balances per account.
func commandExport() *cli.Command {
	return &cli.Command{
		Name: "export",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output",
				Value: "./accounts.csv",
			},
		},
		Action: func(c *cli.Context) error {
			vs, err := env.EnvsRequired(
				"REDIS_DB",
			)
			if err != nil {
				return err
			}

			var dbRedis redis.UniversalClient

			clusterRedisDB := os.Getenv("CLUSTER_REDIS_DB")
			if clusterRedisDB != "" {
				clusterOpts, err := redis.ParseClusterURL(clusterRedisDB)
				if err != nil {
					return err
				}
				dbRedis = redis.NewClusterClient(clusterOpts)
			} else {
				dbRedis, err = db.InitRedis(&db.RedisConfig{
					URL: vs["REDIS_DB"],
				})
				if err != nil {
					return err
				}
			}

			ctx := context.Background()
			ids, err := redis_store.ListAccountIDs(ctx, dbRedis)
			if err != nil {
				return err
			}
			sort.Strings(ids)

			file, err := os.Create(c.String("output"))
			if err != nil {
				return err
			}
			defer file.Close()

			w := csv.NewWriter(file)
			//nolint:errcheck
			w.Write([]string{"user_id", "tier", "total_points", "available_points", "used_points", "expired_points", "last_updated"})

			for _, userID := range ids {
				account, err := redis_store.GetAccount(ctx, dbRedis, userID)
				if err != nil || account == nil {
					log.Println(userID, err)
					continue
				}

				err = w.Write([]string{
					account.UserID,
					account.CurrentTier,
					strconv.Itoa(account.TotalPoints),
					strconv.Itoa(account.AvailablePoints),
					strconv.Itoa(account.UsedPoints),
					strconv.Itoa(account.ExpiredPoints),
					account.LastUpdated.Format(time.RFC3339),
				})
				if err != nil {
					return err
				}
			}

			w.Flush()
			if err := w.Error(); err != nil {
				return err
			}

			log.Println("Exported", len(ids), "accounts to", c.String("output"))
			return nil
		},
	}
}
