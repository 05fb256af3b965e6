// cmd/migrate/main.go applies or rolls back the schema migrations.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/jason-s-yu/njuka/internal/config"
	"github.com/jason-s-yu/njuka/internal/database"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

var down = flag.Int("down", 0, "roll back this many migrations instead of migrating up")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("could not load configuration")
	}
	if cfg.Postgres.DSN == "" {
		logrus.Fatal("NJUKA_POSTGRES_DSN is required")
	}

	waitForDB(cfg.Postgres.DSN)

	if *down > 0 {
		if err := database.MigrateDown(cfg.Postgres.DSN, *down); err != nil {
			logrus.WithError(err).Fatal("could not roll back migrations")
		}
		return
	}
	if err := database.Migrate(cfg.Postgres.DSN); err != nil {
		logrus.WithError(err).Fatal("could not run migrations")
	}
}

func waitForDB(dsn string) {
	timeout := time.NewTimer(time.Second * 10)
	for {
		select {
		case <-timeout.C:
			logrus.Fatal("could not connect to database")
		default:
			pool, err := database.Connect(context.Background(), dsn)
			if err == nil {
				pool.Close()
				return
			}

			time.Sleep(time.Millisecond * 500)
		}
	}
}
