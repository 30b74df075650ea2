package main

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"godisc/adapters/postgres"
	"godisc/internal/config"
	"godisc/internal/ledger"
	"godisc/internal/testkit"
	"godisc/ports"
	"godisc/ui"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[API] no .env file found, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] configuration error: %v", err)
	}

	var (
		ledgerPort ports.LedgerPort
		trajectory ports.TrajectoryLogPort
	)
	if cfg.Database.Enabled {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("[API] database connect failed: %v", err)
		}
		defer db.Close()
		if err := postgres.Migrate(context.Background(), db); err != nil {
			log.Fatalf("[API] migration failed: %v", err)
		}
		ledgerPort = postgres.NewLedgerRepository(db)
		trajectory = postgres.NewTrajectoryRepository(db)
	} else {
		log.Println("[API] DATABASE_URL not set, serving an empty in-memory ledger")
		ledgerPort = ledger.NewMemoryLedger()
		trajectory = testkit.NewMemoryTrajectoryLog()
	}

	server := ui.NewServer(ledgerPort, trajectory)
	if err := server.ListenAndServe(cfg.Server.Port); err != nil {
		log.Fatalf("[API] server failed: %v", err)
	}
}
