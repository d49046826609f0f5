// Package main provides a CLI tool for seeding the database with demo
// stock so a fresh installation has something to sell.
package main

import (
	"context"
	"fmt"
	"os"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/domain/notify"
	"retailcore/internal/infrastructure/storage/postgres"
	"retailcore/internal/infrastructure/storage/postgres/ledger_repo"
	"retailcore/pkg/logger"
)

// Fixed demo identifiers so repeated runs stay idempotent from the
// caller's point of view (repeated receives just add more stock).
var (
	demoStoreID = id.MustParse("01900000-0000-7000-8000-000000000001")

	demoVariants = []struct {
		variantID string
		qty       int64
		unitCost  string
	}{
		{"01900000-0000-7000-8000-000000000101", 100, "12.50"},
		{"01900000-0000-7000-8000-000000000102", 50, "89.99"},
		{"01900000-0000-7000-8000-000000000103", 250, "3.75"},
	}
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)
	engine := ledger.NewService(ledger_repo.NewStockRepo(txManager), txManager, notify.NewLogNotifier(), ledger.Config{})

	for _, v := range demoVariants {
		record, err := engine.Receive(ctx, ledger.ReceiveInput{
			StoreID:   demoStoreID,
			VariantID: id.MustParse(v.variantID),
			Qty:       types.NewQuantityFromInt(v.qty),
			UnitCost:  types.MustMoney(v.unitCost),
			Reference: "SEED",
			Reason:    "initial demo stock",
		})
		if err != nil {
			log.Fatalw("failed to seed stock", "variant_id", v.variantID, "error", err)
		}
		log.Infow("seeded stock",
			"store_id", record.StoreID,
			"variant_id", record.VariantID,
			"quantity", record.Quantity.String(),
		)
	}

	log.Info("seeding completed successfully")
}
