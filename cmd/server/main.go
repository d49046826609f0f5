// Package main is the entry point for the retailcore API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"retailcore/internal/core/types"
	"retailcore/internal/domain/auth"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/domain/notify"
	"retailcore/internal/domain/orders/purchase"
	"retailcore/internal/domain/orders/transfer"
	"retailcore/internal/domain/pos"
	"retailcore/internal/domain/returns"
	"retailcore/internal/domain/shifts"
	v1 "retailcore/internal/infrastructure/http/v1"
	"retailcore/internal/infrastructure/storage/postgres"
	"retailcore/internal/infrastructure/storage/postgres/ledger_repo"
	"retailcore/internal/infrastructure/storage/postgres/order_repo"
	"retailcore/internal/infrastructure/storage/postgres/pos_repo"
	"retailcore/internal/infrastructure/storage/postgres/return_repo"
	"retailcore/internal/infrastructure/storage/postgres/shift_repo"
	"retailcore/pkg/logger"
	"retailcore/pkg/numerator"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting retailcore server")

	// --- Database ---
	dsn := mustEnv("DATABASE_URL")
	poolCfg := postgres.DefaultPoolConfig(dsn)
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)
	retrying := postgres.NewRetryingTxManager(txManager, postgres.RetryConfig{
		MaxAttempts: getEnvInt("TX_RETRY_ATTEMPTS", 3),
	})

	// --- Numbering ---
	numbers := numerator.New(txQuerier{tm: txManager})

	// --- Audit ---
	auditRecorder, err := postgres.NewAuditRecorder(txManager)
	if err != nil {
		log.Fatalw("failed to create audit recorder", "error", err)
	}

	// --- Reservation engine ---
	stockRepo := ledger_repo.NewStockRepo(txManager)
	engine := ledger.NewService(stockRepo, retrying, notify.NewLogNotifier(), ledger.Config{
		LowStockThreshold: types.NewQuantityFromInt(int64(getEnvInt("LOW_STOCK_THRESHOLD", 0))),
	})

	// --- Workflow services ---
	purchaseService := purchase.NewService(order_repo.NewPurchaseRepo(txManager), engine, retrying, numbers)
	transferService := transfer.NewService(order_repo.NewTransferRepo(txManager), engine, retrying, numbers)

	posRepo := pos_repo.NewPosRepo(txManager)
	posService := pos.NewService(posRepo, engine, retrying, numbers, pos.Config{
		HoldExpiry: getEnvDuration("POS_HOLD_EXPIRY", 30*time.Minute),
	})

	policy, err := returns.NewApprovalPolicy(getEnv("REFUND_APPROVAL_RULE", ""))
	if err != nil {
		log.Fatalw("invalid refund approval rule", "error", err)
	}
	returnsService := returns.NewService(
		return_repo.NewRefundRepo(txManager),
		engine,
		posService,
		retrying,
		numbers,
		policy,
		returns.Config{
			ReturnWindow:      getEnvDuration("REFUND_WINDOW", 72*time.Hour),
			ApprovalThreshold: types.MinorUnits(getEnvInt("REFUND_APPROVAL_THRESHOLD_CENTS", 10_000)),
		},
	)

	shiftsService := shifts.NewService(shift_repo.NewShiftRepo(txManager), posRepo, retrying)

	// --- Background hold sweeper ---
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go runHoldSweeper(sweepCtx, posService, getEnvDuration("HOLD_SWEEP_INTERVAL", time.Minute), log)

	// --- JWT ---
	jwtSecret := mustEnv("JWT_SECRET")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:           pool.Pool,
		Logger:         log,
		TokenValidator: jwtService,
		AuditRecorder:  auditRecorder,
		Engine:         engine,
		Purchases:      purchaseService,
		Transfers:      transferService,
		Pos:            posService,
		Returns:        returnsService,
		Shifts:         shiftsService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// txQuerier routes numerator queries through the transaction carried in
// the context, so generated numbers roll back with their document.
type txQuerier struct {
	tm *postgres.TxManager
}

func (q txQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.tm.GetQuerier(ctx).QueryRow(ctx, sql, args...)
}

// runHoldSweeper releases lapsed held carts on a fixed interval.
func runHoldSweeper(ctx context.Context, service *pos.Service, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := service.SweepExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Warnw("hold sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				log.Infow("released expired holds", "count", swept)
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
