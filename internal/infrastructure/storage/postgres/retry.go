package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/tx"
	"retailcore/pkg/logger"
)

// SQLSTATE codes retried automatically.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// RetryConfig bounds the automatic retry of conflicted transactions.
type RetryConfig struct {
	// MaxAttempts includes the first try. Zero means DefaultRetryAttempts.
	MaxAttempts int

	// Backoff is the base delay between attempts, doubled each retry.
	Backoff time.Duration
}

// DefaultRetryAttempts covers transient lock conflicts without letting
// a hot row starve the caller.
const DefaultRetryAttempts = 3

// RetryingTxManager wraps a TxManager, retrying serialization failures
// and deadlocks with bounded backoff. Exhausted retries surface as
// ConcurrencyConflict. Nested transactions are never retried here; the
// outermost call owns the whole unit of work.
type RetryingTxManager struct {
	inner *TxManager
	cfg   RetryConfig
}

// NewRetryingTxManager wraps the transaction manager with retry.
func NewRetryingTxManager(inner *TxManager, cfg RetryConfig) *RetryingTxManager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 25 * time.Millisecond
	}
	return &RetryingTxManager{inner: inner, cfg: cfg}
}

// RunInTransaction implements tx.Manager.
func (m *RetryingTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.inner.GetTx(ctx) != nil {
		// Joining an outer transaction: retrying a fragment of it
		// would replay work the outer tx already did.
		return m.inner.RunInTransaction(ctx, fn)
	}

	backoff := m.cfg.Backoff
	var err error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		err = m.inner.RunInTransaction(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == m.cfg.MaxAttempts {
			break
		}

		logger.Warn(ctx, "transaction conflict, retrying",
			"attempt", attempt, "backoff", backoff.String(), "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return apperror.NewConcurrencyConflict(err)
}

// ReadOnly executes fn in a read-only transaction (no retry needed).
func (m *RetryingTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.inner.ReadOnly(ctx, fn)
}

// retryable reports whether the error is a transient conflict.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
}

var _ tx.Manager = (*RetryingTxManager)(nil)
var _ tx.ReadOnlyManager = (*RetryingTxManager)(nil)
