// Package notify delivers best-effort stock notifications.
// Delivery must never block or fail the mutating transaction that
// produced the event; real transports plug in behind ledger.Notifier.
package notify

import (
	"context"

	"retailcore/internal/domain/ledger"
	"retailcore/pkg/logger"
)

// LogNotifier writes low-stock events to the structured log.
// Stands in for an external notification channel.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyLowStock implements ledger.Notifier.
func (n *LogNotifier) NotifyLowStock(ctx context.Context, event ledger.LowStockEvent) {
	logger.Warn(ctx, "low stock",
		"store_id", event.StoreID,
		"variant_id", event.VariantID,
		"available", event.Available.String(),
		"threshold", event.Threshold.String(),
	)
}

var _ ledger.Notifier = (*LogNotifier)(nil)
