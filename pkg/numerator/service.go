// Package numerator provides document auto-numbering backed by a
// database sequence table. Numbers are strictly sequential per key:
// every call does an upsert with RETURNING, so concurrent callers
// serialize on the sequence row.
package numerator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service provides document numbering functionality.
type Service struct {
	querier Querier
}

// New creates a new numerator service.
func New(querier Querier) *Service {
	return &Service{querier: querier}
}

// Config holds numbering configuration for one document family.
type Config struct {
	// Prefix added to all numbers (e.g., "S", "R", "PO", "TRF")
	Prefix string

	// Scope narrows the sequence, typically a store code.
	// Rendered directly after the prefix: S3-20240101-000001.
	Scope string

	// IncludeDate adds YYYYMMDD to the number and resets the
	// sequence daily (sale and refund numbers).
	IncludeDate bool

	// PadWidth is the minimum counter width (default 6)
	PadWidth int
}

// SaleConfig returns numbering for POS invoices: S{store}-YYYYMMDD-NNNNNN.
func SaleConfig(storeCode string) Config {
	return Config{Prefix: "S", Scope: storeCode, IncludeDate: true, PadWidth: 6}
}

// RefundConfig returns numbering for refunds: R{store}-YYYYMMDD-NNNNNN.
func RefundConfig(storeCode string) Config {
	return Config{Prefix: "R", Scope: storeCode, IncludeDate: true, PadWidth: 6}
}

// PurchaseOrderConfig returns numbering for purchase orders: PO-NNNNNN.
func PurchaseOrderConfig() Config {
	return Config{Prefix: "PO", PadWidth: 6}
}

// TransferConfig returns numbering for transfers: TRF-NNNNNN.
func TransferConfig() Config {
	return Config{Prefix: "TRF", PadWidth: 6}
}

const nextValSQL = `
	INSERT INTO sys_sequences (key, current_val)
	VALUES ($1, 1)
	ON CONFLICT (key)
	DO UPDATE SET current_val = sys_sequences.current_val + 1
	RETURNING current_val
`

// NextNumber generates the next document number for the config.
// Pattern: PREFIX[SCOPE][-YYYYMMDD]-NNNNNN.
func (s *Service) NextNumber(ctx context.Context, cfg Config) (string, error) {
	return s.NextNumberAt(ctx, cfg, time.Now().UTC())
}

// NextNumberAt generates the number against an explicit date. Dated
// sequences reset when the day rolls over.
func (s *Service) NextNumberAt(ctx context.Context, cfg Config, at time.Time) (string, error) {
	if s == nil || s.querier == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}
	if cfg.Prefix == "" {
		return "", fmt.Errorf("numerator prefix is required")
	}

	pad := cfg.PadWidth
	if pad <= 0 {
		pad = 6
	}

	key := sequenceKey(cfg, at)

	var current int64
	if err := s.querier.QueryRow(ctx, nextValSQL, key).Scan(&current); err != nil {
		return "", fmt.Errorf("advance sequence %s: %w", key, err)
	}

	var b strings.Builder
	b.WriteString(cfg.Prefix)
	b.WriteString(cfg.Scope)
	if cfg.IncludeDate {
		b.WriteString("-")
		b.WriteString(at.Format("20060102"))
	}
	fmt.Fprintf(&b, "-%0*d", pad, current)

	return b.String(), nil
}

func sequenceKey(cfg Config, at time.Time) string {
	key := cfg.Prefix
	if cfg.Scope != "" {
		key += "_" + cfg.Scope
	}
	if cfg.IncludeDate {
		key += "_" + at.Format("20060102")
	}
	return key
}
