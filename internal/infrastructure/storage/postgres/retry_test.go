package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "serialization failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: true,
		},
		{
			name: "deadlock detected",
			err:  &pgconn.PgError{Code: "40P01"},
			want: true,
		},
		{
			name: "wrapped deadlock",
			err:  fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"}),
			want: true,
		},
		{
			name: "unique violation",
			err:  &pgconn.PgError{Code: "23505"},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestNewRetryingTxManager_Defaults(t *testing.T) {
	m := NewRetryingTxManager(&TxManager{}, RetryConfig{})

	assert.Equal(t, DefaultRetryAttempts, m.cfg.MaxAttempts)
	assert.Equal(t, 25*time.Millisecond, m.cfg.Backoff)
}
