package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSerializationFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped", fmt.Errorf("platform/db: commit tx: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsSerializationFailure(tc.err))
		})
	}
}

func TestRetrySerializationRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retrySerialization(context.Background(), func() error {
		calls++
		if calls < maxSerializationRetries {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, maxSerializationRetries, calls)
}

func TestRetrySerializationGivesUp(t *testing.T) {
	calls := 0
	err := retrySerialization(context.Background(), func() error {
		calls++
		return fmt.Errorf("lock lot: %w", &pgconn.PgError{Code: "40001"})
	})
	require.Error(t, err)
	assert.True(t, IsSerializationFailure(err))
	assert.Equal(t, maxSerializationRetries, calls)
}

func TestRetrySerializationStopsOnOtherErrors(t *testing.T) {
	calls := 0
	unique := &pgconn.PgError{Code: "23505"}
	err := retrySerialization(context.Background(), func() error {
		calls++
		return unique
	})
	require.ErrorIs(t, err, unique)
	assert.Equal(t, 1, calls)
}

func TestRetrySerializationStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retrySerialization(ctx, func() error {
		calls++
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
