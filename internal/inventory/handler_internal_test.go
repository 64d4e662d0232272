package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/age-b2b/backoffice/internal/shared"
)

func TestParseDate(t *testing.T) {
	got, err := parseDate("expiry_date", "2026-03-31")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)))

	for _, raw := range []string{"", "2026-02-30", "31/03/2026", "2026-03-31T00:00:00Z"} {
		_, err := parseDate("expiry_date", raw)
		require.ErrorIs(t, err, shared.ErrInvalidInput, raw)
		assert.Contains(t, err.Error(), "expiry_date")
	}
}
