package shared

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePeriod(t *testing.T) {
	got, err := NormalizePeriod(" 2025-03 ")
	require.NoError(t, err)
	assert.Equal(t, "2025-03", got)

	_, err = NormalizePeriod("2025-13")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = NormalizePeriod("03/2025")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestPreviousPeriodCrossesYear(t *testing.T) {
	assert.Equal(t, "2024-12", PreviousPeriod(time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-02", PreviousPeriod(time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)))
}
