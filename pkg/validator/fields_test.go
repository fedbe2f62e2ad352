package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{"simple", "Luca", "Luca", nil},
		{"trimmed", "  Anna ", "Anna", nil},
		{"accented", "Niccolò", "Niccolò", nil},
		{"hyphen and apostrophe", "O'Neil-Smith", "O'Neil-Smith", nil},
		{"empty", "   ", "", ErrEmptyValue},
		{"digits", "R2D2", "", ErrInvalidName},
		{"too long", "A" + strings.Repeat("a", 20), "", ErrTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Name(tc.input, 20)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestPastDate(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	t.Run("past date", func(t *testing.T) {
		got, err := PastDate("1990-02-28", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(1990, 2, 28, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("yesterday", func(t *testing.T) {
		_, err := PastDate("2025-06-14", now)
		assert.NoError(t, err)
	})

	t.Run("today is rejected", func(t *testing.T) {
		_, err := PastDate("2025-06-15", now)
		assert.ErrorIs(t, err, ErrDateNotInPast)
	})

	t.Run("future is rejected", func(t *testing.T) {
		_, err := PastDate("2030-01-01", now)
		assert.ErrorIs(t, err, ErrDateNotInPast)
	})

	t.Run("wrong layout", func(t *testing.T) {
		_, err := PastDate("15/06/1990", now)
		assert.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := PastDate("", now)
		assert.ErrorIs(t, err, ErrEmptyValue)
	})
}

func TestFieldErrors(t *testing.T) {
	var errs FieldErrors
	assert.False(t, errs.HasErrors())

	errs.Add("trip_id", "is required")
	errs.AddError("participants[0].date_of_birth", ErrDateNotInPast)

	require.True(t, errs.HasErrors())
	assert.Len(t, errs, 2)
	assert.Equal(t, "trip_id is required; participants[0].date_of_birth must be in the past", errs.Error())
}
