package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRunAfter(t *testing.T) {
	// 2025-06-04 is a Wednesday
	wednesday := time.Date(2025, 6, 4, 7, 0, 0, 0, time.UTC)

	t.Run("RollsPastTodayOnceDue", func(t *testing.T) {
		next, err := NextRunAfter(wednesday, "07:00", []int{1, 3, 5})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 6, 7, 0, 0, 0, time.UTC), next, "Friday, never today again")
	})

	t.Run("LaterTodayStaysToday", func(t *testing.T) {
		next, err := NextRunAfter(wednesday, "18:30", []int{3})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 4, 18, 30, 0, 0, time.UTC), next)
	})

	t.Run("TimeAlreadyPassedToday", func(t *testing.T) {
		next, err := NextRunAfter(wednesday, "06:00", []int{3})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 11, 6, 0, 0, 0, time.UTC), next, "next Wednesday")
	})

	t.Run("NeverSearchesPastSevenDays", func(t *testing.T) {
		next, err := NextRunAfter(wednesday, "06:00", nil)
		require.NoError(t, err)
		assert.True(t, next.Sub(wednesday) <= 8*24*time.Hour)
	})

	t.Run("BadTime", func(t *testing.T) {
		_, err := NextRunAfter(wednesday, "25:00", []int{1})
		assert.Error(t, err)
		_, err = NextRunAfter(wednesday, "junk", []int{1})
		assert.Error(t, err)
	})
}

func TestRanThisMinute(t *testing.T) {
	now := time.Date(2025, 6, 4, 7, 0, 30, 0, time.UTC)

	assert.False(t, RanThisMinute(nil, now))

	sameMinute := time.Date(2025, 6, 4, 7, 0, 2, 0, time.UTC)
	assert.True(t, RanThisMinute(&sameMinute, now))

	previousMinute := time.Date(2025, 6, 4, 6, 59, 59, 0, time.UTC)
	assert.False(t, RanThisMinute(&previousMinute, now))

	yesterday := now.AddDate(0, 0, -1)
	assert.False(t, RanThisMinute(&yesterday, now))
}
