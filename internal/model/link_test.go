package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLink_IsExpired(t *testing.T) {
	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)

	testCases := []struct {
		name      string
		expiresAt *time.Time
		expected  bool
	}{
		{"no expiration", nil, false},
		{"future expiration", &future, false},
		{"past expiration", &past, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			link := &Link{ExpiresAt: tc.expiresAt}
			assert.Equal(t, tc.expected, link.IsExpired())
		})
	}
}

func TestClickTrend_NoClicks(t *testing.T) {
	trend := ClickTrend(nil, 7)
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 0, 0}, trend)
}

func TestClickTrend_CountsPerCalendarDay(t *testing.T) {
	now := time.Now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	events := []ClickEvent{
		{ClickedAt: startOfToday.Add(time.Minute)},               // today, just after midnight
		{ClickedAt: now},                                         // today
		{ClickedAt: startOfToday.Add(-time.Minute)},              // yesterday, just before midnight
		{ClickedAt: startOfToday.AddDate(0, 0, -2).Add(12 * time.Hour)}, // two days ago
		{ClickedAt: startOfToday.AddDate(0, 0, -7)},              // outside a 7-day window
	}

	trend := ClickTrend(events, 7)
	assert.Len(t, trend, 7)
	assert.Equal(t, int64(2), trend[6], "today")
	assert.Equal(t, int64(1), trend[5], "yesterday")
	assert.Equal(t, int64(1), trend[4], "two days ago")
	assert.Equal(t, int64(0), trend[3])

	var total int64
	for _, n := range trend {
		total += n
	}
	assert.Equal(t, int64(4), total, "event outside the window must not be counted")
}

func TestClickTrend_WindowLength(t *testing.T) {
	for _, days := range []int{1, 7, 30} {
		trend := ClickTrend(nil, days)
		assert.Len(t, trend, days)
	}
}
