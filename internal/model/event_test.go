package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name      string
		eventDate Date
		recurring bool
		from      Date
		want      Date
		ok        bool
	}{
		{"later this year", "1990-12-25", true, "2025-12-18", "2025-12-25", true},
		{"today", "1990-12-25", true, "2025-12-25", "2025-12-25", true},
		{"rolls into next year", "1990-03-01", true, "2025-12-18", "2026-03-01", true},
		{"leap day in non-leap year", "2000-02-29", true, "2025-01-10", "2025-02-28", true},
		{"leap day in leap year", "2000-02-29", true, "2028-01-10", "2028-02-29", true},
		{"one-off upcoming", "2026-01-05", false, "2025-12-20", "2026-01-05", true},
		{"one-off passed", "2025-01-05", false, "2025-12-20", "2025-01-05", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := GiftEvent{EventDate: tc.eventDate, Recurring: tc.recurring}
			got, ok := e.NextOccurrence(tc.from)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	d, err := ParseDate("2025-12-25")
	require.NoError(t, err)
	assert.Equal(t, Date("2025-12-21"), d.AddDays(-4))
	assert.Equal(t, 7, Date("2025-12-18").DaysUntil(d))
	assert.Equal(t, -1, Date("2025-12-26").DaysUntil(d))

	_, err = ParseDate("25/12/2025")
	assert.Error(t, err)
}

func TestRuleLeadDays(t *testing.T) {
	r := AutoGiftRule{}
	assert.Equal(t, 7, r.LeadDays(7))
	r.NotificationDays = []int{3, 14, 7}
	assert.Equal(t, 14, r.LeadDays(7))
}
