package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpiryMessage(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, loc)

	cases := []struct {
		name      string
		end       time.Time
		remaining int
		active    bool
		message   string
	}{
		{"far away", now.AddDate(0, 0, 30), 30, true, ""},
		{"warning window", now.AddDate(0, 0, 5), 5, true, "Your subscription expires in 5 days."},
		{"tomorrow", now.AddDate(0, 0, 1), 1, true, "Your subscription expires in 1 days."},
		{"today earlier hour", time.Date(2024, 6, 10, 0, 0, 0, 0, loc), 0, true, "Your subscription expires today!"},
		{"expired", now.AddDate(0, 0, -1), 0, false, "Your subscription has expired."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Client{SubscriptionStart: now.AddDate(-1, 0, 0), SubscriptionEnd: tc.end}
			assert.Equal(t, tc.remaining, c.RemainingDays(now, loc))
			assert.Equal(t, tc.active, c.IsActive(now, loc))
			assert.Equal(t, tc.message, c.ExpiryMessage(now, loc, 5))
		})
	}
}
