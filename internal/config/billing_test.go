package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBillingConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*BillingConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*BillingConfig) {}},
		{name: "zero retries", mutate: func(c *BillingConfig) { c.ConflictRetries = 0 }, wantErr: true},
		{name: "negative warning", mutate: func(c *BillingConfig) { c.ExpiryWarningDays = -1 }, wantErr: true},
		{name: "empty currency", mutate: func(c *BillingConfig) { c.DefaultCurrency = " " }, wantErr: true},
		{name: "unknown zone", mutate: func(c *BillingConfig) { c.ReferenceTimeZone = "Mars/Olympus" }, wantErr: true},
		{name: "no catch up", mutate: func(c *BillingConfig) { c.MaxCatchUpCycles = 0 }, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			tc.mutate(&cfg)
			err := validateBillingConfig(cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBillingConfigLocationFallsBackToUTC(t *testing.T) {
	cfg := BillingConfig{ReferenceTimeZone: ""}
	assert.Equal(t, "UTC", cfg.Location().String())

	cfg.ReferenceTimeZone = "not/a-zone"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestStaticHolderReturnsConfig(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.ConflictRetries = 5
	holder := NewStaticBillingConfigHolder(cfg)
	assert.Equal(t, 5, holder.Get().ConflictRetries)

	var nilHolder *BillingConfigHolder
	assert.Equal(t, DefaultBillingConfig(), nilHolder.Get())
}
