package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig carries billing policy that can change without a redeploy.
type BillingConfig struct {
	ReferenceTimeZone string `mapstructure:"referenceTimeZone"`
	ConflictRetries   int    `mapstructure:"conflictRetries"`
	ExpiryWarningDays int    `mapstructure:"expiryWarningDays"`
	DefaultCurrency   string `mapstructure:"defaultCurrency"`
	MaxCatchUpCycles  int    `mapstructure:"maxCatchUpCycles"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		ReferenceTimeZone: "Asia/Kolkata",
		ConflictRetries:   2,
		ExpiryWarningDays: 5,
		DefaultCurrency:   "INR",
		MaxCatchUpCycles:  24,
	}
}

// Location resolves the reference time zone used to compare billing dates.
func (c BillingConfig) Location() *time.Location {
	name := strings.TrimSpace(c.ReferenceTimeZone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/memberbill/config")
	v.AddConfigPath("/etc/memberbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEMBERBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.referenceTimeZone", defaults.ReferenceTimeZone)
	v.SetDefault("billing.conflictRetries", defaults.ConflictRetries)
	v.SetDefault("billing.expiryWarningDays", defaults.ExpiryWarningDays)
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.maxCatchUpCycles", defaults.MaxCatchUpCycles)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config, mostly for tests and tooling.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.ConflictRetries < 1 {
		return errors.New("billing.conflictRetries must be at least 1")
	}
	if cfg.ExpiryWarningDays < 0 {
		return errors.New("billing.expiryWarningDays cannot be negative")
	}
	if cfg.MaxCatchUpCycles < 1 {
		return errors.New("billing.maxCatchUpCycles must be at least 1")
	}
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		return errors.New("billing.defaultCurrency cannot be empty")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.ReferenceTimeZone)); err != nil {
		return fmt.Errorf("billing.referenceTimeZone: %w", err)
	}
	return nil
}
