package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
)

const (
	DefaultSubscriptionDays = 365
	DefaultCurrency         = "INR"
)

var DefaultSubscriptionAmount = decimal.RequireFromString("5000.00")

// Client is a business owner using the platform; every member, schedule
// and bill belongs to exactly one client.
type Client struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	BusinessName         string          `gorm:"type:text;not null" json:"business_name"`
	Slug                 string          `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	ContactNumber        string          `gorm:"type:text" json:"contact_number,omitempty"`
	Address              string          `gorm:"type:text" json:"address,omitempty"`
	PaymentMethod        string          `gorm:"type:text" json:"payment_method,omitempty"`
	SubscriptionStart    time.Time       `gorm:"not null" json:"subscription_start"`
	SubscriptionEnd      time.Time       `gorm:"not null" json:"subscription_end"`
	SubscriptionAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subscription_amount"`
	SubscriptionCurrency string          `gorm:"type:text;not null" json:"subscription_currency"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

// IsActive reports whether the subscription end date is today or later.
func (c Client) IsActive(now time.Time, loc *time.Location) bool {
	return billingcycledomain.CompareDates(c.SubscriptionEnd, now, loc) >= 0
}

// RemainingDays is the number of whole days until the subscription ends, never negative.
func (c Client) RemainingDays(now time.Time, loc *time.Location) int {
	end := billingcycledomain.CalendarDate(c.SubscriptionEnd, loc)
	today := billingcycledomain.CalendarDate(now, loc)
	days := int(end.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ExpiryMessage returns a reminder when the subscription ends within warnDays,
// and an empty string otherwise.
func (c Client) ExpiryMessage(now time.Time, loc *time.Location, warnDays int) string {
	if !c.IsActive(now, loc) {
		return "Your subscription has expired."
	}
	days := c.RemainingDays(now, loc)
	switch {
	case days == 0:
		return "Your subscription expires today!"
	case days <= warnDays:
		return fmt.Sprintf("Your subscription expires in %d days.", days)
	default:
		return ""
	}
}

// Status is the client together with its derived subscription state.
type Status struct {
	Client        Client `json:"client"`
	IsActive      bool   `json:"is_active"`
	RemainingDays int    `json:"remaining_days"`
	ExpiryMessage string `json:"expiry_message,omitempty"`
}
