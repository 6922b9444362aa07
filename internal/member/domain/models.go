package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Member is a client's customer enrolled in a fee schedule.
type Member struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	ClientID        snowflake.ID    `gorm:"not null;index" json:"client_id"`
	FullName        string          `gorm:"type:text;not null" json:"full_name"`
	ContactNumber   string          `gorm:"type:text" json:"contact_number,omitempty"`
	Email           string          `gorm:"type:text" json:"email,omitempty"`
	FeeScheduleID   snowflake.ID    `gorm:"not null;index" json:"fee_schedule_id"`
	EnrolledAt      time.Time       `gorm:"not null" json:"enrolled_at"`
	NextBillingDate *time.Time      `gorm:"index" json:"next_billing_date,omitempty"`
	OutstandingFee  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"outstanding_fee"`
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Member) TableName() string { return "members" }

// Balance is what a member owes across carried-forward debt and bills.
type Balance struct {
	MemberID       snowflake.ID    `json:"member_id"`
	Currency       string          `json:"currency"`
	OutstandingFee decimal.Decimal `json:"outstanding_fee"`
	BillsDue       decimal.Decimal `json:"bills_due"`
	TotalDue       decimal.Decimal `json:"total_due"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Bills          int64           `json:"bills"`
}
