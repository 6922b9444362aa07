package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	BillStatusOpen          BillStatus = "OPEN"
	BillStatusPartiallyPaid BillStatus = "PARTIALLY_PAID"
	BillStatusPaid          BillStatus = "PAID"
)

// Bill is the amount owed for one billing cycle of a member. Status is
// derived from the amounts and never stored.
type Bill struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	ClientID          snowflake.ID    `gorm:"not null;index" json:"client_id"`
	MemberID          snowflake.ID    `gorm:"not null;uniqueIndex:ux_bills_member_bill_date,priority:1" json:"member_id"`
	FeeScheduleID     snowflake.ID    `gorm:"not null;index" json:"fee_schedule_id"`
	TotalAmount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	PaidAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"paid_amount"`
	DueAmount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"due_amount"`
	BillDate          time.Time       `gorm:"not null;uniqueIndex:ux_bills_member_bill_date,priority:2" json:"bill_date"`
	NextRecurringDate *time.Time      `json:"next_recurring_date,omitempty"`
	IsRecurring       bool            `gorm:"not null;default:false" json:"is_recurring"`
	Currency          string          `gorm:"type:text;not null" json:"currency"`
	Version           int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updated_at"`
}

func (Bill) TableName() string { return "bills" }

func (b Bill) Status() BillStatus {
	switch {
	case !b.DueAmount.IsPositive():
		return BillStatusPaid
	case b.PaidAmount.IsPositive():
		return BillStatusPartiallyPaid
	default:
		return BillStatusOpen
	}
}

// ApplyPayment returns the bill with amount added to the paid total and the
// due amount recomputed. Overpayment leaves a negative due amount.
func (b Bill) ApplyPayment(amount decimal.Decimal, at time.Time) (Bill, error) {
	if !amount.IsPositive() {
		return b, ErrInvalidPaymentAmount
	}
	b.PaidAmount = b.PaidAmount.Add(amount)
	b.DueAmount = b.TotalAmount.Sub(b.PaidAmount)
	b.Version++
	b.UpdatedAt = at
	return b, nil
}

func (b Bill) MarshalJSON() ([]byte, error) {
	type alias Bill
	return json.Marshal(struct {
		alias
		Status BillStatus `json:"status"`
	}{
		alias:  alias(b),
		Status: b.Status(),
	})
}

// MemberSummary aggregates a member's bills.
type MemberSummary struct {
	Bills     int64           `json:"bills"`
	TotalDue  decimal.Decimal `json:"total_due"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}
