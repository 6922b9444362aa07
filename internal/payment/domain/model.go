package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	"gorm.io/gorm"
)

type Method string

const (
	MethodCash Method = "cash"
	MethodCard Method = "card"
)

func ParseMethod(value string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(value))) {
	case MethodCash:
		return MethodCash, nil
	case MethodCard:
		return MethodCard, nil
	default:
		return "", ErrInvalidMethod
	}
}

// Payment is an immutable record of money received against a bill.
type Payment struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	ClientID  snowflake.ID    `gorm:"not null;index" json:"client_id"`
	BillID    snowflake.ID    `gorm:"not null;index" json:"bill_id"`
	MemberID  snowflake.ID    `gorm:"not null;index" json:"member_id"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Method    Method          `gorm:"type:text;not null" json:"method"`
	Reference string          `gorm:"type:text;not null;uniqueIndex" json:"reference"`
	PaidAt    time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListByBill(ctx context.Context, db *gorm.DB, clientID, billID snowflake.ID) ([]*Payment, error)
}

type ApplyPaymentRequest struct {
	BillID string
	Amount decimal.Decimal
	Method string
	PaidAt *time.Time
}

type ApplyPaymentResponse struct {
	Payment  Payment         `json:"payment"`
	Bill     billdomain.Bill `json:"bill"`
	Attempts int             `json:"-"`
}

type ListPaymentResponse struct {
	Payments []Payment `json:"payments"`
}

type Service interface {
	// ApplyPayment records the payment and reconciles the bill as one unit.
	ApplyPayment(context.Context, ApplyPaymentRequest) (ApplyPaymentResponse, error)
	ListByBill(ctx context.Context, billID string) (ListPaymentResponse, error)
}

var (
	ErrInvalidClient = errors.New("invalid_client")
	ErrInvalidBillID = errors.New("invalid_bill_id")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidMethod = errors.New("invalid_method")
	ErrInvalidPaidAt = errors.New("invalid_paid_at")
)
