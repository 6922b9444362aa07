package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/memberbill/internal/enrollment"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"gorm.io/gorm"
)

// ReceiptParties carries the display names printed on a receipt.
type ReceiptParties struct {
	ClientName    string
	ClientAddress string
	ClientContact string
	MemberName    string
	MemberContact string
}

type ReceiptPayment struct {
	Reference string
	Method    string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bill *Bill) error
	// InsertIfAbsent reports false when the member already has a bill for that date.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, bill *Bill) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID) (*Bill, error)
	ListByMember(ctx context.Context, db *gorm.DB, clientID, memberID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*Bill, error)
	// UpdatePayment writes the paid/due totals only if the row still has expectedVersion.
	UpdatePayment(ctx context.Context, db *gorm.DB, bill *Bill, expectedVersion int64) (bool, error)
	SummarizeMember(ctx context.Context, db *gorm.DB, clientID, memberID snowflake.ID) (MemberSummary, error)
	FindReceiptParties(ctx context.Context, db *gorm.DB, clientID, memberID snowflake.ID) (*ReceiptParties, error)
	ListReceiptPayments(ctx context.Context, db *gorm.DB, clientID, billID snowflake.ID) ([]ReceiptPayment, error)
}

// EnrollmentEvent is what the member workflow hands over when a member is created.
type EnrollmentEvent struct {
	ClientID        snowflake.ID
	MemberID        snowflake.ID
	EnrolledAt      time.Time
	NextBillingDate *time.Time
	Schedule        feescheduledomain.FeeSchedule
}

type CycleBillRequest struct {
	ClientID snowflake.ID
	MemberID snowflake.ID
	Schedule feescheduledomain.FeeSchedule
	BillDate time.Time
}

type ListBillRequest struct {
	pagination.Pagination
	MemberID string
}

type ListBillResponse struct {
	pagination.PageInfo
	Bills []Bill `json:"bills"`
}

type Service interface {
	// OnEnrollmentCreated runs the enrollment decision inside the caller's
	// transaction and issues the joining bill when due today.
	OnEnrollmentCreated(ctx context.Context, tx *gorm.DB, event EnrollmentEvent) (*Bill, enrollment.Decision, error)
	// CreateCycleBill issues a recurring bill without joining fees. It reports
	// false when that cycle was already billed.
	CreateCycleBill(ctx context.Context, tx *gorm.DB, req CycleBillRequest) (*Bill, bool, error)
	GetByID(ctx context.Context, id string) (Bill, error)
	ListByMember(ctx context.Context, req ListBillRequest) (ListBillResponse, error)
	SummarizeMember(ctx context.Context, clientID, memberID snowflake.ID) (MemberSummary, error)
	RenderReceipt(ctx context.Context, id string) (io.Reader, error)
}

var (
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidMemberID      = errors.New("invalid_member_id")
	ErrInvalidBillDate      = errors.New("invalid_bill_date")
	ErrInvalidPaymentAmount = errors.New("invalid_amount")
	ErrBillNotFound         = errors.New("bill_not_found")
	ErrConcurrencyConflict  = errors.New("concurrency_conflict")
)
