package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID) (*Member, error)
	List(ctx context.Context, db *gorm.DB, clientID snowflake.ID, filter ListMemberFilter, cursor *pagination.Cursor, limit int) ([]*Member, error)
	// ListDue returns active members whose next billing date is before the
	// given instant. Rows are locked on dialects that support SKIP LOCKED.
	ListDue(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Member, error)
	UpdateNextBillingDate(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID, next *time.Time, at time.Time) error
	UpdateActive(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID, active bool, at time.Time) error
}

type CreateMemberRequest struct {
	FullName        string
	ContactNumber   string
	Email           string
	FeeScheduleID   string
	NextBillingDate *time.Time
	OutstandingFee  decimal.Decimal
}

type CreateMemberResponse struct {
	Member   Member           `json:"member"`
	Bill     *billdomain.Bill `json:"bill,omitempty"`
	Decision string           `json:"billing_decision"`
}

// UpdateMemberRequest changes billing status only. A nil field is left as is.
// NextBillingDate moves the member's next cycle without billing anything now.
type UpdateMemberRequest struct {
	ID              string
	IsActive        *bool
	NextBillingDate *time.Time
}

type ListMemberFilter struct {
	FeeScheduleID snowflake.ID
	ActiveOnly    bool
}

type ListMemberRequest struct {
	pagination.Pagination
	FeeScheduleID string
	ActiveOnly    bool
}

type ListMemberResponse struct {
	pagination.PageInfo
	Members []Member `json:"members"`
}

type Service interface {
	Create(context.Context, CreateMemberRequest) (CreateMemberResponse, error)
	GetByID(ctx context.Context, id string) (Member, error)
	List(context.Context, ListMemberRequest) (ListMemberResponse, error)
	Balance(ctx context.Context, id string) (Balance, error)
	Update(context.Context, UpdateMemberRequest) (Member, error)
}

var (
	ErrInvalidClient         = errors.New("invalid_client")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidFullName       = errors.New("invalid_full_name")
	ErrInvalidEmail          = errors.New("invalid_email")
	ErrInvalidFeeSchedule    = errors.New("invalid_fee_schedule_id")
	ErrInvalidOutstandingFee = errors.New("invalid_outstanding_fee")
	ErrInvalidNextBilling    = errors.New("invalid_next_billing_date")
	ErrEmptyUpdate           = errors.New("invalid_update")
	ErrNotFound              = errors.New("member_not_found")
)
