package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, schedule *FeeSchedule) error
	Update(ctx context.Context, db *gorm.DB, schedule *FeeSchedule) error
	FindByID(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID) (*FeeSchedule, error)
	List(ctx context.Context, db *gorm.DB, clientID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*FeeSchedule, error)
	CountMembers(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID) (int64, error)
}

type CreateFeeScheduleRequest struct {
	Name            string
	AdmissionFee    decimal.Decimal
	CustomFees      []FeeComponent
	CycleLengthDays int
	Currency        string
}

// UpdateFeeScheduleRequest patches the fields that are set.
type UpdateFeeScheduleRequest struct {
	ID              string
	Name            *string
	AdmissionFee    *decimal.Decimal
	CustomFees      *[]FeeComponent
	CycleLengthDays *int
}

type ListFeeScheduleRequest struct {
	pagination.Pagination
}

type ListFeeScheduleResponse struct {
	pagination.PageInfo
	FeeSchedules []FeeSchedule `json:"fee_schedules"`
}

type QuoteLine struct {
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

type Quote struct {
	FeeScheduleID  snowflake.ID    `json:"fee_schedule_id"`
	IncludeJoining bool            `json:"include_joining"`
	Currency       string          `json:"currency"`
	Lines          []QuoteLine     `json:"lines"`
	Total          decimal.Decimal `json:"total"`
}

type Service interface {
	Create(context.Context, CreateFeeScheduleRequest) (FeeSchedule, error)
	Update(context.Context, UpdateFeeScheduleRequest) (FeeSchedule, error)
	GetByID(ctx context.Context, id string) (FeeSchedule, error)
	List(context.Context, ListFeeScheduleRequest) (ListFeeScheduleResponse, error)
	Quote(ctx context.Context, id string, includeJoining bool) (Quote, error)
}

var (
	ErrInvalidClient       = errors.New("invalid_client")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidAdmissionFee = errors.New("invalid_admission_fee")
	ErrInvalidCustomFees   = errors.New("invalid_custom_fees")
	ErrInvalidCycleLength  = errors.New("invalid_cycle_length_days")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrNotFound            = errors.New("fee_schedule_not_found")
	ErrScheduleInUse       = errors.New("fee_schedule_in_use")
)
