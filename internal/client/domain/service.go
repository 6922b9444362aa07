package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, client *Client) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	UpdateSubscription(ctx context.Context, db *gorm.DB, client *Client) error
}

type CreateClientRequest struct {
	BusinessName  string
	ContactNumber string
	Address       string
	PaymentMethod string
	DurationDays  int
	Amount        *decimal.Decimal
	Currency      string
}

type RenewRequest struct {
	ID           string
	DurationDays int
	Amount       *decimal.Decimal
	Currency     string
}

type Service interface {
	Create(context.Context, CreateClientRequest) (Status, error)
	GetByID(ctx context.Context, id string) (Status, error)
	Renew(context.Context, RenewRequest) (Status, error)
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidBusinessName = errors.New("invalid_business_name")
	ErrInvalidDuration     = errors.New("invalid_duration_days")
	ErrInvalidAmount       = errors.New("invalid_subscription_amount")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrNotFound            = errors.New("client_not_found")
)
