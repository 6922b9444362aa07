package domain

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// FeeComponent is one named fee line of a schedule. A component is charged
// every cycle when Recurring is set, otherwise only with the joining bill.
type FeeComponent struct {
	Name      string          `json:"name"`
	Value     decimal.Decimal `json:"value"`
	Recurring bool            `json:"recurring"`
}

// FeeComponents is the JSON column holding a schedule's custom fees. Reads
// go through DecodeFeeComponents so rows written by older clients still load.
type FeeComponents []FeeComponent

func (c FeeComponents) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]FeeComponent(c))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (c *FeeComponents) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("custom_fees: unsupported column type %T", value)
	}
	components, err := DecodeFeeComponents(raw)
	if err != nil {
		return err
	}
	*c = components
	return nil
}

func (FeeComponents) GormDataType() string {
	return "json"
}

func (FeeComponents) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "JSON"
}

func (c FeeComponents) GormValue(_ context.Context, db *gorm.DB) clause.Expr {
	raw, _ := c.Value()
	if db.Dialector.Name() == "postgres" {
		return gorm.Expr("?::jsonb", raw)
	}
	return gorm.Expr("?", raw)
}

// FeeSchedule is the subscription a member is enrolled in.
type FeeSchedule struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	ClientID        snowflake.ID    `gorm:"not null;index" json:"client_id"`
	Name            string          `gorm:"not null" json:"name"`
	AdmissionFee    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"admission_fee"`
	CustomFees      FeeComponents   `json:"custom_fees"`
	CycleLengthDays int             `gorm:"not null" json:"cycle_length_days"`
	Currency        string          `gorm:"type:text;not null" json:"currency"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (FeeSchedule) TableName() string { return "fee_schedules" }

// Components returns the custom fee lines as a plain slice.
func (s FeeSchedule) Components() []FeeComponent {
	return []FeeComponent(s.CustomFees)
}
