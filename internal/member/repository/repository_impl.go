package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memberbill/internal/member/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO members (
			id, client_id, full_name, contact_number, email, fee_schedule_id, enrolled_at,
			next_billing_date, outstanding_fee, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.ClientID,
		member.FullName,
		member.ContactNumber,
		member.Email,
		member.FeeScheduleID,
		member.EnrolledAt,
		member.NextBillingDate,
		member.OutstandingFee,
		member.IsActive,
		member.CreatedAt,
		member.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_id, full_name, contact_number, email, fee_schedule_id, enrolled_at,
			next_billing_date, outstanding_fee, is_active, created_at, updated_at
		 FROM members WHERE client_id = ? AND id = ?`,
		clientID,
		id,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, clientID snowflake.ID, filter domain.ListMemberFilter, cursor *pagination.Cursor, limit int) ([]*domain.Member, error) {
	var members []*domain.Member
	stmt := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("client_id = ?", clientID)
	if filter.FeeScheduleID != 0 {
		stmt = stmt.Where("fee_schedule_id = ?", filter.FeeScheduleID)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		lastID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", createdAt, createdAt, lastID)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Member, error) {
	query := `SELECT id, client_id, full_name, contact_number, email, fee_schedule_id, enrolled_at,
			next_billing_date, outstanding_fee, is_active, created_at, updated_at
		 FROM members
		 WHERE is_active = ? AND next_billing_date IS NOT NULL AND next_billing_date < ?
		 ORDER BY next_billing_date ASC, id ASC
		 LIMIT ?`
	if strings.EqualFold(db.Dialector.Name(), "postgres") {
		query += " FOR UPDATE SKIP LOCKED"
	}

	var members []*domain.Member
	if err := db.WithContext(ctx).Raw(query, true, before.UTC(), limit).Scan(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repo) UpdateNextBillingDate(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID, next *time.Time, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE members SET next_billing_date = ?, updated_at = ?
		 WHERE client_id = ? AND id = ?`,
		next,
		at,
		clientID,
		id,
	).Error
}

func (r *repo) UpdateActive(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID, active bool, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE members SET is_active = ?, updated_at = ?
		 WHERE client_id = ? AND id = ?`,
		active,
		at,
		clientID,
		id,
	).Error
}
