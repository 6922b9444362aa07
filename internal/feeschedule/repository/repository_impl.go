package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, schedule *domain.FeeSchedule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO fee_schedules (id, client_id, name, admission_fee, custom_fees, cycle_length_days, currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.ClientID,
		schedule.Name,
		schedule.AdmissionFee,
		schedule.CustomFees,
		schedule.CycleLengthDays,
		schedule.Currency,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, schedule *domain.FeeSchedule) error {
	return db.WithContext(ctx).Exec(
		`UPDATE fee_schedules
		 SET name = ?, admission_fee = ?, custom_fees = ?, cycle_length_days = ?, updated_at = ?
		 WHERE client_id = ? AND id = ?`,
		schedule.Name,
		schedule.AdmissionFee,
		schedule.CustomFees,
		schedule.CycleLengthDays,
		schedule.UpdatedAt,
		schedule.ClientID,
		schedule.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID) (*domain.FeeSchedule, error) {
	var schedule domain.FeeSchedule
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_id, name, admission_fee, custom_fees, cycle_length_days, currency, created_at, updated_at
		 FROM fee_schedules WHERE client_id = ? AND id = ?`,
		clientID,
		id,
	).Scan(&schedule).Error
	if err != nil {
		return nil, err
	}
	if schedule.ID == 0 {
		return nil, nil
	}
	return &schedule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, clientID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*domain.FeeSchedule, error) {
	var schedules []*domain.FeeSchedule
	stmt := db.WithContext(ctx).
		Model(&domain.FeeSchedule{}).
		Where("client_id = ?", clientID)
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
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *repo) CountMembers(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM members WHERE client_id = ? AND fee_schedule_id = ?`,
		clientID,
		id,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
