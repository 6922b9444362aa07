package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memberbill/internal/bill/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, bill *domain.Bill) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bills (
			id, client_id, member_id, fee_schedule_id, total_amount, paid_amount, due_amount,
			bill_date, next_recurring_date, is_recurring, currency, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bill.ID,
		bill.ClientID,
		bill.MemberID,
		bill.FeeScheduleID,
		bill.TotalAmount,
		bill.PaidAmount,
		bill.DueAmount,
		bill.BillDate,
		bill.NextRecurringDate,
		bill.IsRecurring,
		bill.Currency,
		bill.Version,
		bill.CreatedAt,
		bill.UpdatedAt,
	).Error
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, bill *domain.Bill) (bool, error) {
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}, {Name: "bill_date"}},
		DoNothing: true,
	}).Create(bill)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, clientID, id snowflake.ID) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_id, member_id, fee_schedule_id, total_amount, paid_amount, due_amount,
			bill_date, next_recurring_date, is_recurring, currency, version, created_at, updated_at
		 FROM bills WHERE client_id = ? AND id = ?`,
		clientID,
		id,
	).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (r *repo) ListByMember(ctx context.Context, db *gorm.DB, clientID, memberID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*domain.Bill, error) {
	var bills []*domain.Bill
	stmt := db.WithContext(ctx).
		Model(&domain.Bill{}).
		Where("client_id = ? AND member_id = ?", clientID, memberID)
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
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, bill *domain.Bill, expectedVersion int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bills
		 SET paid_amount = ?, due_amount = ?, version = ?, updated_at = ?
		 WHERE client_id = ? AND id = ? AND version = ?`,
		bill.PaidAmount,
		bill.DueAmount,
		bill.Version,
		bill.UpdatedAt,
		bill.ClientID,
		bill.ID,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) SummarizeMember(ctx context.Context, db *gorm.DB, clientID, memberID snowflake.ID) (domain.MemberSummary, error) {
	var summary domain.MemberSummary
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS bills,
			COALESCE(SUM(due_amount), 0) AS total_due,
			COALESCE(SUM(paid_amount), 0) AS total_paid
		 FROM bills WHERE client_id = ? AND member_id = ?`,
		clientID,
		memberID,
	).Scan(&summary).Error
	if err != nil {
		return domain.MemberSummary{}, err
	}
	return summary, nil
}

func (r *repo) FindReceiptParties(ctx context.Context, db *gorm.DB, clientID, memberID snowflake.ID) (*domain.ReceiptParties, error) {
	var row struct {
		ClientName    string
		ClientAddress string
		ClientContact string
		MemberName    string
		MemberContact string
		Found         int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT c.business_name AS client_name, c.address AS client_address,
			c.contact_number AS client_contact, m.full_name AS member_name,
			m.contact_number AS member_contact, 1 AS found
		 FROM members m
		 LEFT JOIN clients c ON c.id = m.client_id
		 WHERE m.client_id = ? AND m.id = ?`,
		clientID,
		memberID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Found == 0 {
		return nil, nil
	}
	return &domain.ReceiptParties{
		ClientName:    row.ClientName,
		ClientAddress: row.ClientAddress,
		ClientContact: row.ClientContact,
		MemberName:    row.MemberName,
		MemberContact: row.MemberContact,
	}, nil
}

func (r *repo) ListReceiptPayments(ctx context.Context, db *gorm.DB, clientID, billID snowflake.ID) ([]domain.ReceiptPayment, error) {
	var payments []domain.ReceiptPayment
	err := db.WithContext(ctx).Raw(
		`SELECT reference, method, amount, paid_at
		 FROM payments WHERE client_id = ? AND bill_id = ?
		 ORDER BY paid_at ASC, id ASC`,
		clientID,
		billID,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
