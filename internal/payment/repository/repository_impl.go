package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memberbill/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, client_id, bill_id, member_id, amount, method, reference, paid_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.ClientID,
		payment.BillID,
		payment.MemberID,
		payment.Amount,
		string(payment.Method),
		payment.Reference,
		payment.PaidAt,
		payment.CreatedAt,
	).Error
}

func (r *repo) ListByBill(ctx context.Context, db *gorm.DB, clientID, billID snowflake.ID) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_id, bill_id, member_id, amount, method, reference, paid_at, created_at
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
