package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memberbill/internal/client/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO clients (
			id, business_name, slug, contact_number, address, payment_method,
			subscription_start, subscription_end, subscription_amount, subscription_currency,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		client.ID,
		client.BusinessName,
		client.Slug,
		client.ContactNumber,
		client.Address,
		client.PaymentMethod,
		client.SubscriptionStart,
		client.SubscriptionEnd,
		client.SubscriptionAmount,
		client.SubscriptionCurrency,
		client.CreatedAt,
		client.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_name, slug, contact_number, address, payment_method,
			subscription_start, subscription_end, subscription_amount, subscription_currency,
			created_at, updated_at
		 FROM clients WHERE id = ?`,
		id,
	).Scan(&client).Error
	if err != nil {
		return nil, err
	}
	if client.ID == 0 {
		return nil, nil
	}
	return &client, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Exec(
		`UPDATE clients
		 SET subscription_start = ?, subscription_end = ?, subscription_amount = ?,
			subscription_currency = ?, updated_at = ?
		 WHERE id = ?`,
		client.SubscriptionStart,
		client.SubscriptionEnd,
		client.SubscriptionAmount,
		client.SubscriptionCurrency,
		client.UpdatedAt,
		client.ID,
	).Error
}
