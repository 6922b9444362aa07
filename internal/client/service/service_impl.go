package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
	"github.com/smallbiznis/memberbill/internal/client/domain"
	"github.com/smallbiznis/memberbill/internal/clientcontext"
	"github.com/smallbiznis/memberbill/internal/clock"
	"github.com/smallbiznis/memberbill/internal/config"
	"github.com/smallbiznis/memberbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	auditSvc auditdomain.Service
	clock    clock.Clock
	billing  *config.BillingConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("client.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		clock:    p.Clock,
		billing:  p.Billing,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateClientRequest) (domain.Status, error) {
	name := strings.TrimSpace(req.BusinessName)
	if name == "" {
		return domain.Status{}, domain.ErrInvalidBusinessName
	}

	duration, amount, currency, err := subscriptionTerms(req.DurationDays, req.Amount, req.Currency)
	if err != nil {
		return domain.Status{}, err
	}

	loc := s.billing.Get().Location()
	now := s.clock.Now().UTC()
	start := billingcycledomain.CalendarDate(now, loc)

	client := domain.Client{
		ID:                   s.genID.Generate(),
		BusinessName:         name,
		Slug:                 slug.Make(name),
		ContactNumber:        strings.TrimSpace(req.ContactNumber),
		Address:              strings.TrimSpace(req.Address),
		PaymentMethod:        strings.TrimSpace(req.PaymentMethod),
		SubscriptionStart:    start.UTC(),
		SubscriptionEnd:      start.AddDate(0, 0, duration).UTC(),
		SubscriptionAmount:   amount,
		SubscriptionCurrency: currency,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if client.Slug == "" {
		client.Slug = client.ID.String()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &client); err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return err
			}
			return errSlugTaken
		}
		return s.audit(ctx, tx, client, "client.created")
	})
	if errors.Is(err, errSlugTaken) {
		// Slugs are unique; a second business with the same name gets the id appended.
		client.Slug = client.Slug + "-" + client.ID.Base36()
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.Insert(ctx, tx, &client); err != nil {
				return err
			}
			return s.audit(ctx, tx, client, "client.created")
		})
	}
	if err != nil {
		return domain.Status{}, err
	}

	s.log.Info("client created", zap.String("client_id", client.ID.String()), zap.String("slug", client.Slug))
	return s.status(client), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Status, error) {
	client, err := s.find(ctx, s.db, id)
	if err != nil {
		return domain.Status{}, err
	}
	return s.status(*client), nil
}

// Renew restarts the subscription today for the given duration.
func (s *Service) Renew(ctx context.Context, req domain.RenewRequest) (domain.Status, error) {
	duration, amount, currency, err := subscriptionTerms(req.DurationDays, req.Amount, req.Currency)
	if err != nil {
		return domain.Status{}, err
	}

	var renewed domain.Client
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := s.find(ctx, tx, req.ID)
		if err != nil {
			return err
		}

		loc := s.billing.Get().Location()
		now := s.clock.Now().UTC()
		start := billingcycledomain.CalendarDate(now, loc)
		client.SubscriptionStart = start.UTC()
		client.SubscriptionEnd = start.AddDate(0, 0, duration).UTC()
		client.SubscriptionAmount = amount
		client.SubscriptionCurrency = currency
		client.UpdatedAt = now

		if err := s.repo.UpdateSubscription(ctx, tx, client); err != nil {
			return err
		}
		renewed = *client
		return s.audit(ctx, tx, renewed, "client.renewed")
	})
	if err != nil {
		return domain.Status{}, err
	}
	return s.status(renewed), nil
}

func (s *Service) find(ctx context.Context, tx *gorm.DB, id string) (*domain.Client, error) {
	clientID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || clientID == 0 {
		return nil, domain.ErrInvalidID
	}
	// A tenant only sees itself.
	if scoped, ok := clientcontext.ClientIDFromContext(ctx); ok && scoped != clientID {
		return nil, domain.ErrNotFound
	}

	client, err := s.repo.FindByID(ctx, tx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, domain.ErrNotFound
	}
	return client, nil
}

func (s *Service) status(client domain.Client) domain.Status {
	cfg := s.billing.Get()
	loc := cfg.Location()
	now := s.clock.Now()
	return domain.Status{
		Client:        client,
		IsActive:      client.IsActive(now, loc),
		RemainingDays: client.RemainingDays(now, loc),
		ExpiryMessage: client.ExpiryMessage(now, loc, cfg.ExpiryWarningDays),
	}
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, client domain.Client, action string) error {
	id := client.ID.String()
	return s.auditSvc.AuditLog(ctx, tx, &client.ID, action, "client", &id, map[string]any{
		"business_name":         client.BusinessName,
		"contact_number":        client.ContactNumber,
		"subscription_end":      client.SubscriptionEnd.Format("2006-01-02"),
		"subscription_amount":   client.SubscriptionAmount.StringFixed(2),
		"subscription_currency": client.SubscriptionCurrency,
	})
}

var errSlugTaken = errors.New("slug_taken")

func subscriptionTerms(durationDays int, amount *decimal.Decimal, currency string) (int, decimal.Decimal, string, error) {
	if durationDays == 0 {
		durationDays = domain.DefaultSubscriptionDays
	}
	if durationDays < 0 {
		return 0, decimal.Decimal{}, "", domain.ErrInvalidDuration
	}

	resolved := domain.DefaultSubscriptionAmount
	if amount != nil {
		if amount.IsNegative() {
			return 0, decimal.Decimal{}, "", domain.ErrInvalidAmount
		}
		resolved = amount.Round(2)
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	if len(currency) != 3 {
		return 0, decimal.Decimal{}, "", domain.ErrInvalidCurrency
	}
	return durationDays, resolved, currency, nil
}
