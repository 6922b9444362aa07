package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	"github.com/smallbiznis/memberbill/internal/clock"
	ledgerdomain "github.com/smallbiznis/memberbill/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/memberbill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntry(ctx context.Context, db *gorm.DB, req ledgerdomain.CreateEntryRequest) error {
	if req.ClientID == 0 {
		return ledgerdomain.ErrInvalidClient
	}
	sourceType := ledgerdomain.LedgerSourceType(strings.TrimSpace(string(req.SourceType)))
	if sourceType == "" {
		return ledgerdomain.ErrInvalidSourceType
	}
	if req.SourceID == 0 {
		return ledgerdomain.ErrInvalidSourceID
	}
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		return ledgerdomain.ErrInvalidCurrency
	}
	if req.OccurredAt.IsZero() {
		return ledgerdomain.ErrInvalidOccurredAt
	}
	if len(req.Postings) < 2 {
		return ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.Posting, 0, len(req.Postings))
	for _, posting := range req.Postings {
		if strings.TrimSpace(string(posting.Account)) == "" {
			return ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(posting.Direction)
		if err != nil {
			return err
		}
		if posting.Amount.IsNegative() {
			return ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.Posting{
			Account:   posting.Account,
			Direction: direction,
			Amount:    posting.Amount,
		})
	}
	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return err
	}

	inserted := false
	write := func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		entry := ledgerdomain.LedgerEntry{
			ID:         s.genID.Generate(),
			ClientID:   req.ClientID,
			SourceType: sourceType,
			SourceID:   req.SourceID,
			Currency:   currency,
			OccurredAt: req.OccurredAt.UTC(),
			CreatedAt:  now,
		}
		result := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}, {Name: "source_type"}, {Name: "source_id"}},
			DoNothing: true,
		}).Create(&entry)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		for _, posting := range normalized {
			accountID, err := s.ensureAccount(ctx, tx, req.ClientID, posting.Account, now)
			if err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO ledger_entry_lines (
					id, ledger_entry_id, account_id, direction, amount, created_at
				) VALUES (?, ?, ?, ?, ?, ?)`,
				s.genID.Generate(),
				entry.ID,
				accountID,
				string(posting.Direction),
				posting.Amount,
				now,
			).Error; err != nil {
				return err
			}
		}

		if s.auditSvc != nil {
			entryID := entry.ID.String()
			metadata := map[string]any{
				"source_type": string(sourceType),
				"source_id":   req.SourceID.String(),
			}
			if err := s.auditSvc.AuditLog(ctx, tx, &req.ClientID, "ledger.entry_created", "ledger_entry", &entryID, metadata); err != nil {
				s.log.Warn("failed to write ledger audit log", zap.Error(err))
			}
		}
		return nil
	}

	var err error
	if db != nil {
		err = write(db)
	} else {
		err = s.db.WithContext(ctx).Transaction(write)
	}
	if err != nil {
		return fmt.Errorf("post %s %s: %w", sourceType, req.SourceID, err)
	}
	if inserted {
		s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	}
	return nil
}

// AccountBalance returns debits minus credits for one account.
func (s *Service) AccountBalance(ctx context.Context, clientID snowflake.ID, code ledgerdomain.LedgerAccountCode) (decimal.Decimal, error) {
	var rows []struct {
		Direction string
		Amount    decimal.Decimal
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT l.direction AS direction, COALESCE(SUM(l.amount), 0) AS amount
		 FROM ledger_entry_lines l
		 JOIN ledger_accounts a ON a.id = l.account_id
		 WHERE a.client_id = ? AND a.code = ?
		 GROUP BY l.direction`,
		clientID,
		code,
	).Scan(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, row := range rows {
		if row.Direction == string(ledgerdomain.LedgerEntryDirectionDebit) {
			balance = balance.Add(row.Amount)
		} else {
			balance = balance.Sub(row.Amount)
		}
	}
	return balance, nil
}

func (s *Service) ensureAccount(ctx context.Context, tx *gorm.DB, clientID snowflake.ID, code ledgerdomain.LedgerAccountCode, now time.Time) (snowflake.ID, error) {
	account := ledgerdomain.LedgerAccount{
		ID:        s.genID.Generate(),
		ClientID:  clientID,
		Code:      code,
		Name:      code.Name(),
		CreatedAt: now,
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}, {Name: "code"}},
		DoNothing: true,
	}).Create(&account).Error; err != nil {
		return 0, err
	}

	var id snowflake.ID
	if err := tx.WithContext(ctx).Raw(
		`SELECT id FROM ledger_accounts WHERE client_id = ? AND code = ?`,
		clientID,
		code,
	).Scan(&id).Error; err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, ledgerdomain.ErrInvalidAccount
	}
	return id, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
