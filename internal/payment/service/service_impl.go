package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	"github.com/smallbiznis/memberbill/internal/clientcontext"
	"github.com/smallbiznis/memberbill/internal/clock"
	"github.com/smallbiznis/memberbill/internal/config"
	ledgerdomain "github.com/smallbiznis/memberbill/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/memberbill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/memberbill/internal/payment/domain"
	"github.com/smallbiznis/memberbill/pkg/db"
	"github.com/smallbiznis/memberbill/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	BillRepo   billdomain.Repository
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service
	Clock      clock.Clock
	Billing    *config.BillingConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	billRepo   billdomain.Repository
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	clock      clock.Clock
	billing    *config.BillingConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		billRepo:   p.BillRepo,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		clock:      p.Clock,
		billing:    p.Billing,
		obsMetrics: p.ObsMetrics,
	}
}

// ApplyPayment adds amount to the bill's paid total. The payment insert and
// the bill update commit together; a lost update rolls both back and the
// whole read-modify-write is retried with a fresh read.
func (s *Service) ApplyPayment(ctx context.Context, req paymentdomain.ApplyPaymentRequest) (paymentdomain.ApplyPaymentResponse, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return paymentdomain.ApplyPaymentResponse{}, paymentdomain.ErrInvalidClient
	}

	billID, err := snowflake.ParseString(strings.TrimSpace(req.BillID))
	if err != nil || billID == 0 {
		return paymentdomain.ApplyPaymentResponse{}, paymentdomain.ErrInvalidBillID
	}
	// amounts are stored as numeric(12,2); finer fractions would be rounded per column
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(2)) {
		return paymentdomain.ApplyPaymentResponse{}, paymentdomain.ErrInvalidAmount
	}
	method, err := paymentdomain.ParseMethod(req.Method)
	if err != nil {
		return paymentdomain.ApplyPaymentResponse{}, err
	}

	now := s.clock.Now().UTC()
	paidAt := now
	if req.PaidAt != nil {
		if req.PaidAt.IsZero() {
			return paymentdomain.ApplyPaymentResponse{}, paymentdomain.ErrInvalidPaidAt
		}
		paidAt = req.PaidAt.UTC()
	}

	retries := s.billing.Get().ConflictRetries
	if retries < 1 {
		retries = 1
	}
	maxAttempts := 1 + retries

	log := s.log.With(
		zap.String("client_id", clientID.String()),
		zap.String("bill_id", billID.String()),
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return paymentdomain.ApplyPaymentResponse{}, err
		}

		resp, err := s.applyOnce(ctx, clientID, billID, req.Amount, method, paidAt)
		if err == nil {
			resp.Attempts = attempt
			s.obsMetrics.RecordPaymentApplied(ctx, string(method), attempt)
			if resp.Bill.DueAmount.IsNegative() {
				log.Warn("bill overpaid",
					zap.String("payment_id", resp.Payment.ID.String()),
					zap.String("due_amount", resp.Bill.DueAmount.StringFixed(2)),
				)
			}
			log.Info("payment applied",
				zap.String("payment_id", resp.Payment.ID.String()),
				zap.String("amount", req.Amount.StringFixed(2)),
				zap.String("status", string(resp.Bill.Status())),
				zap.Int("attempt", attempt),
			)
			return resp, nil
		}

		if !errors.Is(err, billdomain.ErrConcurrencyConflict) && !db.IsRetryableTxErr(err) {
			return paymentdomain.ApplyPaymentResponse{}, err
		}

		exhausted := attempt == maxAttempts
		s.obsMetrics.RecordPaymentConflict(ctx, exhausted)
		log.Warn("payment lost update race", zap.Int("attempt", attempt), zap.Bool("exhausted", exhausted), zap.Error(err))
	}

	return paymentdomain.ApplyPaymentResponse{}, fmt.Errorf("apply payment to bill %s after %d attempts: %w", billID, maxAttempts, billdomain.ErrConcurrencyConflict)
}

func (s *Service) applyOnce(ctx context.Context, clientID, billID snowflake.ID, amount decimal.Decimal, method paymentdomain.Method, paidAt time.Time) (paymentdomain.ApplyPaymentResponse, error) {
	var resp paymentdomain.ApplyPaymentResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := s.billRepo.FindByID(ctx, tx, clientID, billID)
		if err != nil {
			return err
		}
		if bill == nil {
			return fmt.Errorf("bill %s: %w", billID, billdomain.ErrBillNotFound)
		}

		now := s.clock.Now().UTC()
		updated, err := bill.ApplyPayment(amount, now)
		if err != nil {
			return err
		}

		payment := paymentdomain.Payment{
			ID:        s.genID.Generate(),
			ClientID:  clientID,
			BillID:    bill.ID,
			MemberID:  bill.MemberID,
			Amount:    amount,
			Method:    method,
			Reference: correlation.NewID(),
			PaidAt:    paidAt,
			CreatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}

		applied, err := s.billRepo.UpdatePayment(ctx, tx, &updated, bill.Version)
		if err != nil {
			return err
		}
		if !applied {
			return billdomain.ErrConcurrencyConflict
		}

		if err := s.ledgerSvc.CreateEntry(ctx, tx, ledgerdomain.CreateEntryRequest{
			ClientID:   clientID,
			SourceType: ledgerdomain.SourceTypePayment,
			SourceID:   payment.ID,
			Currency:   bill.Currency,
			OccurredAt: paidAt,
			Postings:   ledgerdomain.PaymentPostings(string(method), amount),
		}); err != nil {
			return err
		}

		paymentID := payment.ID.String()
		if err := s.auditSvc.AuditLog(ctx, tx, &clientID, "payment.applied", "payment", &paymentID, map[string]any{
			"bill_id":    bill.ID.String(),
			"amount":     amount.StringFixed(2),
			"method":     string(method),
			"reference":  payment.Reference,
			"paid_total": updated.PaidAmount.StringFixed(2),
			"due_amount": updated.DueAmount.StringFixed(2),
		}); err != nil {
			return err
		}

		resp = paymentdomain.ApplyPaymentResponse{Payment: payment, Bill: updated}
		return nil
	})
	return resp, err
}

func (s *Service) ListByBill(ctx context.Context, billID string) (paymentdomain.ListPaymentResponse, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return paymentdomain.ListPaymentResponse{}, paymentdomain.ErrInvalidClient
	}

	id, err := snowflake.ParseString(strings.TrimSpace(billID))
	if err != nil || id == 0 {
		return paymentdomain.ListPaymentResponse{}, paymentdomain.ErrInvalidBillID
	}

	bill, err := s.billRepo.FindByID(ctx, s.db, clientID, id)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}
	if bill == nil {
		return paymentdomain.ListPaymentResponse{}, billdomain.ErrBillNotFound
	}

	items, err := s.repo.ListByBill(ctx, s.db, clientID, id)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}

	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}
	return paymentdomain.ListPaymentResponse{Payments: payments}, nil
}
