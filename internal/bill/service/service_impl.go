package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
	"github.com/smallbiznis/memberbill/internal/clientcontext"
	"github.com/smallbiznis/memberbill/internal/clock"
	"github.com/smallbiznis/memberbill/internal/config"
	"github.com/smallbiznis/memberbill/internal/enrollment"
	"github.com/smallbiznis/memberbill/internal/feecalc"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	ledgerdomain "github.com/smallbiznis/memberbill/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/memberbill/internal/observability/metrics"
	"github.com/smallbiznis/memberbill/internal/providers/pdf"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	originEnrollment = "enrollment"
	originCycle      = "cycle"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         billdomain.Repository
	ScheduleRepo feescheduledomain.Repository
	LedgerSvc    ledgerdomain.Service
	AuditSvc     auditdomain.Service
	Clock        clock.Clock
	Billing      *config.BillingConfigHolder
	PDF          pdf.Provider        `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         billdomain.Repository
	scheduleRepo feescheduledomain.Repository
	ledgerSvc    ledgerdomain.Service
	auditSvc     auditdomain.Service
	clock        clock.Clock
	billing      *config.BillingConfigHolder
	pdf          pdf.Provider
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) billdomain.Service {
	provider := p.PDF
	if provider == nil {
		provider = pdf.New()
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("bill.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		scheduleRepo: p.ScheduleRepo,
		ledgerSvc:    p.LedgerSvc,
		auditSvc:     p.AuditSvc,
		clock:        p.Clock,
		billing:      p.Billing,
		pdf:          provider,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) OnEnrollmentCreated(ctx context.Context, tx *gorm.DB, event billdomain.EnrollmentEvent) (*billdomain.Bill, enrollment.Decision, error) {
	loc := s.billing.Get().Location()
	decision := enrollment.Decide(event.NextBillingDate, event.EnrolledAt, loc)
	s.obsMetrics.RecordEnrollmentDecision(ctx, string(decision.Action))

	log := s.log.With(
		zap.String("client_id", event.ClientID.String()),
		zap.String("member_id", event.MemberID.String()),
		zap.String("action", string(decision.Action)),
	)

	switch decision.Action {
	case enrollment.ActionNone, enrollment.ActionDeferred:
		log.Debug("no bill at enrollment")
		return nil, decision, nil
	case enrollment.ActionElapsed:
		log.Warn("next billing date already elapsed at enrollment, cycle left to the recurring runner",
			zap.Time("next_billing_date", decision.BillingDay),
			zap.Time("enrollment_date", decision.EnrollmentDay),
		)
		return nil, decision, nil
	}

	bill, created, err := s.issue(ctx, tx, event.ClientID, event.MemberID, event.Schedule, decision.BillingDay, true)
	if err != nil {
		return nil, decision, err
	}
	if !created {
		return nil, decision, fmt.Errorf("member %s already billed for %s: %w", event.MemberID, decision.BillingDay.Format(time.DateOnly), billdomain.ErrInvalidBillDate)
	}
	return bill, decision, nil
}

func (s *Service) CreateCycleBill(ctx context.Context, tx *gorm.DB, req billdomain.CycleBillRequest) (*billdomain.Bill, bool, error) {
	if req.BillDate.IsZero() {
		return nil, false, billdomain.ErrInvalidBillDate
	}
	loc := s.billing.Get().Location()
	day := billingcycledomain.CalendarDate(req.BillDate, loc)
	return s.issue(ctx, tx, req.ClientID, req.MemberID, req.Schedule, day, false)
}

func (s *Service) issue(ctx context.Context, tx *gorm.DB, clientID, memberID snowflake.ID, schedule feescheduledomain.FeeSchedule, billDay time.Time, joining bool) (*billdomain.Bill, bool, error) {
	if clientID == 0 {
		return nil, false, billdomain.ErrInvalidClient
	}
	if memberID == 0 {
		return nil, false, billdomain.ErrInvalidMemberID
	}
	if schedule.CycleLengthDays <= 0 {
		return nil, false, fmt.Errorf("fee schedule %s: %w", schedule.ID, billingcycledomain.ErrInvalidCyclePeriod)
	}

	loc := s.billing.Get().Location()
	now := s.clock.Now().UTC()
	total := feecalc.ComputeTotal(schedule, joining)
	next := billingcycledomain.Advance(billDay, schedule.CycleLengthDays, loc).UTC()

	bill := billdomain.Bill{
		ID:                s.genID.Generate(),
		ClientID:          clientID,
		MemberID:          memberID,
		FeeScheduleID:     schedule.ID,
		TotalAmount:       total,
		PaidAmount:        decimal.Zero,
		DueAmount:         total,
		BillDate:          billDay.UTC(),
		NextRecurringDate: &next,
		IsRecurring:       !joining,
		Currency:          schedule.Currency,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created, err := s.repo.InsertIfAbsent(ctx, tx, &bill)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.log.Debug("cycle already billed",
			zap.String("member_id", memberID.String()),
			zap.Time("bill_date", bill.BillDate),
		)
		return nil, false, nil
	}

	if total.IsPositive() {
		if err := s.ledgerSvc.CreateEntry(ctx, tx, ledgerdomain.CreateEntryRequest{
			ClientID:   clientID,
			SourceType: ledgerdomain.SourceTypeBill,
			SourceID:   bill.ID,
			Currency:   bill.Currency,
			OccurredAt: bill.BillDate,
			Postings:   ledgerdomain.BillIssuedPostings(total),
		}); err != nil {
			return nil, false, err
		}
	}

	origin := originCycle
	if joining {
		origin = originEnrollment
	}
	billID := bill.ID.String()
	if err := s.auditSvc.AuditLog(ctx, tx, &clientID, "bill.created", "bill", &billID, map[string]any{
		"member_id":       memberID.String(),
		"fee_schedule_id": schedule.ID.String(),
		"total_amount":    total.StringFixed(2),
		"bill_date":       billDay.Format(time.DateOnly),
		"origin":          origin,
	}); err != nil {
		return nil, false, err
	}

	s.obsMetrics.RecordBillCreated(ctx, origin)
	s.log.Info("bill created",
		zap.String("client_id", clientID.String()),
		zap.String("member_id", memberID.String()),
		zap.String("bill_id", billID),
		zap.String("total_amount", total.StringFixed(2)),
		zap.String("origin", origin),
	)
	return &bill, true, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (billdomain.Bill, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return billdomain.Bill{}, billdomain.ErrInvalidClient
	}

	billID, err := parseID(id, billdomain.ErrInvalidID)
	if err != nil {
		return billdomain.Bill{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, clientID, billID)
	if err != nil {
		return billdomain.Bill{}, err
	}
	if item == nil {
		return billdomain.Bill{}, billdomain.ErrBillNotFound
	}
	return *item, nil
}

func (s *Service) ListByMember(ctx context.Context, req billdomain.ListBillRequest) (billdomain.ListBillResponse, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return billdomain.ListBillResponse{}, billdomain.ErrInvalidClient
	}

	memberID, err := parseID(req.MemberID, billdomain.ErrInvalidMemberID)
	if err != nil {
		return billdomain.ListBillResponse{}, err
	}

	var cursor *pagination.Cursor
	if req.PageToken != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return billdomain.ListBillResponse{}, err
		}
		cursor = decoded
	}

	limit := req.Size()
	items, err := s.repo.ListByMember(ctx, s.db, clientID, memberID, cursor, limit)
	if err != nil {
		return billdomain.ListBillResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, limit, func(item *billdomain.Bill) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		}
	})

	bills := make([]billdomain.Bill, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		bills = append(bills, *item)
	}
	return billdomain.ListBillResponse{PageInfo: pageInfo, Bills: bills}, nil
}

func (s *Service) SummarizeMember(ctx context.Context, clientID, memberID snowflake.ID) (billdomain.MemberSummary, error) {
	return s.repo.SummarizeMember(ctx, s.db, clientID, memberID)
}

func (s *Service) RenderReceipt(ctx context.Context, id string) (io.Reader, error) {
	bill, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	schedule, err := s.scheduleRepo.FindByID(ctx, s.db, bill.ClientID, bill.FeeScheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("bill %s: %w", bill.ID, feescheduledomain.ErrNotFound)
	}

	parties, err := s.repo.FindReceiptParties(ctx, s.db, bill.ClientID, bill.MemberID)
	if err != nil {
		return nil, err
	}
	if parties == nil {
		parties = &billdomain.ReceiptParties{}
	}

	payments, err := s.repo.ListReceiptPayments(ctx, s.db, bill.ClientID, bill.ID)
	if err != nil {
		return nil, err
	}

	loc := s.billing.Get().Location()
	data := pdf.ReceiptData{
		ClientName:    parties.ClientName,
		ClientAddress: parties.ClientAddress,
		ClientContact: parties.ClientContact,
		BillNumber:    bill.ID.String(),
		BillDate:      bill.BillDate.In(loc).Format(time.DateOnly),
		Status:        string(bill.Status()),
		MemberName:    parties.MemberName,
		MemberContact: parties.MemberContact,
		ScheduleName:  schedule.Name,
		Total:         money(bill.Currency, bill.TotalAmount),
		Paid:          money(bill.Currency, bill.PaidAmount),
		Due:           money(bill.Currency, bill.DueAmount),
	}
	if bill.NextRecurringDate != nil {
		data.NextBilling = bill.NextRecurringDate.In(loc).Format(time.DateOnly)
	}
	for _, line := range feecalc.Breakdown(*schedule, !bill.IsRecurring) {
		data.Lines = append(data.Lines, pdf.ReceiptLine{
			Description: line.Name,
			Kind:        strings.ReplaceAll(string(line.Kind), "_", " "),
			Amount:      line.Amount.StringFixed(2),
		})
	}
	for _, payment := range payments {
		data.Payments = append(data.Payments, pdf.ReceiptPayment{
			Reference: payment.Reference,
			PaidAt:    payment.PaidAt.In(loc).Format(time.DateOnly),
			Method:    payment.Method,
			Amount:    payment.Amount.StringFixed(2),
		})
	}

	return s.pdf.GenerateBillReceipt(ctx, data)
}

func money(currency string, amount decimal.Decimal) string {
	return currency + " " + amount.StringFixed(2)
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
