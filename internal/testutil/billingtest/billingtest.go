// Package billingtest wires the billing services over an in-memory sqlite
// database for service and handler tests.
package billingtest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	auditrepository "github.com/smallbiznis/memberbill/internal/audit/repository"
	auditservice "github.com/smallbiznis/memberbill/internal/audit/service"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	billrepository "github.com/smallbiznis/memberbill/internal/bill/repository"
	billservice "github.com/smallbiznis/memberbill/internal/bill/service"
	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
	billingcycleservice "github.com/smallbiznis/memberbill/internal/billingcycle/service"
	clientdomain "github.com/smallbiznis/memberbill/internal/client/domain"
	clientrepository "github.com/smallbiznis/memberbill/internal/client/repository"
	clientservice "github.com/smallbiznis/memberbill/internal/client/service"
	"github.com/smallbiznis/memberbill/internal/clientcontext"
	"github.com/smallbiznis/memberbill/internal/clock"
	"github.com/smallbiznis/memberbill/internal/config"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	feeschedulerepository "github.com/smallbiznis/memberbill/internal/feeschedule/repository"
	feescheduleservice "github.com/smallbiznis/memberbill/internal/feeschedule/service"
	ledgerdomain "github.com/smallbiznis/memberbill/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/memberbill/internal/ledger/service"
	memberdomain "github.com/smallbiznis/memberbill/internal/member/domain"
	memberrepository "github.com/smallbiznis/memberbill/internal/member/repository"
	memberservice "github.com/smallbiznis/memberbill/internal/member/service"
	"github.com/smallbiznis/memberbill/internal/migration"
	paymentdomain "github.com/smallbiznis/memberbill/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/memberbill/internal/payment/repository"
	paymentservice "github.com/smallbiznis/memberbill/internal/payment/service"
	"github.com/smallbiznis/memberbill/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultNow is noon in Asia/Kolkata on 2024-06-01.
var DefaultNow = time.Date(2024, 6, 1, 6, 30, 0, 0, time.UTC)

type options struct {
	now      time.Time
	billing  config.BillingConfig
	wrapBill func(billdomain.Repository) billdomain.Repository
	log      *zap.Logger
}

type Option func(*options)

func WithNow(t time.Time) Option {
	return func(o *options) { o.now = t }
}

func WithBillingConfig(cfg config.BillingConfig) Option {
	return func(o *options) { o.billing = cfg }
}

// WithBillRepository lets a test intercept the bill repository the payment
// service reconciles through.
func WithBillRepository(wrap func(billdomain.Repository) billdomain.Repository) Option {
	return func(o *options) { o.wrapBill = wrap }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// Env is a fully wired set of services bound to one client.
type Env struct {
	DB      *gorm.DB
	Node    *snowflake.Node
	Clock   *clock.FakeClock
	Billing *config.BillingConfigHolder
	Log     *zap.Logger

	Client clientdomain.Client

	ScheduleRepo feescheduledomain.Repository
	MemberRepo   memberdomain.Repository
	BillRepo     billdomain.Repository
	PaymentRepo  paymentdomain.Repository

	AuditSvc    auditdomain.Service
	LedgerSvc   ledgerdomain.Service
	ClientSvc   clientdomain.Service
	ScheduleSvc feescheduledomain.Service
	BillSvc     billdomain.Service
	MemberSvc   memberdomain.Service
	PaymentSvc  paymentdomain.Service
	CycleSvc    billingcycledomain.Service
}

func New(t testing.TB, opts ...Option) *Env {
	t.Helper()

	o := options{
		now:     DefaultNow,
		billing: config.DefaultBillingConfig(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	db := testutil.OpenDB(t, migration.Models()...)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(o.now)
	billing := config.NewStaticBillingConfigHolder(o.billing)

	env := &Env{
		DB:      db,
		Node:    node,
		Clock:   clk,
		Billing: billing,
		Log:     o.log,

		ScheduleRepo: feeschedulerepository.Provide(),
		MemberRepo:   memberrepository.Provide(),
		BillRepo:     billrepository.Provide(),
		PaymentRepo:  paymentrepository.Provide(),
	}

	env.AuditSvc = auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   o.log,
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: clk,
	})
	env.LedgerSvc = ledgerservice.NewService(ledgerservice.Params{
		DB:       db,
		Log:      o.log,
		GenID:    node,
		Clock:    clk,
		AuditSvc: env.AuditSvc,
	})
	env.ClientSvc = clientservice.New(clientservice.Params{
		DB:       db,
		Log:      o.log,
		GenID:    node,
		Repo:     clientrepository.Provide(),
		AuditSvc: env.AuditSvc,
		Clock:    clk,
		Billing:  billing,
	})
	env.ScheduleSvc = feescheduleservice.New(feescheduleservice.Params{
		DB:      db,
		Log:     o.log,
		GenID:   node,
		Repo:    env.ScheduleRepo,
		Clock:   clk,
		Billing: billing,
	})
	env.BillSvc = billservice.NewService(billservice.Params{
		DB:           db,
		Log:          o.log,
		GenID:        node,
		Repo:         env.BillRepo,
		ScheduleRepo: env.ScheduleRepo,
		LedgerSvc:    env.LedgerSvc,
		AuditSvc:     env.AuditSvc,
		Clock:        clk,
		Billing:      billing,
	})
	env.MemberSvc = memberservice.New(memberservice.Params{
		DB:           db,
		Log:          o.log,
		GenID:        node,
		Repo:         env.MemberRepo,
		ScheduleRepo: env.ScheduleRepo,
		BillSvc:      env.BillSvc,
		AuditSvc:     env.AuditSvc,
		Clock:        clk,
	})

	paymentBillRepo := env.BillRepo
	if o.wrapBill != nil {
		paymentBillRepo = o.wrapBill(env.BillRepo)
	}
	env.PaymentSvc = paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       o.log,
		GenID:     node,
		Repo:      env.PaymentRepo,
		BillRepo:  paymentBillRepo,
		LedgerSvc: env.LedgerSvc,
		AuditSvc:  env.AuditSvc,
		Clock:     clk,
		Billing:   billing,
	})
	env.CycleSvc = billingcycleservice.NewService(billingcycleservice.ServiceParam{
		DB:           db,
		Log:          o.log,
		MemberRepo:   env.MemberRepo,
		ScheduleRepo: env.ScheduleRepo,
		BillSvc:      env.BillSvc,
		Clock:        clk,
		Billing:      billing,
	})

	status, err := env.ClientSvc.Create(context.Background(), clientdomain.CreateClientRequest{
		BusinessName:  "Sunrise Yoga Studio",
		ContactNumber: "+91 98765 43210",
		Address:       "12 Lake Road, Pune",
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	env.Client = status.Client
	return env
}

// Ctx returns a context scoped to the environment's client.
func (e *Env) Ctx() context.Context {
	return clientcontext.WithClientID(context.Background(), e.Client.ID)
}

func (e *Env) Location() *time.Location {
	return e.Billing.Get().Location()
}

// Today is the current calendar day in the reference zone.
func (e *Env) Today() time.Time {
	return billingcycledomain.CalendarDate(e.Clock.Now(), e.Location())
}

// Day returns the calendar day offset from today.
func (e *Env) Day(offset int) time.Time {
	return e.Today().AddDate(0, 0, offset)
}

// StandardSchedule creates the 500 admission, 2000 recurring tuition and
// 300 one-time books schedule on a 30 day cycle: 2800 to join, 2000 a cycle.
func (e *Env) StandardSchedule(t testing.TB) feescheduledomain.FeeSchedule {
	t.Helper()
	return e.Schedule(t, decimal.NewFromInt(500), []feescheduledomain.FeeComponent{
		{Name: "Tuition", Value: decimal.NewFromInt(2000), Recurring: true},
		{Name: "Books", Value: decimal.NewFromInt(300), Recurring: false},
	}, 30)
}

func (e *Env) Schedule(t testing.TB, admission decimal.Decimal, components []feescheduledomain.FeeComponent, cycleDays int) feescheduledomain.FeeSchedule {
	t.Helper()
	schedule, err := e.ScheduleSvc.Create(e.Ctx(), feescheduledomain.CreateFeeScheduleRequest{
		Name:            "Monthly",
		AdmissionFee:    admission,
		CustomFees:      components,
		CycleLengthDays: cycleDays,
	})
	if err != nil {
		t.Fatalf("create fee schedule: %v", err)
	}
	return schedule
}

// Enroll registers a member on the schedule with the given next billing day.
func (e *Env) Enroll(t testing.TB, scheduleID snowflake.ID, next *time.Time) memberdomain.CreateMemberResponse {
	t.Helper()
	resp, err := e.MemberSvc.Create(e.Ctx(), memberdomain.CreateMemberRequest{
		FullName:        "Asha Rao",
		ContactNumber:   "9000000001",
		Email:           "asha@example.com",
		FeeScheduleID:   scheduleID.String(),
		NextBillingDate: next,
	})
	if err != nil {
		t.Fatalf("enroll member: %v", err)
	}
	return resp
}

// CountRows counts the rows of table, optionally filtered.
func (e *Env) CountRows(t testing.TB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	q := e.DB.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
