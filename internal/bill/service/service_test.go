package service_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	paymentdomain "github.com/smallbiznis/memberbill/internal/payment/domain"
	"github.com/smallbiznis/memberbill/internal/testutil/billingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateCycleBillChargesRecurringOnlyAndIsIdempotent(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	member := env.Enroll(t, schedule.ID, nil).Member

	billDay := env.Day(30)
	var first *billdomain.Bill
	err := env.DB.Transaction(func(tx *gorm.DB) error {
		bill, created, err := env.BillSvc.CreateCycleBill(env.Ctx(), tx, billdomain.CycleBillRequest{
			ClientID: env.Client.ID,
			MemberID: member.ID,
			Schedule: schedule,
			BillDate: billDay,
		})
		require.True(t, created)
		first = bill
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, first)

	assert.True(t, first.TotalAmount.Equal(decimal.NewFromInt(2000)), "got %s", first.TotalAmount)
	assert.True(t, first.IsRecurring)
	assert.True(t, first.BillDate.Equal(billDay))
	require.NotNil(t, first.NextRecurringDate)
	assert.True(t, first.NextRecurringDate.Equal(env.Day(60)))

	err = env.DB.Transaction(func(tx *gorm.DB) error {
		bill, created, err := env.BillSvc.CreateCycleBill(env.Ctx(), tx, billdomain.CycleBillRequest{
			ClientID: env.Client.ID,
			MemberID: member.ID,
			Schedule: schedule,
			BillDate: billDay,
		})
		assert.False(t, created)
		assert.Nil(t, bill)
		return err
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, env.CountRows(t, "bills", "member_id = ?", member.ID))
	assert.EqualValues(t, 1, env.CountRows(t, "ledger_entries", "source_type = ?", "bill"))
}

func TestCreateCycleBillRejectsZeroDate(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)

	_, _, err := env.BillSvc.CreateCycleBill(env.Ctx(), env.DB, billdomain.CycleBillRequest{
		ClientID: env.Client.ID,
		MemberID: env.Node.Generate(),
		Schedule: schedule,
	})
	assert.ErrorIs(t, err, billdomain.ErrInvalidBillDate)
}

func TestZeroTotalBillIsPaidAndSkipsLedger(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.Schedule(t, decimal.Zero, nil, 30)
	today := env.Today()

	resp := env.Enroll(t, schedule.ID, &today)
	require.NotNil(t, resp.Bill)
	assert.True(t, resp.Bill.TotalAmount.IsZero())
	assert.Equal(t, billdomain.BillStatusPaid, resp.Bill.Status())
	assert.EqualValues(t, 0, env.CountRows(t, "ledger_entries", ""))
}

func TestGetByIDScopesToClient(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	today := env.Today()
	bill := env.Enroll(t, schedule.ID, &today).Bill
	require.NotNil(t, bill)

	got, err := env.BillSvc.GetByID(env.Ctx(), bill.ID.String())
	require.NoError(t, err)
	assert.Equal(t, bill.ID, got.ID)
	assert.Equal(t, billdomain.BillStatusOpen, got.Status())

	_, err = env.BillSvc.GetByID(env.Ctx(), env.Node.Generate().String())
	assert.ErrorIs(t, err, billdomain.ErrBillNotFound)

	_, err = env.BillSvc.GetByID(env.Ctx(), "bogus")
	assert.ErrorIs(t, err, billdomain.ErrInvalidID)
}

func TestListByMemberAndSummary(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	today := env.Today()
	resp := env.Enroll(t, schedule.ID, &today)
	require.NotNil(t, resp.Bill)

	_, err := env.PaymentSvc.ApplyPayment(env.Ctx(), paymentdomain.ApplyPaymentRequest{
		BillID: resp.Bill.ID.String(),
		Amount: decimal.NewFromInt(1000),
		Method: "cash",
	})
	require.NoError(t, err)

	list, err := env.BillSvc.ListByMember(env.Ctx(), billdomain.ListBillRequest{MemberID: resp.Member.ID.String()})
	require.NoError(t, err)
	require.Len(t, list.Bills, 1)
	assert.Equal(t, billdomain.BillStatusPartiallyPaid, list.Bills[0].Status())

	summary, err := env.BillSvc.SummarizeMember(env.Ctx(), env.Client.ID, resp.Member.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.Bills)
	assert.True(t, summary.TotalDue.Equal(decimal.NewFromInt(1800)), "got %s", summary.TotalDue)
	assert.True(t, summary.TotalPaid.Equal(decimal.NewFromInt(1000)), "got %s", summary.TotalPaid)
}

func TestRenderReceipt(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.Schedule(t, decimal.NewFromInt(500), []feescheduledomain.FeeComponent{
		{Name: "Tuition", Value: decimal.NewFromInt(2000), Recurring: true},
	}, 30)
	today := env.Today()
	bill := env.Enroll(t, schedule.ID, &today).Bill
	require.NotNil(t, bill)

	_, err := env.PaymentSvc.ApplyPayment(env.Ctx(), paymentdomain.ApplyPaymentRequest{
		BillID: bill.ID.String(),
		Amount: decimal.NewFromInt(500),
		Method: "card",
	})
	require.NoError(t, err)

	reader, err := env.BillSvc.RenderReceipt(env.Ctx(), bill.ID.String())
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}
