package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	"github.com/smallbiznis/memberbill/internal/testutil/billingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecurringBillsCatchesUpMissedCycles(t *testing.T) {
	useTestRegistry(t)

	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	today := env.Today()
	joined := env.Enroll(t, schedule.ID, &today)
	require.NotNil(t, joined.Bill)

	deferredStart := env.Day(10)
	later := env.Enroll(t, schedule.ID, &deferredStart)
	require.Nil(t, later.Bill)

	day30, day40, day60, day70, day90 := env.Day(30), env.Day(40), env.Day(60), env.Day(70), env.Day(90)

	s, err := New(Params{
		Log:      zap.NewNop(),
		GenID:    env.Node,
		Clock:    env.Clock,
		CycleSvc: env.CycleSvc,
		Config:   Config{BatchSize: 1},
	})
	require.NoError(t, err)

	env.Clock.AdvanceDays(65)
	require.NoError(t, s.RunOnce(context.Background()))

	// first member: the joining bill plus cycles on day 30 and 60
	assert.EqualValues(t, 3, env.CountRows(t, "bills", "member_id = ?", joined.Member.ID))
	// second member: cycles on day 10 and 40, no joining fees
	assert.EqualValues(t, 2, env.CountRows(t, "bills", "member_id = ?", later.Member.ID))

	bills, err := env.BillSvc.ListByMember(env.Ctx(), billdomain.ListBillRequest{MemberID: joined.Member.ID.String()})
	require.NoError(t, err)
	var cycleDates []time.Time
	for _, bill := range bills.Bills {
		if !bill.IsRecurring {
			continue
		}
		assert.True(t, bill.TotalAmount.Equal(decimal.NewFromInt(2000)), "got %s", bill.TotalAmount)
		cycleDates = append(cycleDates, bill.BillDate)
	}
	require.Len(t, cycleDates, 2)
	assert.True(t, containsDay(cycleDates, day30))
	assert.True(t, containsDay(cycleDates, day60))

	member, err := env.MemberSvc.GetByID(env.Ctx(), joined.Member.ID.String())
	require.NoError(t, err)
	require.NotNil(t, member.NextBillingDate)
	assert.True(t, member.NextBillingDate.Equal(day90))

	other, err := env.MemberSvc.GetByID(env.Ctx(), later.Member.ID.String())
	require.NoError(t, err)
	require.NotNil(t, other.NextBillingDate)
	assert.True(t, other.NextBillingDate.Equal(day70))

	otherBills, err := env.BillSvc.ListByMember(env.Ctx(), billdomain.ListBillRequest{MemberID: later.Member.ID.String()})
	require.NoError(t, err)
	for _, bill := range otherBills.Bills {
		assert.True(t, bill.IsRecurring)
		assert.True(t, bill.BillDate.Equal(deferredStart) || bill.BillDate.Equal(day40))
	}

	// a second run on the same day finds nothing due
	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 5, env.CountRows(t, "bills", ""))
}

func containsDay(days []time.Time, want time.Time) bool {
	for _, d := range days {
		if d.Equal(want) {
			return true
		}
	}
	return false
}
