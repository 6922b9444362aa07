package service_test

import (
	"testing"

	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	"github.com/smallbiznis/memberbill/internal/config"
	memberdomain "github.com/smallbiznis/memberbill/internal/member/domain"
	"github.com/smallbiznis/memberbill/internal/testutil/billingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memberBills(t *testing.T, env *billingtest.Env, memberID string) []billdomain.Bill {
	t.Helper()
	list, err := env.BillSvc.ListByMember(env.Ctx(), billdomain.ListBillRequest{MemberID: memberID})
	require.NoError(t, err)
	return list.Bills
}

func TestEnsureCycleBillsCatchesUpElapsedCycles(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	today := env.Today()
	day30, day60, day90 := env.Day(30), env.Day(60), env.Day(90)

	member := env.Enroll(t, schedule.ID, &today).Member

	env.Clock.AdvanceDays(65)
	result, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MembersScanned)
	assert.Equal(t, 2, result.BillsCreated)
	assert.Zero(t, result.Skipped)

	bills := memberBills(t, env, member.ID.String())
	require.Len(t, bills, 3)
	for _, bill := range bills {
		if bill.BillDate.Equal(today) {
			assert.True(t, bill.TotalAmount.Equal(decimal.NewFromInt(2800)))
			continue
		}
		assert.True(t, bill.IsRecurring)
		assert.True(t, bill.TotalAmount.Equal(decimal.NewFromInt(2000)), "got %s", bill.TotalAmount)
		assert.True(t, bill.BillDate.Equal(day30) || bill.BillDate.Equal(day60))
	}

	stored, err := env.MemberSvc.GetByID(env.Ctx(), member.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored.NextBillingDate)
	assert.True(t, stored.NextBillingDate.Equal(day90))

	again, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Zero(t, again.MembersScanned)
	assert.Zero(t, again.BillsCreated)
}

func TestEnsureCycleBillsBillsElapsedEnrollmentWithoutJoiningFees(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	elapsed := env.Day(-3)

	resp := env.Enroll(t, schedule.ID, &elapsed)
	require.Nil(t, resp.Bill)

	result, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BillsCreated)

	bills := memberBills(t, env, resp.Member.ID.String())
	require.Len(t, bills, 1)
	assert.True(t, bills[0].BillDate.Equal(elapsed))
	assert.True(t, bills[0].TotalAmount.Equal(decimal.NewFromInt(2000)))
}

func TestEnsureCycleBillsLeavesFutureMembersAlone(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	tomorrow := env.Day(1)
	env.Enroll(t, schedule.ID, &tomorrow)
	env.Enroll(t, schedule.ID, nil)

	result, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Zero(t, result.MembersScanned)
	assert.EqualValues(t, 0, env.CountRows(t, "bills", ""))
}

func TestEnsureCycleBillsCapsCatchUp(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.MaxCatchUpCycles = 2
	env := billingtest.New(t, billingtest.WithBillingConfig(cfg))
	schedule := env.StandardSchedule(t)
	start := env.Day(-150)

	member := env.Enroll(t, schedule.ID, &start).Member

	first, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, first.BillsCreated)

	stored, err := env.MemberSvc.GetByID(env.Ctx(), member.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored.NextBillingDate)
	assert.True(t, stored.NextBillingDate.Equal(env.Day(-90)))

	// -150, -120, -90, -60, -30 and today are all due
	total := first.BillsCreated
	for i := 0; i < 5 && total < 6; i++ {
		result, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 100)
		require.NoError(t, err)
		total += result.BillsCreated
	}
	assert.Equal(t, 6, total)
	assert.EqualValues(t, 6, env.CountRows(t, "bills", "member_id = ?", member.ID))
}

func TestEnsureCycleBillsSkipsBrokenMember(t *testing.T) {
	env := billingtest.New(t)
	healthy := env.StandardSchedule(t)
	doomed := env.StandardSchedule(t)
	yesterday := env.Day(-1)

	good := env.Enroll(t, healthy.ID, &yesterday).Member
	bad := env.Enroll(t, doomed.ID, &yesterday).Member
	require.NoError(t, env.DB.Exec(`DELETE FROM fee_schedules WHERE id = ?`, doomed.ID).Error)

	result, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MembersScanned)
	assert.Equal(t, 1, result.BillsCreated)
	assert.Equal(t, 1, result.Skipped)

	assert.EqualValues(t, 1, env.CountRows(t, "bills", "member_id = ?", good.ID))
	assert.EqualValues(t, 0, env.CountRows(t, "bills", "member_id = ?", bad.ID))

	stored, err := env.MemberSvc.GetByID(env.Ctx(), bad.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored.NextBillingDate)
	assert.True(t, stored.NextBillingDate.Equal(yesterday))
}

func TestEnsureCycleBillsRespectsLimit(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	yesterday := env.Day(-1)
	for i := 0; i < 3; i++ {
		env.Enroll(t, schedule.ID, &yesterday)
	}

	result, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MembersScanned)

	result, err = env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MembersScanned)
	assert.EqualValues(t, 3, env.CountRows(t, "bills", ""))
}

func TestEnsureCycleBillsSkipsInactiveMembers(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	today := env.Today()

	inactive := env.Enroll(t, schedule.ID, &today).Member
	active := env.Enroll(t, schedule.ID, &today).Member

	off := false
	_, err := env.MemberSvc.Update(env.Ctx(), memberdomain.UpdateMemberRequest{ID: inactive.ID.String(), IsActive: &off})
	require.NoError(t, err)

	env.Clock.AdvanceDays(35)
	result, err := env.CycleSvc.EnsureCycleBills(env.Ctx(), env.Clock.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MembersScanned)
	assert.Equal(t, 1, result.BillsCreated)

	assert.Len(t, memberBills(t, env, inactive.ID.String()), 1)
	assert.Len(t, memberBills(t, env, active.ID.String()), 2)
}
