package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	"github.com/smallbiznis/memberbill/internal/testutil/billingtest"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndQuote(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)

	assert.Equal(t, "INR", schedule.Currency)
	assert.Equal(t, env.Client.ID, schedule.ClientID)

	stored, err := env.ScheduleSvc.GetByID(env.Ctx(), schedule.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Components(), 2)
	assert.True(t, stored.AdmissionFee.Equal(decimal.NewFromInt(500)))
	assert.True(t, stored.Components()[0].Recurring)

	joining, err := env.ScheduleSvc.Quote(env.Ctx(), schedule.ID.String(), true)
	require.NoError(t, err)
	assert.True(t, joining.Total.Equal(decimal.NewFromInt(2800)), "got %s", joining.Total)
	require.Len(t, joining.Lines, 3)
	assert.Equal(t, "admission", joining.Lines[0].Kind)

	cycle, err := env.ScheduleSvc.Quote(env.Ctx(), schedule.ID.String(), false)
	require.NoError(t, err)
	assert.True(t, cycle.Total.Equal(decimal.NewFromInt(2000)), "got %s", cycle.Total)
	require.Len(t, cycle.Lines, 1)
}

func TestCreateValidation(t *testing.T) {
	env := billingtest.New(t)

	tests := []struct {
		name    string
		ctx     context.Context
		req     feescheduledomain.CreateFeeScheduleRequest
		wantErr error
	}{
		{
			name:    "missing client",
			ctx:     context.Background(),
			req:     feescheduledomain.CreateFeeScheduleRequest{Name: "A", CycleLengthDays: 30},
			wantErr: feescheduledomain.ErrInvalidClient,
		},
		{
			name:    "blank name",
			ctx:     env.Ctx(),
			req:     feescheduledomain.CreateFeeScheduleRequest{Name: " ", CycleLengthDays: 30},
			wantErr: feescheduledomain.ErrInvalidName,
		},
		{
			name:    "negative admission",
			ctx:     env.Ctx(),
			req:     feescheduledomain.CreateFeeScheduleRequest{Name: "A", AdmissionFee: decimal.NewFromInt(-1), CycleLengthDays: 30},
			wantErr: feescheduledomain.ErrInvalidAdmissionFee,
		},
		{
			name:    "zero cycle",
			ctx:     env.Ctx(),
			req:     feescheduledomain.CreateFeeScheduleRequest{Name: "A"},
			wantErr: feescheduledomain.ErrInvalidCycleLength,
		},
		{
			name: "negative component",
			ctx:  env.Ctx(),
			req: feescheduledomain.CreateFeeScheduleRequest{
				Name:            "A",
				CycleLengthDays: 30,
				CustomFees:      []feescheduledomain.FeeComponent{{Name: "Refund", Value: decimal.NewFromInt(-10)}},
			},
			wantErr: feescheduledomain.ErrInvalidCustomFees,
		},
		{
			name:    "bad currency",
			ctx:     env.Ctx(),
			req:     feescheduledomain.CreateFeeScheduleRequest{Name: "A", CycleLengthDays: 30, Currency: "RUPEES"},
			wantErr: feescheduledomain.ErrInvalidCurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ScheduleSvc.Create(tt.ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpdateUnusedSchedule(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)

	name := "Quarterly"
	cycle := 90
	fee := decimal.RequireFromString("750.255")
	updated, err := env.ScheduleSvc.Update(env.Ctx(), feescheduledomain.UpdateFeeScheduleRequest{
		ID:              schedule.ID.String(),
		Name:            &name,
		AdmissionFee:    &fee,
		CycleLengthDays: &cycle,
	})
	require.NoError(t, err)
	assert.Equal(t, "Quarterly", updated.Name)
	assert.Equal(t, 90, updated.CycleLengthDays)
	assert.Equal(t, "750.26", updated.AdmissionFee.StringFixed(2))

	stored, err := env.ScheduleSvc.GetByID(env.Ctx(), schedule.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Quarterly", stored.Name)
	assert.Len(t, stored.Components(), 2)
}

func TestUpdateRejectsScheduleInUse(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)
	env.Enroll(t, schedule.ID, nil)

	name := "Renamed"
	_, err := env.ScheduleSvc.Update(env.Ctx(), feescheduledomain.UpdateFeeScheduleRequest{
		ID:   schedule.ID.String(),
		Name: &name,
	})
	require.ErrorIs(t, err, feescheduledomain.ErrScheduleInUse)

	stored, err := env.ScheduleSvc.GetByID(env.Ctx(), schedule.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Monthly", stored.Name)
}

func TestGetByIDNotFound(t *testing.T) {
	env := billingtest.New(t)

	_, err := env.ScheduleSvc.GetByID(env.Ctx(), env.Node.Generate().String())
	assert.ErrorIs(t, err, feescheduledomain.ErrNotFound)

	_, err = env.ScheduleSvc.Quote(env.Ctx(), "nope", true)
	assert.ErrorIs(t, err, feescheduledomain.ErrInvalidID)
}

func TestListPages(t *testing.T) {
	env := billingtest.New(t)
	for i := 0; i < 3; i++ {
		env.StandardSchedule(t)
	}

	first, err := env.ScheduleSvc.List(env.Ctx(), feescheduledomain.ListFeeScheduleRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.FeeSchedules, 2)
	require.True(t, first.HasMore)

	second, err := env.ScheduleSvc.List(env.Ctx(), feescheduledomain.ListFeeScheduleRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.FeeSchedules, 1)
	assert.False(t, second.HasMore)
	assert.NotEqual(t, first.FeeSchedules[1].ID, second.FeeSchedules[0].ID)
}

func TestStoredLooseCustomFeesLoad(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)

	require.NoError(t, env.DB.Exec(
		`UPDATE fee_schedules SET custom_fees = ? WHERE id = ?`,
		`[{"name":"Tuition","value":"2000","recurring":true,"color":"blue"},{"name":"Locker","recurring":true},{"name":"Kit","value":null}]`,
		schedule.ID,
	).Error)

	stored, err := env.ScheduleSvc.GetByID(env.Ctx(), schedule.ID.String())
	require.NoError(t, err)
	components := stored.Components()
	require.Len(t, components, 3)
	assert.True(t, components[0].Value.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, "Locker", components[1].Name)
	assert.True(t, components[1].Value.IsZero())
	assert.True(t, components[1].Recurring)
	assert.True(t, components[2].Value.IsZero())

	cycle, err := env.ScheduleSvc.Quote(env.Ctx(), schedule.ID.String(), false)
	require.NoError(t, err)
	assert.True(t, cycle.Total.Equal(decimal.NewFromInt(2000)), "got %s", cycle.Total)
	require.Len(t, cycle.Lines, 2)
}

func TestMalformedStoredCustomFeesFailRead(t *testing.T) {
	env := billingtest.New(t)
	schedule := env.StandardSchedule(t)

	require.NoError(t, env.DB.Exec(
		`UPDATE fee_schedules SET custom_fees = ? WHERE id = ?`,
		`{"name":"Tuition"}`,
		schedule.ID,
	).Error)

	_, err := env.ScheduleSvc.GetByID(env.Ctx(), schedule.ID.String())
	assert.ErrorIs(t, err, feescheduledomain.ErrInvalidCustomFees)
}
