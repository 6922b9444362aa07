package feecalc

import (
	"testing"

	"github.com/shopspring/decimal"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	"github.com/stretchr/testify/assert"
)

func schedule(admission string, components ...feescheduledomain.FeeComponent) feescheduledomain.FeeSchedule {
	return feescheduledomain.FeeSchedule{
		AdmissionFee:    decimal.RequireFromString(admission),
		CustomFees:      feescheduledomain.FeeComponents(components),
		CycleLengthDays: 30,
	}
}

func component(name, value string, recurring bool) feescheduledomain.FeeComponent {
	return feescheduledomain.FeeComponent{Name: name, Value: decimal.RequireFromString(value), Recurring: recurring}
}

func TestComputeTotalTuitionScenario(t *testing.T) {
	s := schedule("500",
		component("Tuition", "2000", true),
		component("Books", "300", false),
	)

	assert.True(t, ComputeTotal(s, false).Equal(decimal.NewFromInt(2000)), "recurring only")
	assert.True(t, ComputeTotal(s, true).Equal(decimal.NewFromInt(2800)), "with joining fees")
}

func TestComputeTotalEmptySchedule(t *testing.T) {
	s := schedule("0")
	assert.True(t, ComputeTotal(s, true).IsZero())
	assert.True(t, ComputeTotal(s, false).IsZero())
}

func TestComputeTotalDecimalExact(t *testing.T) {
	s := schedule("0.10",
		component("A", "0.10", true),
		component("B", "0.20", true),
		component("C", "0.05", false),
	)

	assert.Equal(t, "0.3", ComputeTotal(s, false).String())
	assert.Equal(t, "0.45", ComputeTotal(s, true).String())
}

func TestComputeTotalProperties(t *testing.T) {
	cases := []feescheduledomain.FeeSchedule{
		schedule("0"),
		schedule("150.75", component("Gym", "999.99", true)),
		schedule("10", component("Kit", "45.5", false), component("Kit", "45.5", false)),
		schedule("1200", component("Coaching", "1500", true), component("Locker", "250", true), component("Card", "50", false)),
	}

	for _, s := range cases {
		recurring, oneTime := decimal.Zero, decimal.Zero
		for _, c := range s.Components() {
			if c.Recurring {
				recurring = recurring.Add(c.Value)
			} else {
				oneTime = oneTime.Add(c.Value)
			}
		}

		assert.True(t, ComputeTotal(s, false).Equal(recurring))
		assert.True(t, ComputeTotal(s, true).Equal(s.AdmissionFee.Add(oneTime).Add(recurring)))
		assert.True(t, ComputeTotal(s, true).Equal(ComputeTotal(s, true)))
	}
}

func TestBreakdownKinds(t *testing.T) {
	s := schedule("500",
		component("Tuition", "2000", true),
		component("Books", "300", false),
	)

	joining := Breakdown(s, true)
	if assert.Len(t, joining, 3) {
		assert.Equal(t, LineKindAdmission, joining[0].Kind)
		assert.Equal(t, LineKindRecurring, joining[1].Kind)
		assert.Equal(t, LineKindOneTime, joining[2].Kind)
	}

	cycle := Breakdown(s, false)
	if assert.Len(t, cycle, 1) {
		assert.Equal(t, "Tuition", cycle[0].Name)
	}
}
