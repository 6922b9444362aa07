// Package feecalc computes the amount owed for one billing cycle of a fee schedule.
package feecalc

import (
	"github.com/shopspring/decimal"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
)

type LineKind string

const (
	LineKindAdmission LineKind = "admission"
	LineKindOneTime   LineKind = "one_time"
	LineKindRecurring LineKind = "recurring"
)

type Line struct {
	Name   string          `json:"name"`
	Kind   LineKind        `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// ComputeTotal returns the recurring components, plus the admission fee and
// one-time components when includeJoining is set.
func ComputeTotal(schedule feescheduledomain.FeeSchedule, includeJoining bool) decimal.Decimal {
	total := decimal.Zero
	for _, line := range Breakdown(schedule, includeJoining) {
		total = total.Add(line.Amount)
	}
	return total
}

// Breakdown lists the charged lines in schedule order, admission first.
func Breakdown(schedule feescheduledomain.FeeSchedule, includeJoining bool) []Line {
	components := schedule.Components()
	lines := make([]Line, 0, len(components)+1)
	if includeJoining {
		lines = append(lines, Line{
			Name:   "Admission fee",
			Kind:   LineKindAdmission,
			Amount: schedule.AdmissionFee,
		})
	}
	for _, component := range components {
		switch {
		case component.Recurring:
			lines = append(lines, Line{Name: component.Name, Kind: LineKindRecurring, Amount: component.Value})
		case includeJoining:
			lines = append(lines, Line{Name: component.Name, Kind: LineKindOneTime, Amount: component.Value})
		}
	}
	return lines
}
