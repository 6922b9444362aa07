// Package enrollment decides whether a new member is billed at creation time.
package enrollment

import (
	"time"

	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
)

type Action string

const (
	// ActionNone: no next billing date configured, the member is never billed automatically.
	ActionNone Action = "none"
	// ActionDeferred: the first bill belongs to the recurring runner.
	ActionDeferred Action = "deferred"
	// ActionElapsed: the billing date already passed. Nothing is billed at enrollment.
	ActionElapsed Action = "elapsed"
	// ActionBillNow: the billing date is the enrollment day, bill with joining fees.
	ActionBillNow Action = "bill_now"
)

type Decision struct {
	Action        Action
	BillingDay    time.Time
	EnrollmentDay time.Time
}

func (d Decision) ShouldBill() bool {
	return d.Action == ActionBillNow
}

// Decide compares the member's next billing date with the enrollment date as
// calendar days in loc.
func Decide(nextBillingDate *time.Time, enrolledAt time.Time, loc *time.Location) Decision {
	enrollmentDay := billingcycledomain.CalendarDate(enrolledAt, loc)
	if nextBillingDate == nil {
		return Decision{Action: ActionNone, EnrollmentDay: enrollmentDay}
	}

	billingDay := billingcycledomain.CalendarDate(*nextBillingDate, loc)
	decision := Decision{BillingDay: billingDay, EnrollmentDay: enrollmentDay}
	switch billingDay.Compare(enrollmentDay) {
	case 1:
		decision.Action = ActionDeferred
	case -1:
		decision.Action = ActionElapsed
	default:
		decision.Action = ActionBillNow
	}
	return decision
}
