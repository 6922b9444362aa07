package service

import (
	"context"
	"fmt"
	"time"

	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
	"github.com/smallbiznis/memberbill/internal/clock"
	"github.com/smallbiznis/memberbill/internal/config"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	memberdomain "github.com/smallbiznis/memberbill/internal/member/domain"
	obsmetrics "github.com/smallbiznis/memberbill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	MemberRepo   memberdomain.Repository
	ScheduleRepo feescheduledomain.Repository
	BillSvc      billdomain.Service
	Clock        clock.Clock
	Billing      *config.BillingConfigHolder
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	memberRepo   memberdomain.Repository
	scheduleRepo feescheduledomain.Repository
	billSvc      billdomain.Service
	clock        clock.Clock
	billing      *config.BillingConfigHolder
}

func NewService(p ServiceParam) billingcycledomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("billingcycle.service"),

		memberRepo:   p.MemberRepo,
		scheduleRepo: p.ScheduleRepo,
		billSvc:      p.BillSvc,
		clock:        p.Clock,
		billing:      p.Billing,
	}
}

// EnsureCycleBills bills every cycle that started on or before asOf's
// calendar day. Each member is handled in its own savepoint so one broken
// member does not hold back the batch.
func (s *Service) EnsureCycleBills(ctx context.Context, asOf time.Time, limit int) (billingcycledomain.RunResult, error) {
	cfg := s.billing.Get()
	loc := cfg.Location()
	cutoff := billingcycledomain.CalendarDate(asOf, loc).AddDate(0, 0, 1).UTC()

	var result billingcycledomain.RunResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimStart := time.Now()
		members, err := s.memberRepo.ListDue(ctx, tx, cutoff, limit)
		obsmetrics.Scheduler().ObserveDBLockWait(obsmetrics.ResourceMembersDue, time.Since(claimStart))
		if err != nil {
			return err
		}
		result.MembersScanned = len(members)

		for _, member := range members {
			if err := ctx.Err(); err != nil {
				return err
			}

			var created int
			err := tx.Transaction(func(sp *gorm.DB) error {
				n, err := s.ensureMemberCycles(ctx, sp, member, cutoff, loc, cfg.MaxCatchUpCycles)
				created = n
				return err
			})
			if err != nil {
				result.Skipped++
				s.log.Error("failed to bill member cycles",
					zap.String("client_id", member.ClientID.String()),
					zap.String("member_id", member.ID.String()),
					zap.Error(err),
				)
				continue
			}
			result.BillsCreated += created
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) ensureMemberCycles(ctx context.Context, tx *gorm.DB, member *memberdomain.Member, cutoff time.Time, loc *time.Location, maxCycles int) (int, error) {
	if member.NextBillingDate == nil {
		return 0, nil
	}

	schedule, err := s.scheduleRepo.FindByID(ctx, tx, member.ClientID, member.FeeScheduleID)
	if err != nil {
		return 0, err
	}
	if schedule == nil {
		return 0, fmt.Errorf("member %s: %w", member.ID, feescheduledomain.ErrNotFound)
	}
	if schedule.CycleLengthDays <= 0 {
		return 0, billingcycledomain.ErrInvalidCyclePeriod
	}

	next := billingcycledomain.CalendarDate(*member.NextBillingDate, loc)
	created, cycles := 0, 0
	for next.Before(cutoff) {
		if cycles >= maxCycles {
			s.log.Warn("catch-up limit reached, remaining cycles left for the next run",
				zap.String("member_id", member.ID.String()),
				zap.Int("cycles", cycles),
				zap.Time("next_billing_date", next),
			)
			break
		}

		_, ok, err := s.billSvc.CreateCycleBill(ctx, tx, billdomain.CycleBillRequest{
			ClientID: member.ClientID,
			MemberID: member.ID,
			Schedule: *schedule,
			BillDate: next,
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
		next = billingcycledomain.Advance(next, schedule.CycleLengthDays, loc)
		cycles++
	}

	nextUTC := next.UTC()
	if err := s.memberRepo.UpdateNextBillingDate(ctx, tx, member.ClientID, member.ID, &nextUTC, s.clock.Now().UTC()); err != nil {
		return created, err
	}
	return created, nil
}
