package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	"github.com/smallbiznis/memberbill/internal/clientcontext"
	"github.com/smallbiznis/memberbill/internal/clock"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	"github.com/smallbiznis/memberbill/internal/member/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	ScheduleRepo feescheduledomain.Repository
	BillSvc      billdomain.Service
	AuditSvc     auditdomain.Service
	Clock        clock.Clock
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	scheduleRepo feescheduledomain.Repository
	billSvc      billdomain.Service
	auditSvc     auditdomain.Service
	clock        clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("member.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		scheduleRepo: p.ScheduleRepo,
		billSvc:      p.BillSvc,
		auditSvc:     p.AuditSvc,
		clock:        p.Clock,
	}
}

// Create enrolls a member and, in the same transaction, issues the joining
// bill when the next billing date is the enrollment day.
func (s *Service) Create(ctx context.Context, req domain.CreateMemberRequest) (domain.CreateMemberResponse, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return domain.CreateMemberResponse{}, domain.ErrInvalidClient
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return domain.CreateMemberResponse{}, domain.ErrInvalidFullName
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.CreateMemberResponse{}, domain.ErrInvalidEmail
	}
	scheduleID, err := snowflake.ParseString(strings.TrimSpace(req.FeeScheduleID))
	if err != nil || scheduleID == 0 {
		return domain.CreateMemberResponse{}, domain.ErrInvalidFeeSchedule
	}
	if req.OutstandingFee.IsNegative() {
		return domain.CreateMemberResponse{}, domain.ErrInvalidOutstandingFee
	}

	now := s.clock.Now().UTC()
	member := domain.Member{
		ID:             s.genID.Generate(),
		ClientID:       clientID,
		FullName:       fullName,
		ContactNumber:  strings.TrimSpace(req.ContactNumber),
		Email:          email,
		FeeScheduleID:  scheduleID,
		EnrolledAt:     now,
		OutstandingFee: req.OutstandingFee.Round(2),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.NextBillingDate != nil {
		next := req.NextBillingDate.UTC()
		member.NextBillingDate = &next
	}

	var resp domain.CreateMemberResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := s.scheduleRepo.FindByID(ctx, tx, clientID, scheduleID)
		if err != nil {
			return err
		}
		if schedule == nil {
			return fmt.Errorf("fee schedule %s: %w", scheduleID, feescheduledomain.ErrNotFound)
		}

		if err := s.repo.Insert(ctx, tx, &member); err != nil {
			return err
		}

		bill, decision, err := s.billSvc.OnEnrollmentCreated(ctx, tx, billdomain.EnrollmentEvent{
			ClientID:        clientID,
			MemberID:        member.ID,
			EnrolledAt:      member.EnrolledAt,
			NextBillingDate: member.NextBillingDate,
			Schedule:        *schedule,
		})
		if err != nil {
			return err
		}
		if bill != nil && bill.NextRecurringDate != nil {
			next := *bill.NextRecurringDate
			if err := s.repo.UpdateNextBillingDate(ctx, tx, clientID, member.ID, &next, now); err != nil {
				return err
			}
			member.NextBillingDate = &next
		}

		memberID := member.ID.String()
		if err := s.auditSvc.AuditLog(ctx, tx, &clientID, "member.created", "member", &memberID, map[string]any{
			"full_name":        member.FullName,
			"email":            member.Email,
			"contact_number":   member.ContactNumber,
			"fee_schedule_id":  scheduleID.String(),
			"billing_decision": string(decision.Action),
		}); err != nil {
			return err
		}

		resp = domain.CreateMemberResponse{
			Member:   member,
			Bill:     bill,
			Decision: string(decision.Action),
		}
		return nil
	})
	if err != nil {
		return domain.CreateMemberResponse{}, err
	}

	s.log.Info("member enrolled",
		zap.String("client_id", clientID.String()),
		zap.String("member_id", member.ID.String()),
		zap.String("billing_decision", resp.Decision),
		zap.Bool("billed", resp.Bill != nil),
	)
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Member, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return domain.Member{}, domain.ErrInvalidClient
	}

	memberID, err := s.parseID(id)
	if err != nil {
		return domain.Member{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, clientID, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if item == nil {
		return domain.Member{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListMemberRequest) (domain.ListMemberResponse, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return domain.ListMemberResponse{}, domain.ErrInvalidClient
	}

	filter := domain.ListMemberFilter{ActiveOnly: req.ActiveOnly}
	if strings.TrimSpace(req.FeeScheduleID) != "" {
		scheduleID, err := snowflake.ParseString(strings.TrimSpace(req.FeeScheduleID))
		if err != nil || scheduleID == 0 {
			return domain.ListMemberResponse{}, domain.ErrInvalidFeeSchedule
		}
		filter.FeeScheduleID = scheduleID
	}

	var cursor *pagination.Cursor
	if req.PageToken != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListMemberResponse{}, err
		}
		cursor = decoded
	}

	limit := req.Size()
	items, err := s.repo.List(ctx, s.db, clientID, filter, cursor, limit)
	if err != nil {
		return domain.ListMemberResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, limit, func(item *domain.Member) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		}
	})

	members := make([]domain.Member, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		members = append(members, *item)
	}
	return domain.ListMemberResponse{PageInfo: pageInfo, Members: members}, nil
}

// Update deactivates or reactivates a member and can move the next billing
// date. The enrollment decision is not re-run: reactivating a member whose
// next billing date has passed leaves the missed cycles to the recurring runner.
func (s *Service) Update(ctx context.Context, req domain.UpdateMemberRequest) (domain.Member, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return domain.Member{}, domain.ErrInvalidClient
	}
	memberID, err := s.parseID(req.ID)
	if err != nil {
		return domain.Member{}, err
	}
	if req.IsActive == nil && req.NextBillingDate == nil {
		return domain.Member{}, domain.ErrEmptyUpdate
	}
	if req.NextBillingDate != nil && req.NextBillingDate.IsZero() {
		return domain.Member{}, domain.ErrInvalidNextBilling
	}

	now := s.clock.Now().UTC()
	var updated domain.Member
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.repo.FindByID(ctx, tx, clientID, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.ErrNotFound
		}

		action := "member.updated"
		if req.IsActive != nil && *req.IsActive != member.IsActive {
			if err := s.repo.UpdateActive(ctx, tx, clientID, memberID, *req.IsActive, now); err != nil {
				return err
			}
			member.IsActive = *req.IsActive
			action = "member.deactivated"
			if member.IsActive {
				action = "member.reactivated"
			}
		}
		if req.NextBillingDate != nil {
			next := req.NextBillingDate.UTC()
			if err := s.repo.UpdateNextBillingDate(ctx, tx, clientID, memberID, &next, now); err != nil {
				return err
			}
			member.NextBillingDate = &next
		}
		member.UpdatedAt = now

		metadata := map[string]any{"is_active": member.IsActive}
		if member.NextBillingDate != nil {
			metadata["next_billing_date"] = member.NextBillingDate.Format(time.RFC3339)
		}
		id := memberID.String()
		if err := s.auditSvc.AuditLog(ctx, tx, &clientID, action, "member", &id, metadata); err != nil {
			return err
		}
		updated = *member
		return nil
	})
	if err != nil {
		return domain.Member{}, err
	}

	s.log.Info("member updated",
		zap.String("client_id", clientID.String()),
		zap.String("member_id", memberID.String()),
		zap.Bool("is_active", updated.IsActive),
	)
	return updated, nil
}

// Balance adds the carried-forward outstanding fee to the dues of every bill.
func (s *Service) Balance(ctx context.Context, id string) (domain.Balance, error) {
	member, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Balance{}, err
	}

	summary, err := s.billSvc.SummarizeMember(ctx, member.ClientID, member.ID)
	if err != nil {
		return domain.Balance{}, err
	}

	currency := ""
	schedule, err := s.scheduleRepo.FindByID(ctx, s.db, member.ClientID, member.FeeScheduleID)
	if err != nil {
		return domain.Balance{}, err
	}
	if schedule != nil {
		currency = schedule.Currency
	}

	billsDue := summary.TotalDue
	return domain.Balance{
		MemberID:       member.ID,
		Currency:       currency,
		OutstandingFee: member.OutstandingFee,
		BillsDue:       billsDue,
		TotalDue:       member.OutstandingFee.Add(billsDue),
		TotalPaid:      summary.TotalPaid,
		Bills:          summary.Bills,
	}, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
