package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memberbill/internal/clientcontext"
	"github.com/smallbiznis/memberbill/internal/clock"
	"github.com/smallbiznis/memberbill/internal/config"
	"github.com/smallbiznis/memberbill/internal/feecalc"
	"github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	billing *config.BillingConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("feeschedule.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		billing: p.Billing,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateFeeScheduleRequest) (domain.FeeSchedule, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return domain.FeeSchedule{}, domain.ErrInvalidClient
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.FeeSchedule{}, domain.ErrInvalidName
	}
	if req.AdmissionFee.IsNegative() {
		return domain.FeeSchedule{}, domain.ErrInvalidAdmissionFee
	}
	if req.CycleLengthDays <= 0 {
		return domain.FeeSchedule{}, domain.ErrInvalidCycleLength
	}
	if err := domain.ValidateFeeComponents(req.CustomFees); err != nil {
		return domain.FeeSchedule{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.billing.Get().DefaultCurrency
	}
	if len(currency) != 3 {
		return domain.FeeSchedule{}, domain.ErrInvalidCurrency
	}

	now := s.clock.Now().UTC()
	schedule := domain.FeeSchedule{
		ID:              s.genID.Generate(),
		ClientID:        clientID,
		Name:            name,
		AdmissionFee:    req.AdmissionFee.Round(2),
		CustomFees:      domain.FeeComponents(normalizeComponents(req.CustomFees)),
		CycleLengthDays: req.CycleLengthDays,
		Currency:        currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, &schedule); err != nil {
		return domain.FeeSchedule{}, err
	}

	s.log.Info("fee schedule created",
		zap.String("client_id", clientID.String()),
		zap.String("fee_schedule_id", schedule.ID.String()),
		zap.Int("components", len(req.CustomFees)),
	)
	return schedule, nil
}

// Update is refused once a member references the schedule; schedules are not versioned.
func (s *Service) Update(ctx context.Context, req domain.UpdateFeeScheduleRequest) (domain.FeeSchedule, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return domain.FeeSchedule{}, domain.ErrInvalidClient
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.FeeSchedule{}, err
	}

	var updated domain.FeeSchedule
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := s.repo.FindByID(ctx, tx, clientID, id)
		if err != nil {
			return err
		}
		if schedule == nil {
			return domain.ErrNotFound
		}

		members, err := s.repo.CountMembers(ctx, tx, clientID, id)
		if err != nil {
			return err
		}
		if members > 0 {
			return fmt.Errorf("fee schedule %s has %d members: %w", id, members, domain.ErrScheduleInUse)
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			schedule.Name = name
		}
		if req.AdmissionFee != nil {
			if req.AdmissionFee.IsNegative() {
				return domain.ErrInvalidAdmissionFee
			}
			schedule.AdmissionFee = req.AdmissionFee.Round(2)
		}
		if req.CycleLengthDays != nil {
			if *req.CycleLengthDays <= 0 {
				return domain.ErrInvalidCycleLength
			}
			schedule.CycleLengthDays = *req.CycleLengthDays
		}
		if req.CustomFees != nil {
			if err := domain.ValidateFeeComponents(*req.CustomFees); err != nil {
				return err
			}
			schedule.CustomFees = domain.FeeComponents(normalizeComponents(*req.CustomFees))
		}
		schedule.UpdatedAt = s.clock.Now().UTC()

		if err := s.repo.Update(ctx, tx, schedule); err != nil {
			return err
		}
		updated = *schedule
		return nil
	})
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.FeeSchedule, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return domain.FeeSchedule{}, domain.ErrInvalidClient
	}

	scheduleID, err := s.parseID(id)
	if err != nil {
		return domain.FeeSchedule{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, clientID, scheduleID)
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	if item == nil {
		return domain.FeeSchedule{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListFeeScheduleRequest) (domain.ListFeeScheduleResponse, error) {
	clientID, ok := clientcontext.ClientIDFromContext(ctx)
	if !ok {
		return domain.ListFeeScheduleResponse{}, domain.ErrInvalidClient
	}

	var cursor *pagination.Cursor
	if req.PageToken != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListFeeScheduleResponse{}, err
		}
		cursor = decoded
	}

	limit := req.Size()
	items, err := s.repo.List(ctx, s.db, clientID, cursor, limit)
	if err != nil {
		return domain.ListFeeScheduleResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, limit, func(item *domain.FeeSchedule) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		}
	})

	schedules := make([]domain.FeeSchedule, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		schedules = append(schedules, *item)
	}

	return domain.ListFeeScheduleResponse{PageInfo: pageInfo, FeeSchedules: schedules}, nil
}

func (s *Service) Quote(ctx context.Context, id string, includeJoining bool) (domain.Quote, error) {
	schedule, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Quote{}, err
	}

	lines := feecalc.Breakdown(schedule, includeJoining)
	quoteLines := make([]domain.QuoteLine, 0, len(lines))
	for _, line := range lines {
		quoteLines = append(quoteLines, domain.QuoteLine{
			Name:   line.Name,
			Kind:   string(line.Kind),
			Amount: line.Amount,
		})
	}

	return domain.Quote{
		FeeScheduleID:  schedule.ID,
		IncludeJoining: includeJoining,
		Currency:       schedule.Currency,
		Lines:          quoteLines,
		Total:          feecalc.ComputeTotal(schedule, includeJoining),
	}, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func normalizeComponents(in []domain.FeeComponent) []domain.FeeComponent {
	out := make([]domain.FeeComponent, 0, len(in))
	for _, component := range in {
		out = append(out, domain.FeeComponent{
			Name:      strings.TrimSpace(component.Name),
			Value:     component.Value.Round(2),
			Recurring: component.Recurring,
		})
	}
	return out
}
