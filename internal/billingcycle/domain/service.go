package domain

import (
	"context"
	"errors"
	"time"
)

// RunResult summarizes one recurring billing pass.
type RunResult struct {
	MembersScanned int
	BillsCreated   int
	Skipped        int
}

type Service interface {
	// EnsureCycleBills issues every elapsed cycle bill for members due on or before asOf.
	EnsureCycleBills(ctx context.Context, asOf time.Time, limit int) (RunResult, error)
}

var (
	ErrInvalidCyclePeriod = errors.New("invalid_cycle_period")
)
