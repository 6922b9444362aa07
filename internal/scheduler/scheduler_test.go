package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
	"github.com/smallbiznis/memberbill/internal/clock"
	obsmetrics "github.com/smallbiznis/memberbill/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCycleService struct {
	results []billingcycledomain.RunResult
	err     error
	calls   int
	asOf    []time.Time
}

func (s *stubCycleService) EnsureCycleBills(_ context.Context, asOf time.Time, _ int) (billingcycledomain.RunResult, error) {
	s.calls++
	s.asOf = append(s.asOf, asOf)
	if s.err != nil {
		return billingcycledomain.RunResult{}, s.err
	}
	if len(s.results) == 0 {
		return billingcycledomain.RunResult{}, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next, nil
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := useTestRegistry(t)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "memberbill",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "memberbill_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "memberbill",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "memberbill_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsFailures(t *testing.T) {
	useTestRegistry(t)

	s := newTestScheduler(t, &stubCycleService{}, nil, Config{})
	boom := errors.New("boom")
	err := s.runJob(context.Background(), JobRecurringBills, 1, time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobRecurringBills)
}

func TestRecurringBillsJobPagesUntilShortBatch(t *testing.T) {
	registry := useTestRegistry(t)

	now := time.Date(2024, 7, 1, 6, 30, 0, 0, time.UTC)
	cycles := &stubCycleService{results: []billingcycledomain.RunResult{
		{MembersScanned: 2, BillsCreated: 3},
		{MembersScanned: 2, BillsCreated: 2},
		{MembersScanned: 1, BillsCreated: 1},
	}}
	s := newTestScheduler(t, cycles, nil, Config{BatchSize: 2})
	s.clock = clock.NewFakeClock(now)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 3, cycles.calls)
	for _, asOf := range cycles.asOf {
		assert.True(t, asOf.Equal(now))
	}

	bills := getCounterValue(t, registry, "memberbill_scheduler_batch_processed_total", map[string]string{
		"service":  "memberbill",
		"env":      "test",
		"job":      JobRecurringBills,
		"resource": obsmetrics.ResourceCycleBills,
	})
	assert.Equal(t, float64(6), bills)

	members := getCounterValue(t, registry, "memberbill_scheduler_batch_processed_total", map[string]string{
		"service":  "memberbill",
		"env":      "test",
		"job":      JobRecurringBills,
		"resource": obsmetrics.ResourceMembersDue,
	})
	assert.Equal(t, float64(5), members)
}

func TestRecurringBillsJobStopsWhenBatchMakesNoProgress(t *testing.T) {
	useTestRegistry(t)

	cycles := &stubCycleService{results: []billingcycledomain.RunResult{
		{MembersScanned: 2, Skipped: 2},
		{MembersScanned: 2, BillsCreated: 2},
	}}
	s := newTestScheduler(t, cycles, nil, Config{BatchSize: 2})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, cycles.calls)
}

func TestRecurringBillsJobRespectsMaxPasses(t *testing.T) {
	useTestRegistry(t)

	full := billingcycledomain.RunResult{MembersScanned: 1, BillsCreated: 1}
	cycles := &stubCycleService{results: []billingcycledomain.RunResult{full, full, full, full, full}}
	s := newTestScheduler(t, cycles, nil, Config{BatchSize: 1, MaxPasses: 3})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 3, cycles.calls)
}

func TestRunOnceReturnsServiceErrors(t *testing.T) {
	useTestRegistry(t)

	boom := errors.New("db unavailable")
	s := newTestScheduler(t, &stubCycleService{err: boom}, nil, Config{})

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	useTestRegistry(t)

	cycles := &stubCycleService{}
	s := newTestScheduler(t, cycles, nil, Config{EnabledJobs: []string{"something_else"}})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, cycles.calls)
}

func TestRunOnceDefersWhileAnotherReplicaHoldsTheLock(t *testing.T) {
	registry := useTestRegistry(t)

	mr := miniredis.RunT(t)
	locker := NewRedisLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, mr.Set(jobLockKey(JobRecurringBills), "other-replica"))

	cycles := &stubCycleService{}
	s := newTestScheduler(t, cycles, locker, Config{})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, cycles.calls)

	deferred := getCounterValue(t, registry, "memberbill_scheduler_batch_deferred_total", map[string]string{
		"service": "memberbill",
		"env":     "test",
		"job":     JobRecurringBills,
		"reason":  obsmetrics.SchedulerBatchDeferredReasonLockHeld,
	})
	assert.Equal(t, float64(1), deferred)

	got, err := mr.Get(jobLockKey(JobRecurringBills))
	require.NoError(t, err)
	assert.Equal(t, "other-replica", got)
}

func TestRunOnceReleasesLockAfterRun(t *testing.T) {
	useTestRegistry(t)

	mr := miniredis.RunT(t)
	locker := NewRedisLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	cycles := &stubCycleService{}
	s := newTestScheduler(t, cycles, locker, Config{})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, cycles.calls)
	assert.False(t, mr.Exists(jobLockKey(JobRecurringBills)))
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	locker := NewRedisLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job", "stale-token"))
	assert.True(t, mr.Exists("job"))

	require.NoError(t, locker.Release(ctx, "job", token))
	assert.False(t, mr.Exists("job"))

	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerValidation(t *testing.T) {
	mr := miniredis.RunT(t)
	locker := NewRedisLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, _, err := locker.TryLock(context.Background(), "", time.Minute)
	assert.Error(t, err)
	_, _, err = locker.TryLock(context.Background(), "job", 0)
	assert.Error(t, err)

	var missing *RedisLocker
	_, _, err = missing.TryLock(context.Background(), "job", time.Minute)
	assert.Error(t, err)
	assert.NoError(t, missing.Release(context.Background(), "job", "token"))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{JobTimeout: 20 * time.Minute}.withDefaults()
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 20*time.Minute, cfg.LockTTL)
	assert.Equal(t, 50, cfg.MaxPasses)
}

func newTestScheduler(t *testing.T, cycles billingcycledomain.Service, locker Locker, cfg Config) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	p := Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2024, 6, 1, 6, 30, 0, 0, time.UTC)),
		CycleSvc: cycles,
		Config:   cfg,
	}
	if locker != nil {
		p.Locker = locker
	}
	s, err := New(p)
	require.NoError(t, err)
	return s
}

func useTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "memberbill",
		Environment: "test",
	})
	return registry
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
