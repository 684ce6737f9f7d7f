package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant-be/internal/couponrule"
	"restaurant-be/internal/logger"
	"restaurant-be/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	runningKey     = "couponrule:running"
	monthKeyPrefix = "couponrule:lock:"
)

// DefaultSpec ticks daily at 02:00; only the first successful tick of each
// month runs the engine.
const DefaultSpec = "0 2 * * *"

// ErrBusy means another engine run holds the running lock.
var ErrBusy = errors.New("coupon rule engine is already running")

type Runner interface {
	RunMonthly(ctx context.Context, restaurantID *uint) (*couponrule.RunResult, error)
}

// Scheduler triggers the Coupon Rule Engine on a cron spec. Runs never
// overlap across replicas, and each month's scheduled run happens once: the
// first tick of a month that completes a run claims the month, and ticks
// after a failed or busy attempt try again. The spec should fire more often
// than monthly (daily by default) so a missed month is caught up.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	locker  Locker
	spec    string
	loc     *time.Location
	now     func() time.Time
	runTTL  time.Duration
	doneTTL time.Duration
	timeout time.Duration
	metrics *metrics.CouponRuns
}

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRunTimeout bounds a single run and the running lock's TTL.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d; s.runTTL = d + time.Minute }
}

func WithMetrics(m *metrics.CouponRuns) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(runner Runner, locker Locker, spec string, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		runner:  runner,
		locker:  locker,
		spec:    spec,
		loc:     time.Local,
		now:     time.Now,
		timeout: 30 * time.Minute,
		runTTL:  31 * time.Minute,
		doneTTL: 32 * 24 * time.Hour,
		metrics: &metrics.CouponRuns{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cron = cron.New(cron.WithLocation(s.loc))
	if _, err := s.cron.AddFunc(spec, func() {
		_ = s.Tick(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	logger.L().Info("coupon rule scheduler started", zap.String("spec", s.spec))
	s.cron.Start()
}

// Stop prevents new ticks and waits for a running one or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	logger.L().Info("coupon rule scheduler stopped")
}

// Tick performs the scheduled global run for the current month unless a
// replica already did it.
func (s *Scheduler) Tick(ctx context.Context) error {
	month := s.now().In(s.loc).Format("2006-01")
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "scheduler"),
		zap.String("month", month),
	)

	key := monthKeyPrefix + month
	token, ok, err := s.locker.TryLock(ctx, key, s.doneTTL)
	if err != nil {
		s.metrics.Failed.Inc()
		log.Error("failed to acquire month lock", zap.Error(err))
		return err
	}
	if !ok {
		s.metrics.Skipped.Inc()
		log.Info("monthly run already taken, skipping")
		return nil
	}

	if _, err := s.RunNow(ctx, nil); err != nil {
		// Release so a later tick or replica can retry this month.
		if uerr := s.locker.Unlock(context.WithoutCancel(ctx), key, token); uerr != nil {
			log.Warn("failed to release month lock", zap.Error(uerr))
		}
		if errors.Is(err, ErrBusy) {
			s.metrics.Skipped.Inc()
		}
		log.Error("scheduled coupon rule run failed", zap.Error(err))
		return err
	}

	return nil
}

// RunNow runs the engine once, holding the running lock for its duration.
func (s *Scheduler) RunNow(ctx context.Context, restaurantID *uint) (*couponrule.RunResult, error) {
	token, ok, err := s.locker.TryLock(ctx, runningKey, s.runTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), runningKey, token); err != nil {
			logger.FromCtx(ctx).Warn("failed to release running lock", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.runner.RunMonthly(runCtx, restaurantID)
}
