package couponrule

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"restaurant-be/internal/coupon"
	"restaurant-be/internal/events"
	"restaurant-be/internal/logger"
	"restaurant-be/internal/metrics"
	"restaurant-be/internal/order"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Ledger interface {
	OrdersInPeriod(ctx context.Context, restaurantID *uint, start, end time.Time) ([]order.PeriodOrder, error)
}

type Store interface {
	InsertCoupons(ctx context.Context, batch []*coupon.Coupon) error
}

type Engine struct {
	ledger    Ledger
	store     Store
	rules     Rules
	publisher events.Publisher
	metrics   *metrics.CouponRuns
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m *metrics.CouponRuns) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(ledger Ledger, store Store, rules Rules, opts ...Option) *Engine {
	e := &Engine{
		ledger:    ledger,
		store:     store,
		rules:     rules,
		publisher: events.Nop{},
		metrics:   &metrics.CouponRuns{},
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type RunResult struct {
	RunID        string           `json:"runId"`
	RestaurantID *uint            `json:"restaurantId,omitempty"`
	PeriodStart  time.Time        `json:"periodStart"`
	PeriodEnd    time.Time        `json:"periodEnd"`
	Customers    int              `json:"customers"`
	Coupons      []*coupon.Coupon `json:"coupons"`
}

// PreviousMonth returns [first of last month, first of this month) in loc.
func PreviousMonth(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return end.AddDate(0, -1, 0), end
}

// RunMonthly mints the reward coupons for the month before now. The batch is
// written in one transaction, so a failed or cancelled run leaves no coupons.
func (e *Engine) RunMonthly(ctx context.Context, restaurantID *uint) (*RunResult, error) {
	runID := uuid.NewString()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "couponrule"),
		zap.String("method", "RunMonthly"),
		zap.String("run_id", runID),
	)
	if restaurantID != nil {
		log = log.With(zap.Uint("restaurant_id", *restaurantID))
	}
	timer := metrics.StartTimer()
	e.metrics.Runs.Inc()

	if err := e.rules.Validate(); err != nil {
		e.metrics.Failed.Inc()
		return nil, err
	}

	now := e.now().In(e.loc)
	start, end := PreviousMonth(now, e.loc)

	orders, err := e.ledger.OrdersInPeriod(ctx, restaurantID, start, end)
	if err != nil {
		e.metrics.Failed.Inc()
		log.Error("failed to load period orders", zap.Error(err))
		return nil, fmt.Errorf("load period orders: %w", err)
	}

	stats := Aggregate(orders)
	tiers := e.rules.Classify(stats)
	batch := e.mint(tiers, restaurantID, start, now)

	result := &RunResult{
		RunID:        runID,
		RestaurantID: restaurantID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Customers:    len(stats),
		Coupons:      batch,
	}

	if err := ctx.Err(); err != nil {
		e.metrics.Failed.Inc()
		log.Warn("run cancelled before write", zap.Error(err))
		return nil, err
	}

	if len(batch) > 0 {
		if err := e.store.InsertCoupons(ctx, batch); err != nil {
			e.metrics.Failed.Inc()
			log.Error("failed to insert coupons", zap.Error(err))
			return nil, fmt.Errorf("insert coupons: %w", err)
		}
	}
	e.metrics.Minted.Add(uint64(len(batch)))

	log.Info("coupon rule run finished",
		zap.Time("period_start", start),
		zap.Int("orders", len(orders)),
		zap.Int("customers", len(stats)),
		zap.Int("coupons", len(batch)),
		zap.Duration("elapsed", timer.Duration()),
	)

	if len(batch) > 0 {
		e.publishMinted(ctx, log, result)
	}

	return result, nil
}

func (e *Engine) mint(t Tiers, restaurantID *uint, periodStart, now time.Time) []*coupon.Coupon {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	// Validity is [today, today+1 month); coupon windows are inclusive.
	validUntil := today.AddDate(0, 1, 0).Add(-time.Microsecond)
	period := periodStart.Format("January 2006")

	var restaurants []uint
	if restaurantID != nil {
		restaurants = []uint{*restaurantID}
	}

	newCoupon := func(label string, dt coupon.DiscountType, value decimal.Decimal, customers []uint) *coupon.Coupon {
		return &coupon.Coupon{
			Name:           fmt.Sprintf("%s reward - %s", label, period),
			DiscountType:   dt,
			DiscountValue:  value,
			MinOrderAmount: e.rules.MinOrderAmount,
			StartDate:      today,
			EndDate:        validUntil,
			IsActive:       true,
			RestaurantIDs:  restaurants,
			CustomerIDs:    customers,
		}
	}

	var batch []*coupon.Coupon
	if len(t.Flat) > 0 {
		batch = append(batch, newCoupon("Flat", coupon.DiscountFlat, e.rules.FlatValue, t.Flat))
	}
	if len(t.Percent) > 0 {
		batch = append(batch, newCoupon("Percent", coupon.DiscountPercent, e.rules.PercentValue, t.Percent))
	}
	if len(t.BOGO) > 0 {
		batch = append(batch, newCoupon("BOGO", coupon.DiscountBOGO, decimal.Zero, t.BOGO))
	}
	return batch
}

type mintedPayload struct {
	RunID        string    `json:"runId"`
	RestaurantID *uint     `json:"restaurantId,omitempty"`
	PeriodStart  time.Time `json:"periodStart"`
	CouponIDs    []uint    `json:"couponIds"`
}

func (e *Engine) publishMinted(ctx context.Context, log *zap.Logger, res *RunResult) {
	ids := make([]uint, 0, len(res.Coupons))
	for _, c := range res.Coupons {
		ids = append(ids, c.ID)
	}
	key := "all"
	if res.RestaurantID != nil {
		key = strconv.FormatUint(uint64(*res.RestaurantID), 10)
	}
	ev := events.New(events.TypeCouponsMinted, key, mintedPayload{
		RunID:        res.RunID,
		RestaurantID: res.RestaurantID,
		PeriodStart:  res.PeriodStart,
		CouponIDs:    ids,
	})
	if err := e.publisher.Publish(ctx, ev); err != nil {
		log.Warn("failed to publish coupons event", zap.Error(err))
	}
}
