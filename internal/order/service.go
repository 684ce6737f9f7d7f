package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"restaurant-be/internal/coupon"
	"restaurant-be/internal/db"
	"restaurant-be/internal/events"
	"restaurant-be/internal/logger"
	"restaurant-be/internal/metrics"
	"restaurant-be/internal/restaurant"

	"go.uber.org/zap"
)

const (
	DefaultCapacity    = 10
	DefaultLockTimeout = 3 * time.Second
)

type Service interface {
	// ScheduleOrder admits or rejects one booking. Rejections come back as a
	// result with Success=false; the error is reserved for contention and
	// persistence failures.
	ScheduleOrder(ctx context.Context, input ScheduleOrderInput) (*ScheduleResult, error)

	GetOrdersForCustomerAtRestaurant(ctx context.Context, restaurantID, customerID uint) ([]*Order, error)
}

// CouponChecker is the promotions collaborator consulted for coupon validity.
type CouponChecker interface {
	CheckEligibility(ctx context.Context, couponID, restaurantID, customerID uint) (*coupon.Eligibility, error)
}

type service struct {
	tx          db.Transactor
	repo        Repository
	restaurants restaurant.Repository
	coupons     CouponChecker
	publisher   events.Publisher
	metrics     *metrics.Admission

	capacity    int
	lockTimeout time.Duration
	now         func() time.Time
	loc         *time.Location
}

type Option func(*service)

func WithCapacity(n int) Option {
	return func(s *service) { s.capacity = n }
}

func WithLockTimeout(d time.Duration) Option {
	return func(s *service) { s.lockTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLocation sets the zone in which hours and windows are evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *service) { s.loc = loc }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *service) { s.publisher = p }
}

func WithMetrics(m *metrics.Admission) Option {
	return func(s *service) { s.metrics = m }
}

func NewService(
	tx db.Transactor,
	repo Repository,
	restaurants restaurant.Repository,
	coupons CouponChecker,
	opts ...Option,
) Service {
	s := &service{
		tx:          tx,
		repo:        repo,
		restaurants: restaurants,
		coupons:     coupons,
		publisher:   events.Nop{},
		metrics:     metrics.NewAdmission(),
		capacity:    DefaultCapacity,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
		loc:         time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) ScheduleOrder(ctx context.Context, input ScheduleOrderInput) (*ScheduleResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ScheduleOrder"),
		zap.Uint("restaurant_id", input.RestaurantID),
		zap.Uint("customer_id", input.CustomerID),
		zap.Time("scheduled_at", input.ScheduledAt),
	)
	timer := metrics.StartTimer()

	var result *ScheduleResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.admit(ctx, input)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSlotContention) {
			s.metrics.Contended.Inc()
			log.Warn("slot contention", zap.Error(err), zap.Duration("elapsed", timer.Duration()))
			return nil, err
		}
		s.metrics.Failed.Inc()
		log.Error("failed to schedule order", zap.Error(err))
		return nil, fmt.Errorf("schedule order: %w", err)
	}

	if !result.Success {
		s.reject(log, result)
		return result, nil
	}

	s.metrics.Accepted.Inc()
	log.Info("order scheduled",
		zap.Uint("order_id", result.Order.ID),
		zap.Duration("elapsed", timer.Duration()),
	)
	s.publishScheduled(ctx, log, result.Order)

	return result, nil
}

// admit runs the validation sequence inside the unit of work. The window lock
// is held from the count until commit, so no other admission for the same
// restaurant and hour can interleave.
func (s *service) admit(ctx context.Context, input ScheduleOrderInput) (*ScheduleResult, error) {
	r, err := s.restaurants.GetByID(ctx, input.RestaurantID)
	if errors.Is(err, restaurant.ErrRestaurantNotFound) {
		return rejected(ReasonRestaurantNotFound,
			fmt.Sprintf("Restaurant with ID %d not found.", input.RestaurantID)), nil
	}
	if err != nil {
		return nil, err
	}

	scheduled := input.ScheduledAt.In(s.loc)
	now := s.now().In(s.loc)
	if scheduled.Before(now) {
		return rejected(ReasonPastSchedule, "You cannot schedule an order in the past."), nil
	}

	if !r.HoursSet() {
		return rejected(ReasonHoursNotSet, "Restaurant's opening and closing time not set."), nil
	}

	tod := restaurant.Of(scheduled)
	if !r.IsOpenAt(tod) {
		return rejected(ReasonOutsideHours, fmt.Sprintf(
			"Order time %s is outside restaurant hours. Please choose a time between %s and %s.",
			tod, r.OpenTime, r.CloseTime,
		)), nil
	}

	if res := validateItems(input.Items); res != nil {
		return res, nil
	}

	start, end := SlotWindow(scheduled)
	if err := s.repo.LockWindow(ctx, r.ID, start, s.lockTimeout); err != nil {
		return nil, err
	}

	count, err := s.repo.CountConfirmedInWindow(ctx, r.ID, start, end)
	if err != nil {
		return nil, err
	}
	if count >= s.capacity {
		return rejected(ReasonFullyBooked, fmt.Sprintf(
			"The selected 1-hour time slot (%s - %s) is fully booked. Please choose a different time.",
			start.Format("15:04"), end.Format("15:04"),
		)), nil
	}

	if input.CouponID != nil {
		elig, err := s.coupons.CheckEligibility(ctx, *input.CouponID, r.ID, input.CustomerID)
		if err != nil {
			return nil, err
		}
		if !elig.Valid() {
			return rejected(ReasonInvalidCoupon, "Invalid or expired coupon."), nil
		}
	}

	o := &Order{
		RestaurantID: r.ID,
		CustomerID:   input.CustomerID,
		ScheduledAt:  scheduled,
		IsConfirmed:  true,
		CouponID:     input.CouponID,
		Items:        make([]OrderItem, 0, len(input.Items)),
	}
	for _, it := range input.Items {
		o.Items = append(o.Items, OrderItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}

	if err := s.repo.AppendOrder(ctx, o); err != nil {
		return nil, err
	}

	return &ScheduleResult{
		Success: true,
		Message: "Order scheduled successfully.",
		Order:   o,
	}, nil
}

func validateItems(items []ItemInput) *ScheduleResult {
	if len(items) == 0 {
		return rejected(ReasonInvalidItems, "An order must contain at least one item.")
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return rejected(ReasonInvalidItems, fmt.Sprintf(
				"Quantity for menu item %d must be at least 1.", it.MenuItemID))
		}
	}
	return nil
}

func (s *service) reject(log *zap.Logger, res *ScheduleResult) {
	s.metrics.Reject(string(res.Reason))
	log.Warn("order rejected",
		zap.String("reason", string(res.Reason)),
		zap.String("message", res.Message),
	)
}

type scheduledPayload struct {
	OrderID      uint      `json:"orderId"`
	RestaurantID uint      `json:"restaurantId"`
	CustomerID   uint      `json:"customerId"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	CouponID     *uint     `json:"couponId,omitempty"`
	ItemCount    int       `json:"itemCount"`
}

// publishScheduled runs after commit; a broker failure does not undo the order.
func (s *service) publishScheduled(ctx context.Context, log *zap.Logger, o *Order) {
	ev := events.New(events.TypeOrderScheduled, strconv.FormatUint(uint64(o.RestaurantID), 10), scheduledPayload{
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		CustomerID:   o.CustomerID,
		ScheduledAt:  o.ScheduledAt,
		CouponID:     o.CouponID,
		ItemCount:    len(o.Items),
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warn("failed to publish order event", zap.Error(err))
	}
}

func (s *service) GetOrdersForCustomerAtRestaurant(ctx context.Context, restaurantID, customerID uint) ([]*Order, error) {
	return s.repo.ListForCustomerAtRestaurant(ctx, restaurantID, customerID)
}
