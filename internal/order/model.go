package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           uint
	RestaurantID uint
	CustomerID   uint
	ScheduledAt  time.Time
	IsConfirmed  bool
	CouponID     *uint
	CreatedAt    time.Time
	Items        []OrderItem
}

type OrderItem struct {
	ID         uint
	OrderID    uint
	MenuItemID uint
	Quantity   int
}

type ItemInput struct {
	MenuItemID uint
	Quantity   int
}

type ScheduleOrderInput struct {
	RestaurantID uint
	CustomerID   uint
	ScheduledAt  time.Time
	Items        []ItemInput
	CouponID     *uint
}

type RejectionReason string

const (
	ReasonRestaurantNotFound RejectionReason = "restaurant_not_found"
	ReasonPastSchedule       RejectionReason = "past_schedule"
	ReasonHoursNotSet        RejectionReason = "hours_not_set"
	ReasonOutsideHours       RejectionReason = "outside_hours"
	ReasonFullyBooked        RejectionReason = "fully_booked"
	ReasonInvalidCoupon      RejectionReason = "invalid_coupon"
	ReasonInvalidItems       RejectionReason = "invalid_items"
)

// ScheduleResult is the outcome of a booking attempt that reached a decision.
// Rejections are reported here; infrastructure failures come back as errors.
type ScheduleResult struct {
	Success bool
	Reason  RejectionReason
	Message string
	Order   *Order
}

func rejected(reason RejectionReason, message string) *ScheduleResult {
	return &ScheduleResult{Reason: reason, Message: message}
}

// PeriodOrder is a confirmed order with its items priced from the menu.
type PeriodOrder struct {
	OrderID      uint
	RestaurantID uint
	CustomerID   uint
	ScheduledAt  time.Time
	Items        []PricedItem
}

type PricedItem struct {
	MenuItemID uint
	Quantity   int
	UnitPrice  decimal.Decimal
}

func (p PeriodOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range p.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
