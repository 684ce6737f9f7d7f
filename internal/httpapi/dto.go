package httpapi

import (
	"time"

	"restaurant-be/internal/coupon"
	"restaurant-be/internal/order"

	"github.com/shopspring/decimal"
)

type orderItemDTO struct {
	MenuItemID uint `json:"menuItemId"`
	Quantity   int  `json:"quantity"`
}

type scheduleOrderRequest struct {
	ScheduledAt time.Time      `json:"scheduledAt"`
	OrderItems  []orderItemDTO `json:"orderItems"`
	CouponID    *uint          `json:"couponId,omitempty"`
}

type orderDTO struct {
	ID           uint           `json:"id"`
	RestaurantID uint           `json:"restaurantId"`
	CustomerID   uint           `json:"customerId"`
	ScheduledAt  time.Time      `json:"scheduledAt"`
	IsConfirmed  bool           `json:"isConfirmed"`
	CouponID     *uint          `json:"couponId,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	OrderItems   []orderItemDTO `json:"orderItems"`
}

type scheduleOrderResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Reason  string    `json:"reason,omitempty"`
	Order   *orderDTO `json:"order,omitempty"`
}

func toOrderDTO(o *order.Order) *orderDTO {
	if o == nil {
		return nil
	}
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDTO{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	return &orderDTO{
		ID:           o.ID,
		RestaurantID: o.RestaurantID,
		CustomerID:   o.CustomerID,
		ScheduledAt:  o.ScheduledAt,
		IsConfirmed:  o.IsConfirmed,
		CouponID:     o.CouponID,
		CreatedAt:    o.CreatedAt,
		OrderItems:   items,
	}
}

type createCouponRequest struct {
	Name           string          `json:"name"`
	DiscountType   string          `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	IsActive       *bool           `json:"isActive,omitempty"`
	RestaurantIDs  []uint          `json:"restaurantIds,omitempty"`
	CustomerIDs    []uint          `json:"customerIds,omitempty"`
}

// input maps the body onto the service input. isActive defaults to true.
func (req createCouponRequest) input() coupon.CreateCouponInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return coupon.CreateCouponInput{
		Name:           req.Name,
		DiscountType:   req.DiscountType,
		DiscountValue:  req.DiscountValue,
		MinOrderAmount: req.MinOrderAmount,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		IsActive:       active,
		RestaurantIDs:  req.RestaurantIDs,
		CustomerIDs:    req.CustomerIDs,
	}
}

type couponDTO struct {
	ID             uint            `json:"id"`
	Name           string          `json:"name"`
	DiscountType   string          `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	IsActive       bool            `json:"isActive"`
	RestaurantIDs  []uint          `json:"restaurantIds"`
	CustomerIDs    []uint          `json:"customerIds"`
}

func toCouponDTO(c *coupon.Coupon) couponDTO {
	restaurants, customers := c.RestaurantIDs, c.CustomerIDs
	if restaurants == nil {
		restaurants = []uint{}
	}
	if customers == nil {
		customers = []uint{}
	}
	return couponDTO{
		ID:             c.ID,
		Name:           c.Name,
		DiscountType:   string(c.DiscountType),
		DiscountValue:  c.DiscountValue,
		MinOrderAmount: c.MinOrderAmount,
		StartDate:      c.StartDate,
		EndDate:        c.EndDate,
		IsActive:       c.IsActive,
		RestaurantIDs:  restaurants,
		CustomerIDs:    customers,
	}
}

type runResultDTO struct {
	RunID        string      `json:"runId"`
	RestaurantID *uint       `json:"restaurantId,omitempty"`
	PeriodStart  time.Time   `json:"periodStart"`
	PeriodEnd    time.Time   `json:"periodEnd"`
	Customers    int         `json:"customers"`
	Coupons      []couponDTO `json:"coupons"`
}
