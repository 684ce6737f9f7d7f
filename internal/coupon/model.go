package coupon

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountFlat    DiscountType = "Flat"
	DiscountPercent DiscountType = "Percent"
	DiscountBOGO    DiscountType = "BOGO"
)

// ParseDiscountType accepts any casing of Flat, Percent (or Percentage) and BOGO.
func ParseDiscountType(s string) (DiscountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat":
		return DiscountFlat, nil
	case "percent", "percentage":
		return DiscountPercent, nil
	case "bogo":
		return DiscountBOGO, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDiscountType, s)
}

type Coupon struct {
	ID             uint
	Name           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	MinOrderAmount decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	IsActive       bool
	IsDeleted      bool
	CreatedAt      time.Time

	// Empty means unrestricted.
	RestaurantIDs []uint
	CustomerIDs   []uint
}

func (c *Coupon) InWindow(now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

func (c *Coupon) IsValidAt(now time.Time) bool {
	return c.IsActive && !c.IsDeleted && c.InWindow(now)
}

func (c *Coupon) AppliesToRestaurant(restaurantID uint) bool {
	return len(c.RestaurantIDs) == 0 || slices.Contains(c.RestaurantIDs, restaurantID)
}

func (c *Coupon) AppliesToCustomer(customerID uint) bool {
	return len(c.CustomerIDs) == 0 || slices.Contains(c.CustomerIDs, customerID)
}

func (c *Coupon) AppliesTo(restaurantID, customerID uint) bool {
	return c.AppliesToRestaurant(restaurantID) && c.AppliesToCustomer(customerID)
}

// Eligibility reports the validity flags of one coupon for a booking.
type Eligibility struct {
	CouponID           uint `json:"couponId"`
	Exists             bool `json:"exists"`
	Active             bool `json:"active"`
	InWindow           bool `json:"inWindow"`
	RestaurantEligible bool `json:"restaurantEligible"`
	CustomerEligible   bool `json:"customerEligible"`
}

// Valid is the check the booking path applies: the coupon exists, is active
// and now is within its window.
func (e *Eligibility) Valid() bool {
	return e.Exists && e.Active && e.InWindow
}

func (e *Eligibility) Applicable() bool {
	return e.Valid() && e.RestaurantEligible && e.CustomerEligible
}
