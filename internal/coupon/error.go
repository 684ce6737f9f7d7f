package coupon

import "errors"

var (
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrInvalidDiscountType  = errors.New("invalid discount type")
	ErrInvalidDiscountValue = errors.New("invalid discount value")
	ErrInvalidDateRange     = errors.New("end date must not be before start date")
	ErrNameRequired         = errors.New("coupon name is required")
)
