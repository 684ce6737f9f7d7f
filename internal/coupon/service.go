package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant-be/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service interface {
	CreateCoupon(ctx context.Context, input CreateCouponInput) (*Coupon, error)
	UpdateCoupon(ctx context.Context, id uint, input UpdateCouponInput) (*Coupon, error)
	GetCoupon(ctx context.Context, id uint) (*Coupon, error)
	ListAvailable(ctx context.Context, restaurantID, customerID *uint) ([]*Coupon, error)
	DeleteCoupon(ctx context.Context, id uint) error
	CheckEligibility(ctx context.Context, couponID, restaurantID, customerID uint) (*Eligibility, error)
}

type CreateCouponInput struct {
	Name           string
	DiscountType   string
	DiscountValue  decimal.Decimal
	MinOrderAmount decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	IsActive       bool
	RestaurantIDs  []uint
	CustomerIDs    []uint
}

// UpdateCouponInput replaces every mutable field; omitted link lists clear
// the restriction.
type UpdateCouponInput = CreateCouponInput

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the coupon service. now defaults to time.Now.
func NewService(repo Repository, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, now: now}
}

var hundred = decimal.NewFromInt(100)

func (s *service) CreateCoupon(ctx context.Context, input CreateCouponInput) (*Coupon, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateCoupon"),
	)

	c, err := buildCoupon(input)
	if err != nil {
		log.Warn("invalid coupon input", zap.Error(err))
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	log.Info("coupon created", zap.Uint("coupon_id", c.ID))
	return c, nil
}

func (s *service) UpdateCoupon(ctx context.Context, id uint, input UpdateCouponInput) (*Coupon, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateCoupon"),
		zap.Uint("coupon_id", id),
	)

	c, err := buildCoupon(input)
	if err != nil {
		log.Warn("invalid coupon input", zap.Error(err))
		return nil, err
	}
	c.ID = id

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	log.Info("coupon updated")
	return c, nil
}

// buildCoupon validates input and returns an unsaved coupon.
func buildCoupon(input CreateCouponInput) (*Coupon, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	dt, err := ParseDiscountType(input.DiscountType)
	if err != nil {
		return nil, err
	}

	if input.DiscountValue.IsNegative() || input.MinOrderAmount.IsNegative() {
		return nil, ErrInvalidDiscountValue
	}
	if dt == DiscountPercent && input.DiscountValue.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: percent above 100", ErrInvalidDiscountValue)
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, ErrInvalidDateRange
	}

	return &Coupon{
		Name:           name,
		DiscountType:   dt,
		DiscountValue:  input.DiscountValue,
		MinOrderAmount: input.MinOrderAmount,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		IsActive:       input.IsActive,
		RestaurantIDs:  input.RestaurantIDs,
		CustomerIDs:    input.CustomerIDs,
	}, nil
}

func (s *service) GetCoupon(ctx context.Context, id uint) (*Coupon, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListAvailable(ctx context.Context, restaurantID, customerID *uint) ([]*Coupon, error) {
	return s.repo.ListAvailable(ctx, restaurantID, customerID, s.now())
}

func (s *service) DeleteCoupon(ctx context.Context, id uint) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	logger.FromCtx(ctx).Info("coupon deleted",
		zap.String("layer", "service"),
		zap.Uint("coupon_id", id),
	)
	return nil
}

// CheckEligibility never fails for a missing coupon; it reports Exists=false.
func (s *service) CheckEligibility(ctx context.Context, couponID, restaurantID, customerID uint) (*Eligibility, error) {
	c, err := s.repo.GetByID(ctx, couponID)
	if errors.Is(err, ErrCouponNotFound) {
		return &Eligibility{CouponID: couponID}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Eligibility{
		CouponID:           couponID,
		Exists:             true,
		Active:             c.IsActive,
		InWindow:           c.InWindow(s.now()),
		RestaurantEligible: c.AppliesToRestaurant(restaurantID),
		CustomerEligible:   c.AppliesToCustomer(customerID),
	}, nil
}
