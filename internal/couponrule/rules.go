package couponrule

import (
	"cmp"
	"errors"
	"slices"

	"restaurant-be/internal/order"

	"github.com/shopspring/decimal"
)

// Rules holds the tier thresholds and the reward each tier mints.
type Rules struct {
	FlatThreshold    decimal.Decimal
	FlatValue        decimal.Decimal
	PercentThreshold decimal.Decimal
	PercentValue     decimal.Decimal
	BOGOMinOrders    int
	MinOrderAmount   decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		FlatThreshold:    decimal.NewFromInt(20000),
		FlatValue:        decimal.NewFromInt(100),
		PercentThreshold: decimal.NewFromInt(30000),
		PercentValue:     decimal.NewFromInt(10),
		BOGOMinOrders:    6,
		MinOrderAmount:   decimal.NewFromInt(100),
	}
}

var ErrInvalidRules = errors.New("invalid coupon rules")

func (r Rules) Validate() error {
	switch {
	case !r.FlatThreshold.IsPositive():
		return errors.Join(ErrInvalidRules, errors.New("flat threshold must be positive"))
	case !r.PercentThreshold.GreaterThan(r.FlatThreshold):
		return errors.Join(ErrInvalidRules, errors.New("percent threshold must exceed flat threshold"))
	case r.BOGOMinOrders < 1:
		return errors.Join(ErrInvalidRules, errors.New("bogo order count must be at least 1"))
	case r.PercentValue.GreaterThan(decimal.NewFromInt(100)):
		return errors.Join(ErrInvalidRules, errors.New("percent value above 100"))
	}
	return nil
}

type CustomerStats struct {
	CustomerID  uint
	TotalSpent  decimal.Decimal
	TotalOrders int
}

// Aggregate folds period orders into per-customer totals, ordered by customer id.
func Aggregate(orders []order.PeriodOrder) []CustomerStats {
	byCustomer := map[uint]*CustomerStats{}
	seen := map[uint]struct{}{}

	for _, o := range orders {
		s, ok := byCustomer[o.CustomerID]
		if !ok {
			s = &CustomerStats{CustomerID: o.CustomerID, TotalSpent: decimal.Zero}
			byCustomer[o.CustomerID] = s
		}
		s.TotalSpent = s.TotalSpent.Add(o.Total())
		if _, dup := seen[o.OrderID]; !dup {
			seen[o.OrderID] = struct{}{}
			s.TotalOrders++
		}
	}

	out := make([]CustomerStats, 0, len(byCustomer))
	for _, s := range byCustomer {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b CustomerStats) int {
		return cmp.Compare(a.CustomerID, b.CustomerID)
	})
	return out
}

type Tiers struct {
	Flat    []uint
	Percent []uint
	BOGO    []uint
}

// Classify assigns customers to tiers. A customer may land in several tiers.
func (r Rules) Classify(stats []CustomerStats) Tiers {
	var t Tiers
	for _, s := range stats {
		if s.TotalSpent.GreaterThanOrEqual(r.FlatThreshold) {
			t.Flat = append(t.Flat, s.CustomerID)
		}
		if s.TotalSpent.GreaterThanOrEqual(r.PercentThreshold) {
			t.Percent = append(t.Percent, s.CustomerID)
		}
		if s.TotalOrders >= r.BOGOMinOrders {
			t.BOGO = append(t.BOGO, s.CustomerID)
		}
	}
	return t
}
