package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"restaurant-be/internal/db"
	"restaurant-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository is the order ledger.
type Repository interface {
	AppendOrder(ctx context.Context, o *Order) error

	// LockWindow serialises admission for one restaurant/hour window until the
	// ambient transaction ends.
	LockWindow(
		ctx context.Context,
		restaurantID uint,
		windowStart time.Time,
		timeout time.Duration,
	) error

	CountConfirmedInWindow(
		ctx context.Context,
		restaurantID uint,
		start, end time.Time,
	) (int, error)

	OrdersInPeriod(
		ctx context.Context,
		restaurantID *uint,
		start, end time.Time,
	) ([]PeriodOrder, error)

	ListForCustomerAtRestaurant(
		ctx context.Context,
		restaurantID, customerID uint,
	) ([]*Order, error)
}

type repository struct {
	db *sql.DB
	tx db.Transactor
}

func NewRepository(conn *sql.DB) Repository {
	return &repository{db: conn, tx: db.NewTransactor(conn, nil)}
}

const (
	sqlStateLockNotAvailable     = "55P03"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateQueryCanceled        = "57014"
)

// isContention reports whether err is a lock wait or conflict that the caller
// can retry.
func isContention(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case sqlStateLockNotAvailable, sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	case sqlStateQueryCanceled:
		return errors.Is(ctx.Err(), context.DeadlineExceeded)
	}
	return false
}

func (r *repository) LockWindow(
	ctx context.Context,
	restaurantID uint,
	windowStart time.Time,
	timeout time.Duration,
) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "LockWindow"),
		zap.Uint("restaurant_id", restaurantID),
		zap.Time("window_start", windowStart),
	)

	tx, ok := db.TxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	if timeout > 0 {
		// lock_timeout is scoped to this transaction.
		_, err := tx.ExecContext(ctx,
			`SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", timeout.Milliseconds()),
		)
		if err != nil {
			log.Error("failed to set lock timeout", zap.Error(err))
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1, $2)`,
		int32(restaurantID), windowKey(windowStart),
	)
	if err != nil {
		if isContention(ctx, err) {
			log.Warn("window lock not acquired", zap.Error(err))
			return fmt.Errorf("lock window: %w", ErrSlotContention)
		}
		log.Error("failed to lock window", zap.Error(err))
		return fmt.Errorf("lock window: %w", err)
	}

	return nil
}

func (r *repository) CountConfirmedInWindow(
	ctx context.Context,
	restaurantID uint,
	start, end time.Time,
) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM orders
		WHERE restaurant_id = $1
		  AND is_confirmed = TRUE
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
	`

	var count int
	err := db.Conn(ctx, r.db).QueryRowContext(ctx, query, restaurantID, start, end).Scan(&count)
	if err != nil {
		if isContention(ctx, err) {
			return 0, fmt.Errorf("count window: %w", ErrSlotContention)
		}
		logger.FromCtx(ctx).Error("failed to count window orders",
			zap.String("layer", "repository"),
			zap.String("method", "CountConfirmedInWindow"),
			zap.Error(err),
		)
		return 0, fmt.Errorf("count window: %w", err)
	}

	return count, nil
}

func (r *repository) AppendOrder(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "AppendOrder"),
		zap.Uint("restaurant_id", o.RestaurantID),
		zap.Uint("customer_id", o.CustomerID),
	)

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx, r.db)

		err := q.QueryRowContext(ctx, `
			INSERT INTO orders (
				restaurant_id, customer_id, scheduled_at,
				is_confirmed, coupon_id
			) VALUES ($1,$2,$3,$4,$5)
			RETURNING id, created_at
		`,
			o.RestaurantID,
			o.CustomerID,
			o.ScheduledAt,
			o.IsConfirmed,
			nullableID(o.CouponID),
		).Scan(&o.ID, &o.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range o.Items {
			item := &o.Items[i]
			item.OrderID = o.ID
			err = q.QueryRowContext(ctx, `
				INSERT INTO order_items (order_id, menu_item_id, quantity)
				VALUES ($1,$2,$3)
				RETURNING id
			`,
				item.OrderID,
				item.MenuItemID,
				item.Quantity,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		if isContention(ctx, err) {
			log.Warn("order insert lost a conflict", zap.Error(err))
			return fmt.Errorf("append order: %w", ErrSlotContention)
		}
		log.Error("failed to append order", zap.Error(err))
		return err
	}

	log.Info("order appended", zap.Uint("order_id", o.ID))
	return nil
}

func (r *repository) OrdersInPeriod(
	ctx context.Context,
	restaurantID *uint,
	start, end time.Time,
) ([]PeriodOrder, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "OrdersInPeriod"),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	query := `
		SELECT o.id, o.restaurant_id, o.customer_id, o.scheduled_at,
		       oi.menu_item_id, oi.quantity, mi.price
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN menu_items mi ON mi.id = oi.menu_item_id
		WHERE o.is_confirmed = TRUE
		  AND o.scheduled_at >= $1
		  AND o.scheduled_at < $2
		  AND ($3::bigint IS NULL OR o.restaurant_id = $3)
		ORDER BY o.id, oi.id
	`

	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, query, start, end, nullableID(restaurantID))
	if err != nil {
		log.Error("failed to query period orders", zap.Error(err))
		return nil, fmt.Errorf("orders in period: %w", err)
	}
	defer rows.Close()

	var orders []PeriodOrder
	for rows.Next() {
		var (
			o    PeriodOrder
			item PricedItem
		)
		if err := rows.Scan(
			&o.OrderID,
			&o.RestaurantID,
			&o.CustomerID,
			&o.ScheduledAt,
			&item.MenuItemID,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("scan period order: %w", err)
		}

		// Rows arrive grouped by order id.
		if n := len(orders); n > 0 && orders[n-1].OrderID == o.OrderID {
			orders[n-1].Items = append(orders[n-1].Items, item)
			continue
		}
		o.Items = []PricedItem{item}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate period orders: %w", err)
	}

	log.Debug("period orders loaded", zap.Int("count", len(orders)))
	return orders, nil
}

func (r *repository) ListForCustomerAtRestaurant(
	ctx context.Context,
	restaurantID, customerID uint,
) ([]*Order, error) {
	q := db.Conn(ctx, r.db)

	rows, err := q.QueryContext(ctx, `
		SELECT id, restaurant_id, customer_id, scheduled_at,
		       is_confirmed, coupon_id, created_at
		FROM orders
		WHERE restaurant_id = $1 AND customer_id = $2
		ORDER BY scheduled_at DESC, id DESC
	`, restaurantID, customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []*Order
		ids    []int64
		byID   = map[uint]*Order{}
	)
	for rows.Next() {
		var (
			o        Order
			couponID sql.NullInt64
		)
		if err := rows.Scan(
			&o.ID,
			&o.RestaurantID,
			&o.CustomerID,
			&o.ScheduledAt,
			&o.IsConfirmed,
			&couponID,
			&o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if couponID.Valid {
			id := uint(couponID.Int64)
			o.CouponID = &id
		}
		orders = append(orders, &o)
		ids = append(ids, int64(o.ID))
		byID[o.ID] = &o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := q.QueryContext(ctx, `
		SELECT id, order_id, menu_item_id, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it OrderItem
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return orders, nil
}

func nullableID(id *uint) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}
