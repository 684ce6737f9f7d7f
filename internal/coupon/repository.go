package coupon

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

// Repository is the coupon store. Reads exclude soft-deleted coupons.
type Repository interface {
	GetByID(ctx context.Context, id uint) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error

	// Update replaces every mutable field of c.ID and its eligibility links.
	Update(ctx context.Context, c *Coupon) error

	// InsertCoupons writes the whole batch, with eligibility links, in one
	// transaction.
	InsertCoupons(ctx context.Context, batch []*Coupon) error

	ListAvailable(
		ctx context.Context,
		restaurantID, customerID *uint,
		now time.Time,
	) ([]*Coupon, error)

	SoftDelete(ctx context.Context, id uint) error
}

type repository struct {
	db *sql.DB
	tx db.Transactor
}

func NewRepository(conn *sql.DB) Repository {
	return &repository{db: conn, tx: db.NewTransactor(conn, nil)}
}

const couponColumns = `
	c.id, c.name, c.discount_type, c.discount_value, c.min_order_amount,
	c.start_date, c.end_date, c.is_active, c.created_at,
	COALESCE((SELECT array_agg(cr.restaurant_id ORDER BY cr.restaurant_id)
	          FROM coupon_restaurants cr WHERE cr.coupon_id = c.id), '{}'),
	COALESCE((SELECT array_agg(cc.customer_id ORDER BY cc.customer_id)
	          FROM coupon_customers cc WHERE cc.coupon_id = c.id), '{}')
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (*Coupon, error) {
	var (
		c                        Coupon
		restaurantIDs, customers pq.Int64Array
	)
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinOrderAmount,
		&c.StartDate,
		&c.EndDate,
		&c.IsActive,
		&c.CreatedAt,
		&restaurantIDs,
		&customers,
	)
	if err != nil {
		return nil, err
	}
	c.RestaurantIDs = toUints(restaurantIDs)
	c.CustomerIDs = toUints(customers)
	return &c, nil
}

func (r *repository) GetByID(ctx context.Context, id uint) (*Coupon, error) {
	query := `SELECT ` + couponColumns + `
		FROM coupons c
		WHERE c.id = $1 AND c.is_deleted = FALSE
	`

	c, err := scanCoupon(db.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to get coupon",
			zap.String("layer", "repository"),
			zap.String("method", "GetByID"),
			zap.Uint("coupon_id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return c, nil
}

func (r *repository) Create(ctx context.Context, c *Coupon) error {
	return r.InsertCoupons(ctx, []*Coupon{c})
}

func (r *repository) InsertCoupons(ctx context.Context, batch []*Coupon) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "InsertCoupons"),
		zap.Int("batch_size", len(batch)),
	)

	if len(batch) == 0 {
		return nil
	}

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx, r.db)

		for _, c := range batch {
			err := q.QueryRowContext(ctx, `
				INSERT INTO coupons (
					name, discount_type, discount_value, min_order_amount,
					start_date, end_date, is_active
				) VALUES ($1,$2,$3,$4,$5,$6,$7)
				RETURNING id, created_at
			`,
				c.Name,
				c.DiscountType,
				c.DiscountValue,
				c.MinOrderAmount,
				c.StartDate,
				c.EndDate,
				c.IsActive,
			).Scan(&c.ID, &c.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert coupon %q: %w", c.Name, err)
			}

			if err := insertLinks(ctx, q, c); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		log.Error("failed to insert coupons", zap.Error(err))
		return err
	}

	log.Info("coupons inserted")
	return nil
}

func insertLinks(ctx context.Context, q db.Querier, c *Coupon) error {
	if len(c.RestaurantIDs) > 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO coupon_restaurants (coupon_id, restaurant_id)
			SELECT $1, unnest($2::bigint[])
		`, c.ID, pq.Array(toInt64s(c.RestaurantIDs)))
		if err != nil {
			return fmt.Errorf("link coupon restaurants: %w", err)
		}
	}

	if len(c.CustomerIDs) > 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO coupon_customers (coupon_id, customer_id)
			SELECT $1, unnest($2::bigint[])
		`, c.ID, pq.Array(toInt64s(c.CustomerIDs)))
		if err != nil {
			return fmt.Errorf("link coupon customers: %w", err)
		}
	}

	return nil
}

func (r *repository) Update(ctx context.Context, c *Coupon) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Update"),
		zap.Uint("coupon_id", c.ID),
	)

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx, r.db)

		err := q.QueryRowContext(ctx, `
			UPDATE coupons
			SET name = $2, discount_type = $3, discount_value = $4, min_order_amount = $5,
			    start_date = $6, end_date = $7, is_active = $8
			WHERE id = $1 AND is_deleted = FALSE
			RETURNING created_at
		`,
			c.ID,
			c.Name,
			c.DiscountType,
			c.DiscountValue,
			c.MinOrderAmount,
			c.StartDate,
			c.EndDate,
			c.IsActive,
		).Scan(&c.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCouponNotFound
		}
		if err != nil {
			return fmt.Errorf("update coupon: %w", err)
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM coupon_restaurants WHERE coupon_id = $1`, c.ID); err != nil {
			return fmt.Errorf("unlink coupon restaurants: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM coupon_customers WHERE coupon_id = $1`, c.ID); err != nil {
			return fmt.Errorf("unlink coupon customers: %w", err)
		}

		return insertLinks(ctx, q, c)
	})
	if errors.Is(err, ErrCouponNotFound) {
		return err
	}
	if err != nil {
		log.Error("failed to update coupon", zap.Error(err))
		return err
	}

	return nil
}

func (r *repository) ListAvailable(
	ctx context.Context,
	restaurantID, customerID *uint,
	now time.Time,
) ([]*Coupon, error) {
	query := `SELECT ` + couponColumns + `
		FROM coupons c
		WHERE c.is_deleted = FALSE
		  AND c.is_active = TRUE
		  AND c.start_date <= $1
		  AND c.end_date >= $1
		  AND (
		    $2::bigint IS NULL
		    OR NOT EXISTS (SELECT 1 FROM coupon_restaurants cr WHERE cr.coupon_id = c.id)
		    OR EXISTS (SELECT 1 FROM coupon_restaurants cr WHERE cr.coupon_id = c.id AND cr.restaurant_id = $2)
		  )
		  AND (
		    $3::bigint IS NULL
		    OR NOT EXISTS (SELECT 1 FROM coupon_customers cc WHERE cc.coupon_id = c.id)
		    OR EXISTS (SELECT 1 FROM coupon_customers cc WHERE cc.coupon_id = c.id AND cc.customer_id = $3)
		  )
		ORDER BY c.id
	`

	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, query, now, nullableID(restaurantID), nullableID(customerID))
	if err != nil {
		logger.FromCtx(ctx).Error("failed to list coupons",
			zap.String("layer", "repository"),
			zap.String("method", "ListAvailable"),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}

	return coupons, nil
}

func (r *repository) SoftDelete(ctx context.Context, id uint) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE coupons
		SET is_deleted = TRUE
		WHERE id = $1 AND is_deleted = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if n == 0 {
		return ErrCouponNotFound
	}

	return nil
}

func nullableID(id *uint) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func toInt64s(ids []uint) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func toUints(ids pq.Int64Array) []uint {
	out := make([]uint, len(ids))
	for i, id := range ids {
		out[i] = uint(id)
	}
	return out
}
