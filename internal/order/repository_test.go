package order

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"restaurant-be/internal/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, Repository) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock, NewRepository(conn)
}

func TestRepository_LockWindow(t *testing.T) {
	start := time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		conn, mock, repo := setupRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
			WithArgs("3000ms").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, \$2\)`).
			WithArgs(int32(7), windowKey(start)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		tx, err := conn.Begin()
		require.NoError(t, err)
		ctx := db.WithTx(context.Background(), tx)

		err = repo.LockWindow(ctx, 7, start, 3*time.Second)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoTimeout", func(t *testing.T) {
		conn, mock, repo := setupRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		tx, err := conn.Begin()
		require.NoError(t, err)

		err = repo.LockWindow(db.WithTx(context.Background(), tx), 7, start, 0)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("LockTimeout", func(t *testing.T) {
		conn, mock, repo := setupRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT set_config`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})

		tx, err := conn.Begin()
		require.NoError(t, err)

		err = repo.LockWindow(db.WithTx(context.Background(), tx), 7, start, time.Second)
		assert.ErrorIs(t, err, ErrSlotContention)
	})

	t.Run("DeadlineExceeded", func(t *testing.T) {
		conn, mock, repo := setupRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT set_config`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WillReturnError(context.DeadlineExceeded)

		tx, err := conn.Begin()
		require.NoError(t, err)

		err = repo.LockWindow(db.WithTx(context.Background(), tx), 7, start, time.Second)
		assert.ErrorIs(t, err, ErrSlotContention)
	})

	t.Run("OtherError", func(t *testing.T) {
		conn, mock, repo := setupRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT set_config`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WillReturnError(errors.New("connection reset"))

		tx, err := conn.Begin()
		require.NoError(t, err)

		err = repo.LockWindow(db.WithTx(context.Background(), tx), 7, start, time.Second)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrSlotContention)
	})

	t.Run("NoTransaction", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		err := repo.LockWindow(context.Background(), 7, start, time.Second)
		assert.ErrorIs(t, err, ErrNoTransaction)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_CountConfirmedInWindow(t *testing.T) {
	start := time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	t.Run("Success", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders WHERE restaurant_id = \$1 AND is_confirmed = TRUE`).
			WithArgs(uint(7), start, end).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

		n, err := repo.CountConfirmedInWindow(context.Background(), 7, start, end)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
	})

	t.Run("SerializationFailure", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectQuery(`SELECT COUNT`).
			WillReturnError(&pq.Error{Code: "40001"})

		_, err := repo.CountConfirmedInWindow(context.Background(), 7, start, end)
		assert.ErrorIs(t, err, ErrSlotContention)
	})

	t.Run("DBError", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectQuery(`SELECT COUNT`).
			WillReturnError(errors.New("boom"))

		_, err := repo.CountConfirmedInWindow(context.Background(), 7, start, end)
		assert.ErrorContains(t, err, "count window")
		assert.NotErrorIs(t, err, ErrSlotContention)
	})
}

func TestRepository_AppendOrder(t *testing.T) {
	scheduled := time.Date(2026, 10, 20, 14, 30, 0, 0, time.UTC)
	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	newOrder := func() *Order {
		return &Order{
			RestaurantID: 1,
			CustomerID:   2,
			ScheduledAt:  scheduled,
			IsConfirmed:  true,
			Items: []OrderItem{
				{MenuItemID: 10, Quantity: 2},
				{MenuItemID: 11, Quantity: 1},
			},
		}
	}

	t.Run("Success", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WithArgs(uint(1), uint(2), scheduled, true, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(55, created))
		mock.ExpectQuery("INSERT INTO order_items").
			WithArgs(uint(55), uint(10), 2).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(501))
		mock.ExpectQuery("INSERT INTO order_items").
			WithArgs(uint(55), uint(11), 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(502))
		mock.ExpectCommit()

		o := newOrder()
		err := repo.AppendOrder(context.Background(), o)
		require.NoError(t, err)
		assert.Equal(t, uint(55), o.ID)
		assert.Equal(t, created, o.CreatedAt)
		assert.Equal(t, uint(55), o.Items[1].OrderID)
		assert.Equal(t, uint(502), o.Items[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("JoinsAmbientTransaction", func(t *testing.T) {
		conn, mock, repo := setupRepo(t)
		couponID := uint(3)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WithArgs(uint(1), uint(2), scheduled, true, int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(56, created))
		mock.ExpectQuery("INSERT INTO order_items").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(503))
		mock.ExpectQuery("INSERT INTO order_items").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(504))
		mock.ExpectCommit()

		err := db.NewTransactor(conn, nil).WithinTx(context.Background(), func(ctx context.Context) error {
			o := newOrder()
			o.CouponID = &couponID
			return repo.AppendOrder(ctx, o)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ItemFailureRollsBack", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(55, created))
		mock.ExpectQuery("INSERT INTO order_items").
			WillReturnError(errors.New("fk violation"))
		mock.ExpectRollback()

		err := repo.AppendOrder(context.Background(), newOrder())
		assert.ErrorContains(t, err, "insert order item")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConflictIsContention", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()

		err := repo.AppendOrder(context.Background(), newOrder())
		assert.ErrorIs(t, err, ErrSlotContention)
	})
}

func TestRepository_OrdersInPeriod(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	at := start.AddDate(0, 0, 3)
	cols := []string{"id", "restaurant_id", "customer_id", "scheduled_at", "menu_item_id", "quantity", "price"}

	t.Run("GroupsItemsByOrder", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectQuery("FROM orders o JOIN order_items oi ON oi.order_id = o.id JOIN menu_items mi").
			WithArgs(start, end, nil).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(1, 4, 9, at, 10, 2, "150.00").
				AddRow(1, 4, 9, at, 11, 1, "50.00").
				AddRow(2, 4, 8, at, 10, 1, "150.00"))

		orders, err := repo.OrdersInPeriod(context.Background(), nil, start, end)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Len(t, orders[0].Items, 2)
		assert.True(t, orders[0].Total().Equal(decimal.NewFromInt(350)))
		assert.Equal(t, uint(8), orders[1].CustomerID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RestaurantFilter", func(t *testing.T) {
		_, mock, repo := setupRepo(t)
		rid := uint(4)

		mock.ExpectQuery("FROM orders o").
			WithArgs(start, end, int64(4)).
			WillReturnRows(sqlmock.NewRows(cols))

		orders, err := repo.OrdersInPeriod(context.Background(), &rid, start, end)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("QueryError", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectQuery("FROM orders o").WillReturnError(errors.New("boom"))

		_, err := repo.OrdersInPeriod(context.Background(), nil, start, end)
		assert.ErrorContains(t, err, "orders in period")
	})
}

func TestRepository_ListForCustomerAtRestaurant(t *testing.T) {
	at := time.Date(2026, 10, 20, 14, 30, 0, 0, time.UTC)

	t.Run("WithItems", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectQuery("FROM orders WHERE restaurant_id = \\$1 AND customer_id = \\$2").
			WithArgs(uint(4), uint(9)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "customer_id", "scheduled_at", "is_confirmed", "coupon_id", "created_at"}).
				AddRow(2, 4, 9, at, true, 3, at).
				AddRow(1, 4, 9, at, true, nil, at))
		mock.ExpectQuery("FROM order_items WHERE order_id = ANY\\(\\$1\\)").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "menu_item_id", "quantity"}).
				AddRow(10, 1, 100, 1).
				AddRow(11, 2, 101, 2).
				AddRow(12, 2, 102, 1))

		orders, err := repo.ListForCustomerAtRestaurant(context.Background(), 4, 9)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		require.NotNil(t, orders[0].CouponID)
		assert.Equal(t, uint(3), *orders[0].CouponID)
		assert.Len(t, orders[0].Items, 2)
		assert.Nil(t, orders[1].CouponID)
		assert.Len(t, orders[1].Items, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty", func(t *testing.T) {
		_, mock, repo := setupRepo(t)

		mock.ExpectQuery("FROM orders").
			WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "customer_id", "scheduled_at", "is_confirmed", "coupon_id", "created_at"}))

		orders, err := repo.ListForCustomerAtRestaurant(context.Background(), 4, 9)
		require.NoError(t, err)
		assert.Empty(t, orders)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
