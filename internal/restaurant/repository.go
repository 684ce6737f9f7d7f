package restaurant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"restaurant-be/internal/db"
	"restaurant-be/internal/logger"

	"go.uber.org/zap"
)

// Repository is the read-only restaurant directory.
type Repository interface {
	GetByID(ctx context.Context, id uint) (*Restaurant, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uint) (*Restaurant, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetByID"),
		zap.Uint("restaurant_id", id),
	)

	query := `
		SELECT id, name, open_time, close_time
		FROM restaurants
		WHERE id = $1 AND is_deleted = FALSE
	`

	var (
		res           Restaurant
		opens, closes sql.Null[TimeOfDay]
	)
	err := db.Conn(ctx, r.db).QueryRowContext(ctx, query, id).
		Scan(&res.ID, &res.Name, &opens, &closes)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("restaurant not found")
		return nil, ErrRestaurantNotFound
	}
	if err != nil {
		log.Error("failed to query restaurant", zap.Error(err))
		return nil, fmt.Errorf("get restaurant: %w", err)
	}

	if opens.Valid {
		res.OpenTime = &opens.V
	}
	if closes.Valid {
		res.CloseTime = &closes.V
	}

	return &res, nil
}
