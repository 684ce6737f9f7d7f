package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"restaurant-be/internal/config"
	"restaurant-be/internal/coupon"
	"restaurant-be/internal/couponrule"
	"restaurant-be/internal/db"
	"restaurant-be/internal/events"
	"restaurant-be/internal/logger"
	"restaurant-be/internal/order"
	"restaurant-be/internal/utils"

	"go.uber.org/zap"
)

// runner is satisfied by *couponrule.Engine.
type runner interface {
	RunMonthly(ctx context.Context, restaurantID *uint) (*couponrule.RunResult, error)
}

func main() {
	restaurant := flag.String("restaurant", "", "restrict the run to one restaurant id")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	conn, err := db.NewDatabase(cfg)
	if err != nil {
		logger.L().Fatal("failed to connect db", zap.Error(err))
	}
	defer conn.Close()

	engine, closeFn, err := newEngine(cfg, conn)
	if err != nil {
		logger.L().Fatal("failed to build engine", zap.Error(err))
	}
	defer closeFn()

	if err := run(ctx, engine, *restaurant, os.Stdout); err != nil {
		logger.L().Fatal("coupon rule run failed", zap.Error(err))
	}
}

func newEngine(cfg *config.Config, conn *sql.DB) (*couponrule.Engine, func(), error) {
	rules := couponrule.Rules(cfg.CouponRules)
	if err := rules.Validate(); err != nil {
		return nil, nil, err
	}

	var publisher events.Publisher = events.Nop{}
	closeFn := func() {}
	if cfg.KafkaBroker != "" {
		w := events.NewKafkaWriter(cfg.KafkaBroker, cfg.KafkaTopic)
		publisher = events.NewKafkaPublisher(w)
		closeFn = func() { _ = w.Close() }
	}

	engine := couponrule.NewEngine(order.NewRepository(conn), coupon.NewRepository(conn), rules,
		couponrule.WithLocation(cfg.Location()),
		couponrule.WithPublisher(publisher),
	)
	return engine, closeFn, nil
}

func run(ctx context.Context, r runner, restaurantFlag string, out io.Writer) error {
	restaurantID, err := utils.ParseOptionalUint(restaurantFlag)
	if err != nil {
		return err
	}

	res, err := r.RunMonthly(ctx, restaurantID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "run %s: %s - %s, %d customers, %d coupons\n",
		res.RunID,
		res.PeriodStart.Format("2006-01-02"),
		res.PeriodEnd.Format("2006-01-02"),
		res.Customers,
		len(res.Coupons),
	)
	for _, c := range res.Coupons {
		fmt.Fprintf(out, "  %-8s %s\n", c.DiscountType, c.Name)
	}
	return nil
}
