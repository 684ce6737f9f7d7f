package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restaurant-be/internal/config"
	"restaurant-be/internal/coupon"
	"restaurant-be/internal/couponrule"
	"restaurant-be/internal/db"
	"restaurant-be/internal/events"
	"restaurant-be/internal/httpapi"
	"restaurant-be/internal/logger"
	"restaurant-be/internal/metrics"
	"restaurant-be/internal/middleware"
	"restaurant-be/internal/order"
	"restaurant-be/internal/restaurant"
	"restaurant-be/internal/scheduler"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	initDBFunc      = db.NewDatabase
	newRedisFunc    = func(addr string) *redis.Client { return redis.NewClient(&redis.Options{Addr: addr}) }
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

// app is the wired process: HTTP handler plus the background workers that
// share its lifetime.
type app struct {
	handler   http.Handler
	scheduler *scheduler.Scheduler
	limiter   *middleware.RateLimiter
	closers   []func() error
}

func newApp(cfg *config.Config, database *sql.DB, rdb *redis.Client) (*app, error) {
	if cfg.SlotCapacity < 1 {
		return nil, fmt.Errorf("SLOT_CAPACITY must be at least 1, got %d", cfg.SlotCapacity)
	}
	loc := cfg.Location()

	var publisher events.Publisher = events.Nop{}
	var closers []func() error
	if cfg.KafkaBroker != "" {
		w := events.NewKafkaWriter(cfg.KafkaBroker, cfg.KafkaTopic)
		publisher = events.NewKafkaPublisher(w)
		closers = append(closers, w.Close)
	}

	admission := metrics.NewAdmission()
	couponRuns := &metrics.CouponRuns{}

	restaurantRepo := restaurant.NewRepository(database)
	couponRepo := coupon.NewRepository(database)
	orderRepo := order.NewRepository(database)

	couponSvc := coupon.NewService(couponRepo, time.Now)
	orderSvc := order.NewService(
		db.NewTransactor(database, &sql.TxOptions{Isolation: sql.LevelReadCommitted}),
		orderRepo,
		restaurantRepo,
		couponSvc,
		order.WithCapacity(cfg.SlotCapacity),
		order.WithLockTimeout(cfg.SlotLockTimeout),
		order.WithLocation(loc),
		order.WithPublisher(publisher),
		order.WithMetrics(admission),
	)

	rules := couponrule.Rules(cfg.CouponRules)
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	engine := couponrule.NewEngine(orderRepo, couponRepo, rules,
		couponrule.WithLocation(loc),
		couponrule.WithPublisher(publisher),
		couponrule.WithMetrics(couponRuns),
	)

	sched, err := scheduler.New(engine, scheduler.NewRedisLocker(rdb), cfg.CouponRuleCron,
		scheduler.WithLocation(loc),
		scheduler.WithMetrics(couponRuns),
	)
	if err != nil {
		return nil, err
	}

	h := httpapi.NewHandler(httpapi.Deps{
		Orders:     orderSvc,
		Coupons:    couponSvc,
		Engine:     sched,
		Admission:  admission,
		CouponRuns: couponRuns,
		Ping:       database.PingContext,
	})

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey)
	router := httpapi.NewRouter(h, httpapi.RouterConfig{
		Secret:      []byte(cfg.SecretKey),
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     limiter,
	})

	return &app{handler: router, scheduler: sched, limiter: limiter, closers: closers}, nil
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	database, err := initDBFunc(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info("database connection established")

	rdb := newRedisFunc(cfg.RedisAddr)
	defer rdb.Close()

	a, err := newApp(cfg, database, rdb)
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	defer func() {
		for _, c := range a.closers {
			if err := c(); err != nil {
				log.Warn("close failed", zap.Error(err))
			}
		}
	}()

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.limiter.Cleanup(bgCtx, time.Minute)
	a.scheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- startServerFunc(srv)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	a.scheduler.Stop(shutdownCtx)

	return serveErr
}
