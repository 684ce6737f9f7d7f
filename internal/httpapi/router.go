package httpapi

import (
	"net/http"

	"restaurant-be/internal/logger"
	"restaurant-be/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type RouterConfig struct {
	Secret      []byte
	CORSOrigins []string
	Limiter     *middleware.RateLimiter
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.AuthMiddleware(cfg.Secret))
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Middleware)
	}

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/restaurants/{restaurantId:[0-9]+}/customers/{customerId:[0-9]+}/orders", h.ScheduleOrder).
		Methods(http.MethodPost)
	api.HandleFunc("/restaurants/{restaurantId:[0-9]+}/customers/{customerId:[0-9]+}/orders", h.ListOrders).
		Methods(http.MethodGet)

	api.HandleFunc("/coupons/available", h.ListAvailableCoupons).Methods(http.MethodGet)
	api.HandleFunc("/coupons/{id:[0-9]+}", h.GetCoupon).Methods(http.MethodGet)
	api.HandleFunc("/coupons/{id:[0-9]+}/eligibility", h.CouponEligibility).Methods(http.MethodGet)

	admin := api.NewRoute().Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/coupons", h.CreateCoupon).Methods(http.MethodPost)
	admin.HandleFunc("/coupons/{id:[0-9]+}", h.UpdateCoupon).Methods(http.MethodPut)
	admin.HandleFunc("/coupons/{id:[0-9]+}", h.DeleteCoupon).Methods(http.MethodDelete)
	admin.HandleFunc("/coupons/rules/run", h.RunCouponRules).Methods(http.MethodPost)
	admin.HandleFunc("/admin/metrics", h.Metrics).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", "X-Device-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}
