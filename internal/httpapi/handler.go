package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"restaurant-be/internal/coupon"
	"restaurant-be/internal/couponrule"
	"restaurant-be/internal/logger"
	"restaurant-be/internal/metrics"
	"restaurant-be/internal/order"
	"restaurant-be/internal/scheduler"
	"restaurant-be/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// EngineRunner triggers an out-of-schedule Coupon Rule Engine run.
type EngineRunner interface {
	RunNow(ctx context.Context, restaurantID *uint) (*couponrule.RunResult, error)
}

type Handler struct {
	orders     order.Service
	coupons    coupon.Service
	engine     EngineRunner
	admission  *metrics.Admission
	couponRuns *metrics.CouponRuns
	ping       func(ctx context.Context) error
}

type Deps struct {
	Orders     order.Service
	Coupons    coupon.Service
	Engine     EngineRunner
	Admission  *metrics.Admission
	CouponRuns *metrics.CouponRuns
	Ping       func(ctx context.Context) error
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		orders:     d.Orders,
		coupons:    d.Coupons,
		engine:     d.Engine,
		admission:  d.Admission,
		couponRuns: d.CouponRuns,
		ping:       d.Ping,
	}
	if h.admission == nil {
		h.admission = metrics.NewAdmission()
	}
	if h.couponRuns == nil {
		h.couponRuns = &metrics.CouponRuns{}
	}
	return h
}

func pathUint(r *http.Request, name string) (uint, bool) {
	id, err := utils.ToUint(mux.Vars(r)[name])
	return id, err == nil && id > 0
}

func (h *Handler) ScheduleOrder(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("layer", "handler"), zap.String("method", "ScheduleOrder"))

	restaurantID, ok := pathUint(r, "restaurantId")
	if !ok {
		utils.WriteJSONError(w, "invalid restaurant id", http.StatusBadRequest)
		return
	}
	customerID, ok := pathUint(r, "customerId")
	if !ok {
		utils.WriteJSONError(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	var req scheduleOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ScheduledAt.IsZero() {
		utils.WriteJSONError(w, "scheduledAt is required", http.StatusBadRequest)
		return
	}

	items := make([]order.ItemInput, 0, len(req.OrderItems))
	for _, it := range req.OrderItems {
		items = append(items, order.ItemInput{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}

	res, err := h.orders.ScheduleOrder(r.Context(), order.ScheduleOrderInput{
		RestaurantID: restaurantID,
		CustomerID:   customerID,
		ScheduledAt:  req.ScheduledAt,
		Items:        items,
		CouponID:     req.CouponID,
	})
	if errors.Is(err, order.ErrSlotContention) {
		w.Header().Set("Retry-After", "1")
		utils.WriteJSONError(w, "slot is busy, please retry", http.StatusConflict)
		return
	}
	if err != nil {
		log.Error("schedule order failed", zap.Error(err))
		utils.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	body := scheduleOrderResponse{
		Success: res.Success,
		Message: res.Message,
		Reason:  string(res.Reason),
		Order:   toOrderDTO(res.Order),
	}
	switch {
	case res.Success:
		utils.WriteJSON(w, http.StatusCreated, body)
	case res.Reason == order.ReasonRestaurantNotFound:
		utils.WriteJSON(w, http.StatusNotFound, body)
	default:
		utils.WriteJSON(w, http.StatusUnprocessableEntity, body)
	}
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathUint(r, "restaurantId")
	if !ok {
		utils.WriteJSONError(w, "invalid restaurant id", http.StatusBadRequest)
		return
	}
	customerID, ok := pathUint(r, "customerId")
	if !ok {
		utils.WriteJSONError(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	orders, err := h.orders.GetOrdersForCustomerAtRestaurant(r.Context(), restaurantID, customerID)
	if err != nil {
		logger.FromCtx(r.Context()).Error("list orders failed", zap.Error(err))
		utils.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]*orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			logger.FromCtx(r.Context()).Error("health check failed", zap.Error(err))
			utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"admission":  h.admission.Snapshot(),
		"couponRuns": h.couponRuns.Snapshot(),
	})
}

func (h *Handler) RunCouponRules(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := utils.ParseOptionalUint(r.URL.Query().Get("restaurantId"))
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.engine.RunNow(r.Context(), restaurantID)
	if errors.Is(err, scheduler.ErrBusy) {
		utils.WriteJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		logger.FromCtx(r.Context()).Error("coupon rule run failed", zap.Error(err))
		utils.WriteJSONError(w, "coupon rule run failed", http.StatusInternalServerError)
		return
	}

	coupons := make([]couponDTO, 0, len(res.Coupons))
	for _, c := range res.Coupons {
		coupons = append(coupons, toCouponDTO(c))
	}
	utils.WriteJSON(w, http.StatusOK, runResultDTO{
		RunID:        res.RunID,
		RestaurantID: res.RestaurantID,
		PeriodStart:  res.PeriodStart,
		PeriodEnd:    res.PeriodEnd,
		Customers:    res.Customers,
		Coupons:      coupons,
	})
}
