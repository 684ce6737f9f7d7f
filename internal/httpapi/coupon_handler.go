package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"restaurant-be/internal/coupon"
	"restaurant-be/internal/logger"
	"restaurant-be/internal/utils"

	"go.uber.org/zap"
)

func couponError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, coupon.ErrCouponNotFound):
		utils.WriteJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, coupon.ErrInvalidDiscountType),
		errors.Is(err, coupon.ErrInvalidDiscountValue),
		errors.Is(err, coupon.ErrInvalidDateRange),
		errors.Is(err, coupon.ErrNameRequired):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.FromCtx(r.Context()).Error("coupon request failed", zap.Error(err))
		utils.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.coupons.CreateCoupon(r.Context(), req.input())
	if err != nil {
		couponError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, toCouponDTO(c))
}

// UpdateCoupon replaces a coupon's fields and eligibility lists.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(r, "id")
	if !ok {
		utils.WriteJSONError(w, "invalid coupon id", http.StatusBadRequest)
		return
	}

	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.coupons.UpdateCoupon(r.Context(), id, req.input())
	if err != nil {
		couponError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, toCouponDTO(c))
}

func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(r, "id")
	if !ok {
		utils.WriteJSONError(w, "invalid coupon id", http.StatusBadRequest)
		return
	}

	c, err := h.coupons.GetCoupon(r.Context(), id)
	if err != nil {
		couponError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, toCouponDTO(c))
}

func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(r, "id")
	if !ok {
		utils.WriteJSONError(w, "invalid coupon id", http.StatusBadRequest)
		return
	}

	if err := h.coupons.DeleteCoupon(r.Context(), id); err != nil {
		couponError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAvailableCoupons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	restaurantID, err := utils.ParseOptionalUint(q.Get("restaurantId"))
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	customerID, err := utils.ParseOptionalUint(q.Get("customerId"))
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	coupons, err := h.coupons.ListAvailable(r.Context(), restaurantID, customerID)
	if err != nil {
		couponError(w, r, err)
		return
	}

	out := make([]couponDTO, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, toCouponDTO(c))
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) CouponEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(r, "id")
	if !ok {
		utils.WriteJSONError(w, "invalid coupon id", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	restaurantID, err := utils.ToUint(q.Get("restaurantId"))
	if err != nil {
		utils.WriteJSONError(w, "restaurantId is required", http.StatusBadRequest)
		return
	}
	customerID, err := utils.ToUint(q.Get("customerId"))
	if err != nil {
		utils.WriteJSONError(w, "customerId is required", http.StatusBadRequest)
		return
	}

	e, err := h.coupons.CheckEligibility(r.Context(), id, restaurantID, customerID)
	if err != nil {
		couponError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"eligibility": e,
		"valid":       e.Valid(),
		"applicable":  e.Applicable(),
	})
}
