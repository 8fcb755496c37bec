package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"subledger/internal/api"
	"subledger/internal/subscription"
	"subledger/internal/subscription/service"
	"subledger/pkg/middleware"
)

type Handler struct {
	SubscriptionService *service.Service
}

func NewSubscriptionHandler(ss *service.Service) *Handler {
	return &Handler{SubscriptionService: ss}
}

type configResponse struct {
	Fee           string `json:"fee"`
	PeriodSeconds int64  `json:"period_seconds"`
	PaymentToken  string `json:"payment_token"`
	Owner         string `json:"owner"`
	Now           int64  `json:"now"`
}

func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	s := h.SubscriptionService
	api.WriteJSON(w, http.StatusOK, configResponse{
		Fee:           s.Fee().String(),
		PeriodSeconds: int64(s.Period().Seconds()),
		PaymentToken:  s.PaymentToken(),
		Owner:         s.Owner(),
		Now:           s.Now().Unix(),
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.SubscriptionService.Status(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) IsSubscribed(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	ok, err := h.SubscriptionService.IsSubscribed(r.Context(), account)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"account": account, "subscribed": ok})
}

func (h *Handler) RemainingTime(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	left, err := h.SubscriptionService.RemainingTime(r.Context(), account)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"account": account, "remaining_seconds": int64(left.Seconds())})
}

func (h *Handler) GetAutoRenew(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	on, err := h.SubscriptionService.GetAutoRenew(r.Context(), account)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"account": account, "auto_renew": on})
}

// Subscribe charges the authenticated caller for one period.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFrom(r.Context())
	if !ok {
		api.WriteError(w, r, subscription.ErrUnauthorized)
		return
	}

	rec, err := h.SubscriptionService.Subscribe(r.Context(), caller)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) SetAutoRenew(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFrom(r.Context())
	if !ok {
		api.WriteError(w, r, subscription.ErrUnauthorized)
		return
	}

	var req api.AutoRenewRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	account := chi.URLParam(r, "account")
	if err := h.SubscriptionService.SetAutoRenew(r.Context(), caller, account, *req.Enabled); err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"account": account, "auto_renew": *req.Enabled})
}
