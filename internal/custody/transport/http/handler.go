package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"subledger/internal/api"
	"subledger/internal/custody/service"
	"subledger/internal/subscription"
	"subledger/pkg/middleware"
)

type Handler struct {
	CustodyService *service.Service
}

func NewCustodyHandler(cs *service.Service) *Handler {
	return &Handler{CustodyService: cs}
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.CustodyService.Balance(r.Context())
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, amountResponse{Amount: bal.String()})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFrom(r.Context())
	if !ok {
		api.WriteError(w, r, subscription.ErrUnauthorized)
		return
	}

	var req api.WithdrawRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		api.WriteError(w, r, subscription.ErrInvalidAmount)
		return
	}

	if err := h.CustodyService.Withdraw(r.Context(), caller, req.Destination, amount); err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, amountResponse{Amount: amount.String()})
}

func (h *Handler) WithdrawAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFrom(r.Context())
	if !ok {
		api.WriteError(w, r, subscription.ErrUnauthorized)
		return
	}

	var req api.WithdrawAllRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	moved, err := h.CustodyService.WithdrawAll(r.Context(), caller, req.Destination)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, amountResponse{Amount: moved.String()})
}
