package http

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"subledger/internal/api"
	"subledger/internal/payment"
	"subledger/internal/subscription"
)

// FaucetHandler funds local accounts on the in-process token ledger. It is
// mounted only when DEV_FAUCET is enabled.
type FaucetHandler struct {
	Ledger *payment.TokenLedger
}

func NewFaucetHandler(ledger *payment.TokenLedger) *FaucetHandler {
	return &FaucetHandler{Ledger: ledger}
}

type faucetResponse struct {
	Account   string `json:"account"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// Faucet mints amount to the account and approves it for custody pulls.
func (h *FaucetHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	var req api.FaucetRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() || !amount.IsInteger() {
		api.WriteError(w, r, subscription.ErrInvalidAmount)
		return
	}

	if err := h.Ledger.Mint(req.Account, amount); err != nil {
		api.WriteError(w, r, subscription.ErrInvalidAmount)
		return
	}
	allowance := h.Ledger.Allowance(req.Account).Add(amount)
	if err := h.Ledger.Approve(req.Account, allowance); err != nil {
		api.WriteError(w, r, err)
		return
	}

	log.Info().Str("account", req.Account).Str("amount", amount.String()).Msg("faucet funded account")
	api.WriteJSON(w, http.StatusOK, faucetResponse{
		Account:   req.Account,
		Balance:   h.Ledger.BalanceOf(req.Account).String(),
		Allowance: h.Ledger.Allowance(req.Account).String(),
	})
}
