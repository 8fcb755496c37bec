// Package api holds the pieces shared by every HTTP handler: request DTOs and
// the mapping from ledger errors to responses.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"subledger/internal/subscription"
	"subledger/pkg/middleware"
)

// StatusFor maps a ledger error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, subscription.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, subscription.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, subscription.ErrInsufficientCustody),
		errors.Is(err, subscription.ErrNotEligible):
		return http.StatusConflict
	case errors.Is(err, subscription.ErrInvalidConfig),
		errors.Is(err, subscription.ErrInvalidAmount),
		errors.Is(err, subscription.ErrInvalidAccount),
		errors.Is(err, subscription.ErrInvalidPerformData),
		errors.Is(err, subscription.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, subscription.ErrExpiryOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("writing response")
	}
}

// WriteError answers with the mapped status. Internal errors are logged and
// hidden from the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	WriteJSON(w, status, middleware.ErrorResponse{Error: msg})
}

// DecodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports whether the caller may go on.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteJSON(w, http.StatusBadRequest, middleware.ErrorResponse{Error: "invalid JSON body"})
		return false
	}
	if err := Validate.Struct(dst); err != nil {
		var verrs validationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			middleware.HandleValidationError(w, err, verrs[0].Field(), verrs[0].Tag())
			return false
		}
		middleware.HandleValidationError(w, err, "", "")
		return false
	}
	return true
}
