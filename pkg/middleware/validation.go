package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrorResponse is the JSON body of every error answer.
type ErrorResponse struct {
	Error string      `json:"error"`
	Field string      `json:"field,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

const maxBodySize = 1 << 20

// ValidateRequest rejects POST/PUT bodies that are not JSON or are empty and
// caps the body size.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.Contains(contentType, "application/json") {
				writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid Content-Type, expected application/json"})
				return
			}
			if r.ContentLength == 0 {
				writeError(w, http.StatusBadRequest, ErrorResponse{Error: "request body cannot be empty"})
				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		next.ServeHTTP(w, r)
	})
}

// HandleValidationError answers 400 with the offending field.
func HandleValidationError(w http.ResponseWriter, err error, field, value string) {
	log.Debug().Err(err).Str("field", field).Msg("validation error")
	writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: field, Value: value})
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
