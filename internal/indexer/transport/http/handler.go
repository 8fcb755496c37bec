package http

import (
	"net/http"
	"strconv"

	"subledger/internal/api"
	"subledger/internal/indexer"
	"subledger/internal/subscription"
	"subledger/pkg/middleware"
)

type Handler struct {
	Indexer *indexer.Indexer
}

func NewIndexerHandler(ix *indexer.Indexer) *Handler {
	return &Handler{Indexer: ix}
}

type candidatesResponse struct {
	Candidates []string `json:"candidates"`
	Next       string   `json:"next,omitempty"`
}

func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			api.WriteJSON(w, http.StatusBadRequest, middleware.ErrorResponse{Error: "limit must be a positive integer", Field: "limit", Value: v})
			return
		}
		limit = n
	}
	after, err := subscription.ParseCursor(r.URL.Query().Get("after"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	page, err := h.Indexer.Candidates(r.Context(), after, limit)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, candidatesResponse{Candidates: page.Accounts, Next: page.Next.String()})
}
