package http

import (
	"net/http"

	"subledger/internal/api"
	"subledger/internal/automation/service"
)

type Handler struct {
	AutomationService *service.Service
}

func NewAutomationHandler(as *service.Service) *Handler {
	return &Handler{AutomationService: as}
}

type checkResponse struct {
	Candidate   string `json:"candidate"`
	Eligible    bool   `json:"eligible"`
	PerformData string `json:"perform_data"`
}

// Check is the read-only probe: GET /api/automation/check?candidate=...
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	candidate := r.URL.Query().Get("candidate")
	ok, data, err := h.AutomationService.CheckEligible(r.Context(), candidate)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, checkResponse{
		Candidate:   candidate,
		Eligible:    ok,
		PerformData: service.FormatHex(data),
	})
}

func (h *Handler) Perform(w http.ResponseWriter, r *http.Request) {
	var req api.PerformRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	data, err := service.ParseHex(req.PerformData)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	rec, err := h.AutomationService.PerformRenewal(r.Context(), data)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rec)
}
