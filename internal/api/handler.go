package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"card-compare-engine/internal/service"
)

const (
	msgBadBody        = "Geçersiz istek gövdesi."
	msgCompareFailed  = "Karşılaştırma yapılırken bir hata oluştu."
	msgSuggestFailed  = "Öneriler yüklenirken bir hata oluştu."
	msgBanksFailed    = "Bankalar yüklenirken bir hata oluştu."
	maxCompareBodyLen = 1 << 16
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Handler struct {
	Svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// Compare handles POST /api/compare.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var req service.CompareRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCompareBodyLen))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}

	resp, err := h.Svc.Compare(r.Context(), req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		log.Error().Err(err).Str("merchant", req.Merchant).Msg("compare")
		writeError(w, http.StatusInternalServerError, msgCompareFailed)
		return
	}
	writeOK(w, resp)
}

// Suggestions handles GET /api/compare.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.Ready() {
		writeError(w, http.StatusInternalServerError, msgSuggestFailed)
		return
	}
	writeOK(w, h.Svc.Suggestions(r.Context()))
}

// Banks handles GET /api/banks.
func (h *Handler) Banks(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.Ready() {
		writeError(w, http.StatusInternalServerError, msgBanksFailed)
		return
	}
	writeOK(w, h.Svc.Banks(r.Context()))
}

// Ready reports catalog version and load time; 503 until the first load.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	st := h.Svc.Status()
	if !st.Ready {
		writeJSON(w, http.StatusServiceUnavailable, st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
