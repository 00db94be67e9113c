package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
)

type signalAdmin interface {
	List(ctx context.Context, input signal.ListInput) ([]domain.Signal, error)
	Stats(ctx context.Context) (domain.SignalStats, error)
}

// AdminHandler serves admin REST endpoints. Routes are expected to sit behind
// the admin token middleware.
type AdminHandler struct {
	signals signalAdmin
	log     *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(signals signalAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		signals: signals,
		log:     logger.With("handler", "admin"),
	}
}

type statsResponse struct {
	Total  int            `json:"total"`
	States map[string]int `json:"states"`
}

// Stats returns signal counts per state.
// GET /admin/signals/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.signals.Stats(r.Context())
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	resp := statsResponse{Total: stats.Total(), States: make(map[string]int, len(domain.SignalStates))}
	for _, st := range domain.SignalStates {
		resp.States[st.String()] = stats[st]
	}
	writeJSON(w, http.StatusOK, resp)
}

// List returns a redacted page of signals in one state.
// GET /admin/signals?state=PENDING&limit=50&offset=0
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	state, ok := domain.ParseSignalState(q.Get("state"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown state")
		return
	}
	limit, err := intParam(q.Get("limit"), signal.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	items, err := h.signals.List(r.Context(), signal.ListInput{State: state, Limit: limit, Offset: offset})
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	resp := make([]signalResponse, 0, len(items))
	for _, sig := range items {
		resp = append(resp, toSignalResponse(sig))
	}
	writeJSON(w, http.StatusOK, resp)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
