// Package proxyserver is the HTTP front end: it binds the chi router to
// the coordinator, the upstream passthrough endpoints, and a health/stats
// endpoint, following this stack's router/handler split.
package proxyserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dingausmwald/proxycache/internal/coordinator"
	"github.com/dingausmwald/proxycache/internal/janitor"
	"github.com/dingausmwald/proxycache/internal/slotmanager"
	"github.com/dingausmwald/proxycache/internal/stats"
)

// Handler holds everything the routes need. Built by NewHandler and mounted
// by NewServer.
type Handler struct {
	coord    *coordinator.Coordinator
	upstream *upstreamAdapter
	slots    *slotmanager.Manager
	janitor  *janitor.Janitor
	stats    *stats.Counters
	logger   zerolog.Logger
}

// upstreamAdapter narrows internal/upstream.Client to the two calls this
// package issues directly, so Handler doesn't need the full client surface.
type upstreamAdapter struct {
	listSlots         func(ctx context.Context, model string) ([]SlotState, error)
	passthroughModels func(ctx context.Context, w http.ResponseWriter) error
}

// SlotState mirrors internal/upstream.SlotState without importing it
// directly, keeping this package's only upstream dependency the function
// values passed into NewHandler.
type SlotState struct {
	ID       int    `json:"id"`
	SaveFile string `json:"filename,omitempty"`
}

// NewHandler wires a Handler. listSlots/passthroughModels are the two
// upstream calls this layer forwards unchanged; everything else goes
// through coord.
func NewHandler(
	coord *coordinator.Coordinator,
	slots *slotmanager.Manager,
	j *janitor.Janitor,
	s *stats.Counters,
	listSlots func(ctx context.Context, model string) ([]SlotState, error),
	passthroughModels func(ctx context.Context, w http.ResponseWriter) error,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		coord:    coord,
		upstream: &upstreamAdapter{listSlots: listSlots, passthroughModels: passthroughModels},
		slots:    slots,
		janitor:  j,
		stats:    s,
		logger:   logger,
	}
}

// handleCompletion serves both /v1/chat/completions and /v1/completions:
// read the body, hand it to the coordinator, let it stream the response.
func (h *Handler) handleCompletion(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	err = h.coord.Handle(r.Context(), r.URL.Path, body, w)
	if err == nil {
		return
	}

	var coordErr *coordinator.Error
	if errors.As(err, &coordErr) {
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("proxyserver: request failed")
		http.Error(w, coordErr.Error(), statusFor(coordErr.Kind))
		return
	}
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("proxyserver: unexpected coordinator error")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func statusFor(kind coordinator.Kind) int {
	switch kind {
	case coordinator.KindBadRequest:
		return http.StatusBadRequest
	case coordinator.KindBadGateway:
		return http.StatusBadGateway
	case coordinator.KindGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

// handleModels passes the backend's model list through unchanged.
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if err := h.upstream.passthroughModels(r.Context(), w); err != nil {
		h.logger.Warn().Err(err).Msg("proxyserver: models passthrough failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
}

// handleSlots returns the backend's model-scoped slot table, per section 6's
// passthrough endpoint. The backend response is decoded into SlotState and
// re-encoded, so only each slot's id and filename are passed on.
func (h *Handler) handleSlots(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	slots, err := h.upstream.listSlots(r.Context(), model)
	if err != nil {
		h.logger.Warn().Err(err).Str("model", model).Msg("proxyserver: list slots failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(slots); err != nil {
		h.logger.Warn().Err(err).Msg("proxyserver: encode slots response failed")
	}
}

// healthResponse is the body of /healthz.
type healthResponse struct {
	Status string         `json:"status"`
	Slots  []slotSummary  `json:"slots"`
	Stats  stats.Snapshot `json:"stats"`
}

type slotSummary struct {
	ID       int    `json:"id"`
	State    string `json:"state"`
	Resident string `json:"resident_save_id,omitempty"`
}

// handleHealth reports process liveness plus slot-table and stats
// summaries, an ambient addition grounded in this stack's existing
// health-endpoint convention.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	snaps := h.slots.Snapshot()
	summaries := make([]slotSummary, 0, len(snaps))
	for _, s := range snaps {
		summaries = append(summaries, slotSummary{ID: s.ID, State: s.State.String(), Resident: s.ResidentID})
	}

	resp := healthResponse{Status: "ok", Slots: summaries}
	if h.stats != nil {
		resp.Stats = h.stats.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn().Err(err).Msg("proxyserver: encode health response failed")
	}
}
