package charts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
	"github.com/skewcast/skewcast/internal/modules/training"
)

// Handler handles HTTP requests for chart data
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new charts handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "charts").Logger(),
	}
}

// HandleLossCurve returns the loss history of one training run
// GET /api/charts/loss/{id}
func (h *Handler) HandleLossCurve(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	curve, err := h.service.LossCurve(runID)
	if err != nil {
		if errors.Is(err, training.ErrRunNotFound) {
			http.Error(w, "Training run not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to build loss curve")
		http.Error(w, "Failed to build loss curve", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(curve)
}

// HandleFanChart returns trailing price bands with realized closes
// GET /api/charts/fan/{symbol}?days=120
func (h *Handler) HandleFanChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 2000 {
			http.Error(w, "Invalid days. Must be 1-2000", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	chart, err := h.service.FanChart(symbol, days)
	if err != nil {
		h.writeModelError(w, err, symbol, "fan chart")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chart)
}

// HandlePITChart returns the calibration histogram of the active model
// GET /api/charts/pit/{symbol}
func (h *Handler) HandlePITChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	chart, err := h.service.PITChart(symbol)
	if err != nil {
		h.writeModelError(w, err, symbol, "PIT chart")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chart)
}

// writeModelError maps the shared failure modes of model-backed charts
func (h *Handler) writeModelError(w http.ResponseWriter, err error, symbol, chart string) {
	switch {
	case errors.Is(err, model.ErrNoActiveModel):
		http.Error(w, "No trained model for symbol", http.StatusConflict)
	case errors.Is(err, marketdata.ErrNoData):
		http.Error(w, "No price history for symbol", http.StatusNotFound)
	case errors.Is(err, features.ErrInsufficientData):
		http.Error(w, "Not enough history to fill the indicator windows", http.StatusConflict)
	default:
		h.log.Error().Err(err).Str("symbol", symbol).Msgf("Failed to build %s", chart)
		http.Error(w, "Failed to build chart", http.StatusInternalServerError)
	}
}
