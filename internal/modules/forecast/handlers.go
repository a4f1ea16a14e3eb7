package forecast

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
)

// Handler handles forecast HTTP requests
type Handler struct {
	service *Service
	repo    *Repository
	log     zerolog.Logger
}

// NewHandler creates a new forecast handler
func NewHandler(service *Service, repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		log:     log.With().Str("handler", "forecast").Logger(),
	}
}

// forecastResponse is a forecast with its fan quantiles evaluated
type forecastResponse struct {
	*Forecast
	Quantiles []QuantilePoint `json:"quantiles"`
}

func newForecastResponse(f *Forecast) forecastResponse {
	return forecastResponse{
		Forecast:  f,
		Quantiles: f.Quantiles(domain.FanProbabilities),
	}
}

// HandleGenerate handles POST /generate - forecast off the latest close
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	f, err := h.service.Generate(symbol)
	switch {
	case errors.Is(err, model.ErrNoActiveModel):
		http.Error(w, "No trained model for symbol", http.StatusConflict)
		return
	case errors.Is(err, marketdata.ErrNoData):
		http.Error(w, "No price history for symbol", http.StatusNotFound)
		return
	case errors.Is(err, features.ErrInsufficientData):
		http.Error(w, "Not enough history to fill the indicator windows", http.StatusConflict)
		return
	case err != nil:
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to generate forecast")
		http.Error(w, "Failed to generate forecast", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newForecastResponse(f))
}

// HandleLatest handles GET /{symbol}/latest
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	f, err := h.repo.Latest(symbol)
	if errors.Is(err, ErrNoForecast) {
		http.Error(w, "No forecast for symbol", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get latest forecast")
		http.Error(w, "Failed to retrieve forecast", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newForecastResponse(f))
}

// HandleRange handles GET /{symbol} - forecasts between base dates
func (h *Handler) HandleRange(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := domain.ParseDay(d); err != nil {
			http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if start != "" && end != "" && start > end {
		http.Error(w, "start must be <= end", http.StatusBadRequest)
		return
	}

	forecasts, err := h.repo.Range(symbol, start, end)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to query forecasts")
		http.Error(w, "Failed to retrieve forecasts", http.StatusInternalServerError)
		return
	}
	if forecasts == nil {
		forecasts = []Forecast{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(forecasts)
}

// HandleHorizon handles GET /{symbol}/horizon?days=&paths=&seed= - a
// simulated multi-day price fan off the active model
func (h *Handler) HandleHorizon(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	days := 10
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 60 {
			http.Error(w, "days must be between 1 and 60", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	paths := 0
	if raw := r.URL.Query().Get("paths"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 5000 {
			http.Error(w, "paths must be between 1 and 5000", http.StatusBadRequest)
			return
		}
		paths = parsed
	}

	var seed int64
	if raw := r.URL.Query().Get("seed"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "seed must be an integer", http.StatusBadRequest)
			return
		}
		seed = parsed
	}

	fan, err := h.service.Horizon(symbol, days, paths, seed)
	switch {
	case errors.Is(err, model.ErrNoActiveModel):
		http.Error(w, "No trained model for symbol", http.StatusConflict)
		return
	case errors.Is(err, marketdata.ErrNoData):
		http.Error(w, "No price history for symbol", http.StatusNotFound)
		return
	case errors.Is(err, features.ErrInsufficientData):
		http.Error(w, "Not enough history to fill the indicator windows", http.StatusConflict)
		return
	case err != nil:
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to simulate horizon")
		http.Error(w, "Failed to simulate horizon", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fan)
}
