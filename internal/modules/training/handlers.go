package training

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles training HTTP requests
type Handler struct {
	service *Service
	repo    *Repository
	log     zerolog.Logger
}

// NewHandler creates a new training handler
func NewHandler(service *Service, repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		log:     log.With().Str("handler", "training").Logger(),
	}
}

// HandleStartTraining handles POST /train - launch a background run
func (h *Handler) HandleStartTraining(w http.ResponseWriter, r *http.Request) {
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

	runID, err := h.service.StartTraining(symbol)
	if errors.Is(err, ErrTrainingBusy) {
		http.Error(w, "Training already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to start training")
		http.Error(w, "Failed to start training", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"run_id": runID,
		"symbol": symbol,
		"status": StatusRunning,
	})
}

// HandleListRuns handles GET /runs - recent runs, optionally per symbol
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 || l > 1000 {
			http.Error(w, "Invalid limit. Must be 1-1000", http.StatusBadRequest)
			return
		}
		limit = l
	}

	runs, err := h.repo.ListRuns(symbol, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list training runs")
		http.Error(w, "Failed to retrieve training runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// HandleGetRun handles GET /runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.repo.GetRun(id)
	if errors.Is(err, ErrRunNotFound) {
		http.Error(w, "Training run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get training run")
		http.Error(w, "Failed to retrieve training run", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// HandleGetEpochs handles GET /runs/{id}/epochs - per-epoch loss history
func (h *Handler) HandleGetEpochs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.repo.GetRun(id); errors.Is(err, ErrRunNotFound) {
		http.Error(w, "Training run not found", http.StatusNotFound)
		return
	} else if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get training run")
		http.Error(w, "Failed to retrieve training run", http.StatusInternalServerError)
		return
	}

	history, err := h.repo.GetEpochStats(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get epoch losses")
		http.Error(w, "Failed to retrieve epoch losses", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []EpochStats{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}
