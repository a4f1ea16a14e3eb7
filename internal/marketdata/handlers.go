package marketdata

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/events"
)

// Handler handles price history HTTP requests
type Handler struct {
	history *HistoryDB
	events  *events.Manager
	log     zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(history *HistoryDB, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		history: history,
		events:  eventManager,
		log:     log.With().Str("handler", "marketdata").Logger(),
	}
}

// importResponse reports what an import actually stored
type importResponse struct {
	Symbol  string   `json:"symbol"`
	Parsed  int      `json:"parsed"`
	Skipped int      `json:"skipped"`
	Written int      `json:"written"`
	Summary *Summary `json:"summary"`
}

// HandleImport handles POST /import - load a server-local CSV into a
// symbol's history database
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol      string `json:"symbol"`
		Path        string `json:"path"`
		DateColumn  string `json:"date_column"`
		CloseColumn string `json:"close_column"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	symbol, ok := normalizeSymbol(req.Symbol)
	if !ok {
		http.Error(w, "symbol is required (letters, digits, . _ -)", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	path := filepath.Clean(req.Path)
	closes, skipped, err := LoadCSV(path, req.DateColumn, req.CloseColumn)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "CSV file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Warn().Err(err).Str("path", path).Msg("CSV import rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	written, err := h.history.SaveDailyCloses(symbol, closes)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to save imported closes")
		http.Error(w, "Failed to save price history", http.StatusInternalServerError)
		return
	}

	h.events.Emit(events.DataImported, "marketdata", map[string]interface{}{
		"symbol": symbol,
		"path":   path,
		"rows":   written,
	})

	summary, err := h.history.Summary(symbol)
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Import summary unavailable")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(importResponse{
		Symbol:  symbol,
		Parsed:  len(closes),
		Skipped: skipped,
		Written: written,
		Summary: summary,
	})
}

// HandleSynthetic handles POST /synthetic - seed a symbol with a
// generated random walk, mainly for demos and smoke tests
func (h *Handler) HandleSynthetic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
		Days   int    `json:"days"`
		Seed   int64  `json:"seed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	symbol, ok := normalizeSymbol(req.Symbol)
	if !ok {
		http.Error(w, "symbol is required (letters, digits, . _ -)", http.StatusBadRequest)
		return
	}
	if req.Days <= 0 {
		req.Days = 750
	}

	closes := GenerateSyntheticCloses(req.Days, req.Seed)
	written, err := h.history.SaveDailyCloses(symbol, closes)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to save synthetic closes")
		http.Error(w, "Failed to save price history", http.StatusInternalServerError)
		return
	}

	h.events.Emit(events.SyntheticGenerated, "marketdata", map[string]interface{}{
		"symbol": symbol,
		"days":   req.Days,
		"seed":   req.Seed,
	})

	summary, _ := h.history.Summary(symbol)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(importResponse{
		Symbol:  symbol,
		Parsed:  len(closes),
		Written: written,
		Summary: summary,
	})
}

// HandleSummary handles GET /{symbol}/summary
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	summary, err := h.history.Summary(symbol)
	if errors.Is(err, ErrNoData) {
		http.Error(w, "No price history for symbol", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to summarize history")
		http.Error(w, "Failed to summarize history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// HandleListSymbols handles GET / - symbols with a history database
func (h *Handler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	paths, err := h.history.Databases()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list history databases")
		http.Error(w, "Failed to list symbols", http.StatusInternalServerError)
		return
	}

	symbols := make([]string, 0, len(paths))
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), ".db")
		symbols = append(symbols, strings.ReplaceAll(name, "_", "."))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// normalizeSymbol uppercases a user-supplied symbol and rejects anything
// unsafe to use as a database file name
func normalizeSymbol(raw string) (string, bool) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" || len(symbol) > 16 {
		return "", false
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return "", false
		}
	}
	return symbol, true
}
