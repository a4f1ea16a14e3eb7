package marketdata

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/pkg/formulas"
)

// ErrNoData signals that a symbol has no stored price history
var ErrNoData = errors.New("no price history")

const dailyPricesSchema = `
CREATE TABLE IF NOT EXISTS daily_prices (
    date TEXT PRIMARY KEY,
    close REAL NOT NULL
);
`

// HistoryDB stores one SQLite database per symbol under a history directory
type HistoryDB struct {
	historyDir string
	log        zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(historyDir string, log zerolog.Logger) (*HistoryDB, error) {
	if err := os.MkdirAll(historyDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	return &HistoryDB{
		historyDir: historyDir,
		log:        log.With().Str("component", "history_db").Logger(),
	}, nil
}

// Summary describes the stored coverage for one symbol
type Summary struct {
	Symbol        string  `json:"symbol"`
	Rows          int     `json:"rows"`
	FirstDate     string  `json:"first_date"`
	LastDate      string  `json:"last_date"`
	LastClose     float64 `json:"last_close"`
	AnnualizedVol float64 `json:"annualized_vol"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
}

// Dir returns the history directory
func (h *HistoryDB) Dir() string {
	return h.historyDir
}

// SaveDailyCloses upserts daily closes for a symbol, returning the number
// of rows written
func (h *HistoryDB) SaveDailyCloses(symbol string, closes []domain.DailyClose) (int, error) {
	if len(closes) == 0 {
		return 0, nil
	}

	db, err := h.openHistoryDB(symbol)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (date, close) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET close = excluded.close
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, c := range closes {
		if c.Close <= 0 {
			continue
		}
		if _, err := stmt.Exec(c.Date, c.Close); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to upsert close for %s: %w", c.Date, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit closes: %w", err)
	}

	h.log.Debug().Str("symbol", symbol).Int("rows", written).Msg("Saved daily closes")
	return written, nil
}

// GetDailyCloses fetches closes for a symbol in ascending date order.
// A non-positive limit returns the full series; otherwise the most recent
// `limit` rows are returned, still ascending.
func (h *HistoryDB) GetDailyCloses(symbol string, limit int) ([]domain.DailyClose, error) {
	db, err := h.openHistoryDB(symbol)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := "SELECT date, close FROM daily_prices ORDER BY date ASC"
	args := []interface{}{}
	if limit > 0 {
		query = `
			SELECT date, close FROM (
				SELECT date, close FROM daily_prices ORDER BY date DESC LIMIT ?
			) ORDER BY date ASC
		`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily closes: %w", err)
	}
	defer rows.Close()

	var closes []domain.DailyClose
	for rows.Next() {
		var c domain.DailyClose
		if err := rows.Scan(&c.Date, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily close: %w", err)
		}
		closes = append(closes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily closes: %w", err)
	}

	return closes, nil
}

// Summary reports the stored coverage and realized volatility for a symbol
func (h *HistoryDB) Summary(symbol string) (*Summary, error) {
	closes, err := h.GetDailyCloses(symbol, 0)
	if err != nil {
		return nil, err
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}

	prices := make([]float64, len(closes))
	for i, c := range closes {
		prices[i] = c.Close
	}

	returns := formulas.CalculateReturns(prices)

	return &Summary{
		Symbol:        symbol,
		Rows:          len(closes),
		FirstDate:     closes[0].Date,
		LastDate:      closes[len(closes)-1].Date,
		LastClose:     prices[len(prices)-1],
		AnnualizedVol: formulas.AnnualizedVolatility(returns),
		MaxDrawdown:   formulas.CalculateMaxDrawdown(prices),
		SharpeRatio:   formulas.CalculateSharpeRatio(returns, 0),
	}, nil
}

// Databases lists the on-disk history database files
func (h *HistoryDB) Databases() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(h.historyDir, "*.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to list history databases: %w", err)
	}
	return paths, nil
}

// Ping verifies that a symbol's database file is usable
func (h *HistoryDB) Ping(symbol string) error {
	db, err := h.openHistoryDB(symbol)
	if err != nil {
		return err
	}
	return db.Close()
}

// openHistoryDB opens the history database for a symbol, creating the
// schema on first use
func (h *HistoryDB) openHistoryDB(symbol string) (*sql.DB, error) {
	// Convert symbol format: BRN.F -> BRN_F
	dbSymbol := strings.ReplaceAll(symbol, ".", "_")

	dbPath := filepath.Join(h.historyDir, dbSymbol+".db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database for %s: %w", symbol, err)
	}

	// Verify database is accessible
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database for %s: %w", symbol, err)
	}

	if _, err := db.Exec(dailyPricesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure history schema for %s: %w", symbol, err)
	}

	return db, nil
}
