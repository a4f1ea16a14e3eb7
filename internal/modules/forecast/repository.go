package forecast

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoForecast signals that no forecast matches the query
var ErrNoForecast = errors.New("no forecast found")

const timeLayout = "2006-01-02 15:04:05"

// Repository persists published forecasts in the main database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new forecast repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "forecast").Logger(),
	}
}

// Save stores a forecast. Re-forecasting the same base date replaces the
// earlier row, so each (symbol, base date) keeps exactly one density.
func (r *Repository) Save(f *Forecast) error {
	_, err := r.db.Exec(`
		INSERT INTO forecasts (id, symbol, snapshot_id, base_date, target_date,
		                       base_close, loc, scale, skew, tail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, base_date) DO UPDATE SET
			id = excluded.id,
			snapshot_id = excluded.snapshot_id,
			target_date = excluded.target_date,
			base_close = excluded.base_close,
			loc = excluded.loc,
			scale = excluded.scale,
			skew = excluded.skew,
			tail = excluded.tail,
			created_at = excluded.created_at`,
		f.ID, f.Symbol, f.SnapshotID, f.BaseDate, f.TargetDate,
		f.BaseClose, f.Params.Loc, f.Params.Scale, f.Params.Skew, f.Params.Tail,
		f.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save forecast: %w", err)
	}

	r.log.Info().
		Str("symbol", f.Symbol).
		Str("base_date", f.BaseDate).
		Str("target_date", f.TargetDate).
		Msg("Forecast saved")
	return nil
}

// Latest returns the most recent forecast for a symbol
func (r *Repository) Latest(symbol string) (*Forecast, error) {
	row := r.db.QueryRow(`
		SELECT id, symbol, snapshot_id, base_date, target_date,
		       base_close, loc, scale, skew, tail, created_at
		FROM forecasts WHERE symbol = ?
		ORDER BY base_date DESC LIMIT 1`, symbol)

	f, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoForecast
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest forecast: %w", err)
	}
	return f, nil
}

// Range returns forecasts with base dates in [start, end], oldest first.
// Empty bounds fall back to the full history.
func (r *Repository) Range(symbol, start, end string) ([]Forecast, error) {
	if start == "" {
		start = "0000-01-01"
	}
	if end == "" {
		end = "9999-12-31"
	}

	rows, err := r.db.Query(`
		SELECT id, symbol, snapshot_id, base_date, target_date,
		       base_close, loc, scale, skew, tail, created_at
		FROM forecasts
		WHERE symbol = ? AND base_date >= ? AND base_date <= ?
		ORDER BY base_date`, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var forecasts []Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		forecasts = append(forecasts, *f)
	}
	return forecasts, rows.Err()
}

// ByTargetDate returns the forecast aimed at a specific session, used when
// scoring realized outcomes.
func (r *Repository) ByTargetDate(symbol, targetDate string) (*Forecast, error) {
	row := r.db.QueryRow(`
		SELECT id, symbol, snapshot_id, base_date, target_date,
		       base_close, loc, scale, skew, tail, created_at
		FROM forecasts WHERE symbol = ? AND target_date = ?
		ORDER BY created_at DESC LIMIT 1`, symbol, targetDate)

	f, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoForecast
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast by target date: %w", err)
	}
	return f, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanForecast(row rowScanner) (*Forecast, error) {
	var f Forecast
	var createdAt string

	err := row.Scan(&f.ID, &f.Symbol, &f.SnapshotID, &f.BaseDate, &f.TargetDate,
		&f.BaseClose, &f.Params.Loc, &f.Params.Scale, &f.Params.Skew, &f.Params.Tail,
		&createdAt)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		f.CreatedAt = t
	}
	return &f, nil
}
