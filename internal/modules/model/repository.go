package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoActiveModel signals that a symbol has no activated snapshot yet
var ErrNoActiveModel = errors.New("no active model")

// ErrSnapshotNotFound signals an unknown snapshot id
var ErrSnapshotNotFound = errors.New("snapshot not found")

const timeLayout = "2006-01-02 15:04:05"

// Repository handles snapshot persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "model").Logger(),
	}
}

// SnapshotMeta is the listable header of a stored snapshot
type SnapshotMeta struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	BestValNLL float64   `json:"best_val_nll"`
	Active     bool      `json:"active"`
}

// Save stores a snapshot without activating it
func (r *Repository) Save(s *Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	payload, err := s.Encode()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO model_snapshots (id, symbol, run_id, created_at, best_val_nll, active, payload)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, s.ID, s.Symbol, s.RunID, s.CreatedAt.UTC().Format(timeLayout), s.BestValNLL, payload)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	r.log.Debug().Str("snapshot_id", s.ID).Str("symbol", s.Symbol).
		Int("bytes", len(payload)).Msg("Saved model snapshot")
	return nil
}

// Activate makes a snapshot the single active model for its symbol
func (r *Repository) Activate(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin activation: %w", err)
	}
	defer tx.Rollback()

	var symbol string
	err = tx.QueryRow("SELECT symbol FROM model_snapshots WHERE id = ?", id).Scan(&symbol)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up snapshot: %w", err)
	}

	if _, err := tx.Exec("UPDATE model_snapshots SET active = 0 WHERE symbol = ?", symbol); err != nil {
		return fmt.Errorf("failed to deactivate previous models: %w", err)
	}
	if _, err := tx.Exec("UPDATE model_snapshots SET active = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to activate snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}

	r.log.Info().Str("snapshot_id", id).Str("symbol", symbol).Msg("Activated model snapshot")
	return nil
}

// ActiveSnapshot loads and decodes the active model for a symbol
func (r *Repository) ActiveSnapshot(symbol string) (*Snapshot, error) {
	var payload []byte
	err := r.db.QueryRow(`
		SELECT payload FROM model_snapshots WHERE symbol = ? AND active = 1
	`, symbol).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w for %s", ErrNoActiveModel, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active snapshot: %w", err)
	}

	return DecodeSnapshot(payload)
}

// ActiveMeta returns the header of the active model without decoding weights
func (r *Repository) ActiveMeta(symbol string) (*SnapshotMeta, error) {
	row := r.db.QueryRow(`
		SELECT id, symbol, run_id, created_at, best_val_nll, active
		FROM model_snapshots WHERE symbol = ? AND active = 1
	`, symbol)

	meta, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s", ErrNoActiveModel, symbol)
	}
	return meta, err
}

// List returns snapshot headers for a symbol, newest first
func (r *Repository) List(symbol string, limit int) ([]SnapshotMeta, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT id, symbol, run_id, created_at, best_val_nll, active
		FROM model_snapshots
		WHERE symbol = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var metas []SnapshotMeta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, *meta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return metas, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMeta(row rowScanner) (*SnapshotMeta, error) {
	var meta SnapshotMeta
	var createdAt string
	var active int

	err := row.Scan(&meta.ID, &meta.Symbol, &meta.RunID, &createdAt, &meta.BestValNLL, &active)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot meta: %w", err)
	}

	meta.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	meta.Active = active == 1
	return &meta, nil
}
