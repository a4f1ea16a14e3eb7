package training

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrRunNotFound signals an unknown run ID
var ErrRunNotFound = errors.New("training run not found")

const timeLayout = "2006-01-02 15:04:05"

// Run is one recorded training run
type Run struct {
	ID            string     `json:"id"`
	Symbol        string     `json:"symbol"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	SampleCount   int        `json:"sample_count"`
	TrainSamples  int        `json:"train_samples"`
	ValSamples    int        `json:"val_samples"`
	EpochsRun     int        `json:"epochs_run"`
	BestEpoch     int        `json:"best_epoch"`
	BestValNLL    *float64   `json:"best_val_nll,omitempty"`
	FinalTrainNLL *float64   `json:"final_train_nll,omitempty"`
	StoppedEarly  bool       `json:"stopped_early"`
	Error         string     `json:"error,omitempty"`
}

// Repository persists training runs and their per-epoch losses
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new training repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "training").Logger(),
	}
}

// CreateRun records a freshly started run
func (r *Repository) CreateRun(run *Run) error {
	_, err := r.db.Exec(`
		INSERT INTO training_runs (id, symbol, status, started_at)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.Symbol, run.Status, run.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}

	r.log.Info().Str("run_id", run.ID).Str("symbol", run.Symbol).Msg("Training run created")
	return nil
}

// MarkCompleted stores the outcome of a successful run
func (r *Repository) MarkCompleted(id string, report *Report) error {
	stopped := 0
	if report.StoppedEarly {
		stopped = 1
	}

	_, err := r.db.Exec(`
		UPDATE training_runs
		SET status = ?, finished_at = ?, sample_count = ?, train_samples = ?,
		    val_samples = ?, epochs_run = ?, best_epoch = ?, best_val_nll = ?,
		    final_train_nll = ?, stopped_early = ?
		WHERE id = ?`,
		StatusCompleted, time.Now().UTC().Format(timeLayout),
		report.SampleCount, report.TrainSamples, report.ValSamples,
		report.EpochsRun, report.BestEpoch, report.BestValNLL,
		report.FinalTrainNLL, stopped, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run %s completed: %w", id, err)
	}
	return nil
}

// MarkFailed stores the failure cause of a run
func (r *Repository) MarkFailed(id string, cause error) error {
	_, err := r.db.Exec(`
		UPDATE training_runs
		SET status = ?, finished_at = ?, error = ?
		WHERE id = ?`,
		StatusFailed, time.Now().UTC().Format(timeLayout), cause.Error(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run %s failed: %w", id, err)
	}
	return nil
}

// GetRun returns a single run by ID
func (r *Repository) GetRun(id string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, symbol, status, started_at, finished_at, sample_count,
		       train_samples, val_samples, epochs_run, best_epoch,
		       best_val_nll, final_train_nll, stopped_early, error
		FROM training_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training run: %w", err)
	}
	return run, nil
}

// ListRuns returns recent runs, newest first. An empty symbol matches all
// symbols, and limit falls back to 20 when not positive.
func (r *Repository) ListRuns(symbol string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, symbol, status, started_at, finished_at, sample_count,
		       train_samples, val_samples, epochs_run, best_epoch,
		       best_val_nll, final_train_nll, stopped_early, error
		FROM training_runs`
	args := []interface{}{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SaveEpochStats stores the loss history of a run in one transaction
func (r *Repository) SaveEpochStats(runID string, history []EpochStats) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO epoch_losses (run_id, epoch, train_nll, val_nll, grad_norm)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare epoch insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range history {
		if _, err := stmt.Exec(runID, e.Epoch, e.TrainNLL, e.ValNLL, e.GradNorm); err != nil {
			return fmt.Errorf("failed to save epoch %d: %w", e.Epoch, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit epoch losses: %w", err)
	}
	return nil
}

// GetEpochStats returns the loss history of a run in epoch order
func (r *Repository) GetEpochStats(runID string) ([]EpochStats, error) {
	rows, err := r.db.Query(`
		SELECT epoch, train_nll, val_nll, grad_norm
		FROM epoch_losses WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get epoch losses: %w", err)
	}
	defer rows.Close()

	var history []EpochStats
	for rows.Next() {
		var e EpochStats
		if err := rows.Scan(&e.Epoch, &e.TrainNLL, &e.ValNLL, &e.GradNorm); err != nil {
			return nil, fmt.Errorf("failed to scan epoch loss: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	var bestValNLL, finalTrainNLL sql.NullFloat64
	var stopped int

	err := row.Scan(&run.ID, &run.Symbol, &run.Status, &startedAt, &finishedAt,
		&run.SampleCount, &run.TrainSamples, &run.ValSamples, &run.EpochsRun,
		&run.BestEpoch, &bestValNLL, &finalTrainNLL, &stopped, &run.Error)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(timeLayout, startedAt); err == nil {
		run.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(timeLayout, finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}
	if bestValNLL.Valid {
		run.BestValNLL = &bestValNLL.Float64
	}
	if finalTrainNLL.Valid {
		run.FinalTrainNLL = &finalTrainNLL.Float64
	}
	run.StoppedEarly = stopped != 0

	return &run, nil
}
