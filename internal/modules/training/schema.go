package training

import "database/sql"

const runsSchema = `
CREATE TABLE IF NOT EXISTS training_runs (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    sample_count INTEGER NOT NULL DEFAULT 0,
    train_samples INTEGER NOT NULL DEFAULT 0,
    val_samples INTEGER NOT NULL DEFAULT 0,
    epochs_run INTEGER NOT NULL DEFAULT 0,
    best_epoch INTEGER NOT NULL DEFAULT 0,
    best_val_nll REAL,
    final_train_nll REAL,
    stopped_early INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_training_runs_symbol ON training_runs(symbol);
CREATE INDEX IF NOT EXISTS idx_training_runs_started ON training_runs(started_at);

CREATE TABLE IF NOT EXISTS epoch_losses (
    run_id TEXT NOT NULL,
    epoch INTEGER NOT NULL,
    train_nll REAL NOT NULL,
    val_nll REAL NOT NULL,
    grad_norm REAL NOT NULL,
    PRIMARY KEY (run_id, epoch)
);
`

// InitSchema ensures the training run tables exist in the main database
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(runsSchema)
	return err
}
