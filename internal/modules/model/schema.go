package model

import "database/sql"

const snapshotsSchema = `
CREATE TABLE IF NOT EXISTS model_snapshots (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    run_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    best_val_nll REAL NOT NULL,
    active INTEGER NOT NULL DEFAULT 0,
    payload BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_model_snapshots_symbol ON model_snapshots(symbol);
CREATE INDEX IF NOT EXISTS idx_model_snapshots_active ON model_snapshots(symbol, active);
`

// InitSchema ensures the snapshot table exists in the main database
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(snapshotsSchema)
	return err
}
