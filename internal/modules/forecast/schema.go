package forecast

import "database/sql"

const forecastsSchema = `
CREATE TABLE IF NOT EXISTS forecasts (
    id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    snapshot_id TEXT NOT NULL,
    base_date TEXT NOT NULL,
    target_date TEXT NOT NULL,
    base_close REAL NOT NULL,
    loc REAL NOT NULL,
    scale REAL NOT NULL,
    skew REAL NOT NULL,
    tail REAL NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (symbol, base_date)
);

CREATE INDEX IF NOT EXISTS idx_forecasts_target ON forecasts(symbol, target_date);
`

// InitSchema ensures the forecasts table exists in the main database
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(forecastsSchema)
	return err
}
