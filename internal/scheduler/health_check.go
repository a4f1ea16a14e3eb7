package scheduler

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/database"
	"github.com/skewcast/skewcast/internal/events"
	"github.com/skewcast/skewcast/internal/marketdata"
)

// HealthCheckJob runs periodic integrity checks over the main database
// and the per-symbol history databases
type HealthCheckJob struct {
	db      *database.DB
	history *marketdata.HistoryDB
	events  *events.Manager
	log     zerolog.Logger
	mu      sync.Mutex
}

// NewHealthCheckJob creates a new health check job
func NewHealthCheckJob(db *database.DB, history *marketdata.HistoryDB,
	eventManager *events.Manager, log zerolog.Logger) *HealthCheckJob {
	return &HealthCheckJob{
		db:      db,
		history: history,
		events:  eventManager,
		log:     log.With().Str("job", "health_check").Logger(),
	}
}

// Name returns the job name
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run executes the health check
func (j *HealthCheckJob) Run() error {
	if !j.mu.TryLock() {
		j.log.Warn().Msg("Health check already running, skipping")
		return nil
	}
	defer j.mu.Unlock()

	j.log.Info().Msg("Starting database health check")
	startTime := time.Now()

	// Main database corruption is critical, there is nothing to rebuild
	// it from
	if err := checkIntegrity(j.db.Conn()); err != nil {
		j.log.Error().Err(err).Msg("Main database integrity check failed")
		return fmt.Errorf("main database is corrupted: %w", err)
	}

	corrupted, removed := j.checkHistoryDatabases()
	j.checkWAL()

	duration := time.Since(startTime)
	j.events.Emit(events.HealthChecked, "scheduler", map[string]interface{}{
		"duration_ms":       duration.Milliseconds(),
		"history_corrupted": corrupted,
		"history_removed":   removed,
	})
	j.log.Info().
		Dur("duration", duration).
		Msg("Health check completed successfully")

	return nil
}

// checkHistoryDatabases verifies each per-symbol database. A corrupted
// file is deleted so the next import rebuilds it from scratch.
func (j *HealthCheckJob) checkHistoryDatabases() (corrupted, removed int) {
	paths, err := j.history.Databases()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to list history databases")
		return 0, 0
	}

	for _, dbPath := range paths {
		symbol := strings.TrimSuffix(filepath.Base(dbPath), ".db")

		db, err := sql.Open("sqlite3", dbPath)
		if err != nil {
			j.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to open history database")
			continue
		}
		err = checkIntegrity(db)
		db.Close()
		if err == nil {
			j.log.Debug().Str("symbol", symbol).Msg("History database integrity OK")
			continue
		}

		corrupted++
		j.log.Warn().
			Err(err).
			Str("symbol", symbol).
			Str("path", dbPath).
			Msg("History database corrupted, removing for rebuild")

		if err := os.Remove(dbPath); err != nil {
			j.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to delete corrupted database")
		} else {
			removed++
		}
	}

	return corrupted, removed
}

// checkWAL inspects the main database's WAL and truncates it when it has
// grown past a thousand frames
func (j *HealthCheckJob) checkWAL() {
	var busy, frames, checkpointed int
	err := j.db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to check WAL status")
		return
	}

	if frames > 1000 {
		j.log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, truncating")
		if err := j.db.Checkpoint(); err != nil {
			j.log.Error().Err(err).Msg("WAL truncate failed")
		}
	} else {
		j.log.Debug().Int("wal_frames", frames).Msg("WAL checkpoint status OK")
	}
}

// checkIntegrity runs SQLite's PRAGMA integrity_check
func checkIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}
