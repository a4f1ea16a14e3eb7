package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/skewcast/skewcast/internal/database"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	db          *database.DB
	history     *marketdata.HistoryDB
	scheduler   *scheduler.Scheduler
	// Jobs (will be set after job registration in main.go)
	retrainJob     scheduler.Job
	healthCheckJob scheduler.Job
	backupJob      scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	db *database.DB,
	history *marketdata.HistoryDB,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		db:          db,
		history:     history,
		scheduler:   sched,
	}
}

// SetJobs registers job references for manual triggering
// Called after jobs are registered in main.go
func (h *SystemHandlers) SetJobs(retrain, healthCheck, backup scheduler.Job) {
	h.retrainJob = retrain
	h.healthCheckJob = healthCheck
	h.backupJob = backup
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeHours   float64 `json:"uptime_hours"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	AllocMB       uint64  `json:"alloc_mb"`
	Goroutines    int     `json:"goroutines"`
	Symbols       int     `json:"symbols"`
	ActiveModels  int     `json:"active_models"`
	CompletedRuns int     `json:"completed_runs"`
	ForecastCount int     `json:"forecast_count"`
	LastTrained   string  `json:"last_trained,omitempty"`
}

// JobsStatusResponse represents scheduler job status
type JobsStatusResponse struct {
	TotalJobs int       `json:"total_jobs"`
	Jobs      []JobInfo `json:"jobs"`
}

// JobInfo represents information about a single job
type JobInfo struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	LastRun  string `json:"last_run,omitempty"`
	NextRun  string `json:"next_run,omitempty"`
	Status   string `json:"status"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	CoreDatabases []DBInfo `json:"core_databases"`
	HistoryDBs    int      `json:"history_dbs"`
	TotalSizeMB   float64  `json:"total_size_mb"`
	LastChecked   string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	HistoryMB float64 `json:"history_mb"`
	TotalMB   float64 `json:"total_mb"`
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	var activeModels int
	err := h.db.Conn().QueryRow(`
		SELECT COUNT(*) FROM model_snapshots WHERE active = 1
	`).Scan(&activeModels)
	if err != nil && err != sql.ErrNoRows {
		h.log.Error().Err(err).Msg("Failed to count active snapshots")
	}

	var completedRuns int
	var lastTrained sql.NullString
	err = h.db.Conn().QueryRow(`
		SELECT COUNT(*), MAX(finished_at)
		FROM training_runs WHERE status = ?
	`, "completed").Scan(&completedRuns, &lastTrained)
	if err != nil && err != sql.ErrNoRows {
		h.log.Error().Err(err).Msg("Failed to query training runs")
	}

	var lastTrainedFormatted string
	if lastTrained.Valid && lastTrained.String != "" {
		// Run rows store timestamps as "2006-01-02 15:04:05" UTC
		if t, err := time.Parse("2006-01-02 15:04:05", lastTrained.String); err == nil {
			lastTrainedFormatted = t.Format("2006-01-02 15:04")
		} else {
			lastTrainedFormatted = lastTrained.String
		}
	}

	var forecastCount int
	err = h.db.Conn().QueryRow(`SELECT COUNT(*) FROM forecasts`).Scan(&forecastCount)
	if err != nil && err != sql.ErrNoRows {
		h.log.Error().Err(err).Msg("Failed to count forecasts")
	}

	symbols := 0
	if h.history != nil {
		if dbs, err := h.history.Databases(); err == nil {
			symbols = len(dbs)
		} else {
			h.log.Warn().Err(err).Msg("Failed to list history databases")
		}
	}

	cpuPercent, ramPercent := h.getSystemStats()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeHours:   time.Since(h.startupTime).Hours(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		AllocMB:       m.Alloc / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
		Symbols:       symbols,
		ActiveModels:  activeModels,
		CompletedRuns: completedRuns,
		ForecastCount: forecastCount,
		LastTrained:   lastTrainedFormatted,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleJobsStatus returns scheduler job status
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting jobs status")

	jobs := []JobInfo{}
	if h.scheduler != nil {
		for _, js := range h.scheduler.Jobs() {
			info := JobInfo{
				Name:     js.Name,
				Schedule: js.Schedule,
				Status:   "scheduled",
			}
			if !js.PrevRun.IsZero() {
				info.LastRun = js.PrevRun.Format(time.RFC3339)
			}
			if !js.NextRun.IsZero() {
				info.NextRun = js.NextRun.Format(time.RFC3339)
			}
			jobs = append(jobs, info)
		}
	}

	response := JobsStatusResponse{
		TotalJobs: len(jobs),
		Jobs:      jobs,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	coreDatabases := []DBInfo{}
	totalSizeMB := 0.0

	if info, err := os.Stat(h.db.Path()); err == nil {
		sizeMB := float64(info.Size()) / 1024 / 1024
		totalSizeMB += sizeMB

		coreDatabases = append(coreDatabases, DBInfo{
			Name:   filepath.Base(h.db.Path()),
			Path:   h.db.Path(),
			SizeMB: sizeMB,
		})
	}

	historyCount := 0
	if h.history != nil {
		paths, err := h.history.Databases()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to list history databases")
		}
		for _, path := range paths {
			historyCount++
			if info, err := os.Stat(path); err == nil {
				totalSizeMB += float64(info.Size()) / 1024 / 1024
			}
		}
	}

	response := DatabaseStatsResponse{
		CoreDatabases: coreDatabases,
		HistoryDBs:    historyCount,
		TotalSizeMB:   totalSizeMB,
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)
	historySize := h.getDirSize(filepath.Join(h.dataDir, "history"))

	response := DiskUsageResponse{
		DataDirMB: dataDirSize,
		HistoryMB: historySize,
		TotalMB:   dataDirSize,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU sampling blocks for the interval, so keep it short.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// ============================================================================
// Job Trigger Endpoints
// ============================================================================

// HandleTriggerRetrain triggers the retrain job immediately
// POST /api/system/jobs/retrain
func (h *SystemHandlers) HandleTriggerRetrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.retrainJob == nil {
		h.log.Warn().Msg("Retrain job not registered yet")
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Retrain job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual retrain triggered")

	job := h.retrainJob
	go func() {
		if err := h.scheduler.RunNow(job); err != nil {
			h.log.Error().Err(err).Msg("Manually triggered retrain failed")
		}
	}()

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Retrain triggered successfully",
	})
}

// HandleTriggerHealthCheck triggers the health check job immediately
// POST /api/system/jobs/health-check
func (h *SystemHandlers) HandleTriggerHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.healthCheckJob == nil {
		h.log.Warn().Msg("Health check job not registered yet")
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Health check job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual health check triggered")

	if err := h.scheduler.RunNow(h.healthCheckJob); err != nil {
		h.log.Error().Err(err).Msg("Failed to run health check")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Health check completed successfully",
	})
}

// HandleTriggerBackup triggers the backup job immediately
// POST /api/system/jobs/backup
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.backupJob == nil {
		h.log.Warn().Msg("Backup job not registered yet")
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Backup job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual backup triggered")

	job := h.backupJob
	go func() {
		if err := h.scheduler.RunNow(job); err != nil {
			h.log.Error().Err(err).Msg("Manually triggered backup failed")
		}
	}()

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Backup triggered successfully",
	})
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
