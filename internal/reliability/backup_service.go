package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/database"
	"github.com/skewcast/skewcast/internal/events"
	"github.com/skewcast/skewcast/internal/marketdata"
)

const (
	archivePrefix     = "skewcast-backup-"
	archiveTimeFormat = "2006-01-02-150405"

	// Kept regardless of the configured retention
	minBackupsToKeep = 3
)

// ObjectStore is the slice of the S3 API the backup flow needs
type ObjectStore interface {
	Upload(ctx context.Context, name string, body io.Reader, size int64) error
	List(ctx context.Context, namePrefix string) ([]types.Object, error)
	Delete(ctx context.Context, name string) error
}

// BackupService snapshots every database into a tar.gz archive and ships
// it to an S3-compatible bucket
type BackupService struct {
	db      *database.DB
	history *marketdata.HistoryDB
	store   ObjectStore
	events  *events.Manager
	dataDir string
	keep    int
	log     zerolog.Logger
}

// BackupMetadata describes the contents of one backup archive
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database file in the archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes a backup archive stored in the bucket
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewBackupService creates a new backup service
func NewBackupService(
	db *database.DB,
	history *marketdata.HistoryDB,
	store ObjectStore,
	eventManager *events.Manager,
	dataDir string,
	keep int,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		db:      db,
		history: history,
		store:   store,
		events:  eventManager,
		dataDir: dataDir,
		keep:    keep,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup vacuums the main and per-symbol databases into a
// staging directory, verifies each copy, archives them together with a
// checksum manifest and uploads the archive. Returns the archive name.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (string, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	// A crashed run may have left stale files, and VACUUM INTO refuses
	// to overwrite
	if err := os.RemoveAll(stagingDir); err != nil {
		return "", fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(stagingDir, "history"), 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{Timestamp: time.Now().UTC()}
	var archived []string

	// Main database via its live connection
	mainName := filepath.Base(s.db.Path())
	if err := s.stageDatabase(s.db.Conn(), filepath.Join(stagingDir, mainName)); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", mainName, err)
	}
	meta, err := s.describeStaged(stagingDir, mainName)
	if err != nil {
		return "", err
	}
	metadata.Databases = append(metadata.Databases, meta)
	archived = append(archived, mainName)

	// Per-symbol history databases
	historyPaths, err := s.history.Databases()
	if err != nil {
		return "", fmt.Errorf("failed to list history databases: %w", err)
	}
	for _, historyPath := range historyPaths {
		name := path.Join("history", filepath.Base(historyPath))

		src, err := sql.Open("sqlite", historyPath)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", name, err)
		}
		err = s.stageDatabase(src, filepath.Join(stagingDir, "history", filepath.Base(historyPath)))
		src.Close()
		if err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", name, err)
		}

		meta, err := s.describeStaged(stagingDir, name)
		if err != nil {
			return "", err
		}
		metadata.Databases = append(metadata.Databases, meta)
		archived = append(archived, name)
	}

	// Checksum manifest rides along inside the archive
	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	archived = append(archived, "backup-metadata.json")

	archiveName := archivePrefix + time.Now().Format(archiveTimeFormat) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, archived); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.store.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	s.events.Emit(events.SnapshotBackedUp, "reliability", map[string]interface{}{
		"archive":    archiveName,
		"size_bytes": archiveInfo.Size(),
		"databases":  len(metadata.Databases),
	})
	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Int("databases", len(metadata.Databases)).
		Msg("Backup completed successfully")

	return archiveName, nil
}

// ListBackups lists the backup archives in the bucket, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}

		// Keys may carry a bucket prefix, the base name holds the timestamp
		filename := path.Base(*obj.Key)
		if !strings.HasPrefix(filename, archivePrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}

		timestampStr := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveTimeFormat, timestampStr)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from filename")
			continue
		}

		var sizeBytes int64
		if obj.Size != nil {
			sizeBytes = *obj.Size
		}

		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: sizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// PruneBackups deletes all but the newest archives, returning how many
// were removed. At least minBackupsToKeep always survive.
func (s *BackupService) PruneBackups(ctx context.Context) (int, error) {
	keep := s.keep
	if keep < minBackupsToKeep {
		keep = minBackupsToKeep
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		s.log.Debug().Int("count", len(backups)).Int("keep", keep).Msg("No backups to prune")
		return 0, nil
	}

	deleted := 0
	for _, backup := range backups[keep:] {
		if err := s.store.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().
			Str("filename", backup.Filename).
			Time("timestamp", backup.Timestamp).
			Msg("Deleted old backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")

	return deleted, nil
}

// stageDatabase writes an atomic, WAL-free copy of a live database and
// verifies the copy before it goes into the archive
func (s *BackupService) stageDatabase(conn *sql.DB, destPath string) error {
	if _, err := conn.Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	if err := verifyDatabase(destPath); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("staged copy failed verification: %w", err)
	}
	return nil
}

// describeStaged sizes and checksums one staged file
func (s *BackupService) describeStaged(stagingDir, name string) (DatabaseMetadata, error) {
	filePath := filepath.Join(stagingDir, filepath.FromSlash(name))

	info, err := os.Stat(filePath)
	if err != nil {
		return DatabaseMetadata{}, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	checksum, err := calculateChecksum(filePath)
	if err != nil {
		return DatabaseMetadata{}, fmt.Errorf("failed to checksum %s: %w", name, err)
	}

	return DatabaseMetadata{
		Name:      name,
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}, nil
}

// verifyDatabase opens a database file and runs an integrity check
func verifyDatabase(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// calculateChecksum calculates the SHA256 checksum of a file
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeMetadata writes the backup manifest as indented JSON
func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive tars and gzips the named files, keeping their
// staging-relative paths inside the archive
func createArchive(archivePath, sourceDir string, names []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, name := range names {
		filePath := filepath.Join(sourceDir, filepath.FromSlash(name))
		if err := addFileToArchive(tarWriter, filePath, name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	return nil
}

// addFileToArchive adds a single file to a tar archive
func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}

	return nil
}

// BackupJob wraps the backup flow for the scheduler
type BackupJob struct {
	service *BackupService
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Run creates and uploads a backup, then rotates old archives
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if _, err := j.service.PruneBackups(ctx); err != nil {
		// The backup itself landed, rotation can wait for the next run
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// Name returns the job name for the scheduler
func (j *BackupJob) Name() string {
	return "backup"
}
