package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/internal/database"
	"github.com/skewcast/skewcast/internal/events"
	"github.com/skewcast/skewcast/internal/marketdata"
)

// fakeStore keeps uploaded objects in memory
type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Upload(_ context.Context, name string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[name] = data
	return nil
}

func (f *fakeStore) List(_ context.Context, namePrefix string) ([]types.Object, error) {
	var out []types.Object
	for name, data := range f.objects {
		if !strings.HasPrefix(name, namePrefix) {
			continue
		}
		out = append(out, types.Object{
			Key:  aws.String(name),
			Size: aws.Int64(int64(len(data))),
		})
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, name string) error {
	delete(f.objects, name)
	return nil
}

func setupBackupService(t *testing.T, keep int) (*BackupService, *fakeStore) {
	t.Helper()

	dataDir := t.TempDir()

	db, err := database.New(filepath.Join(dataDir, "skewcast.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("CREATE TABLE runs (id TEXT PRIMARY KEY, status TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO runs (id, status) VALUES ('r1', 'completed')")
	require.NoError(t, err)

	history, err := marketdata.NewHistoryDB(filepath.Join(dataDir, "history"), zerolog.Nop())
	require.NoError(t, err)
	_, err = history.SaveDailyCloses("CL", marketdata.GenerateSyntheticCloses(30, 1))
	require.NoError(t, err)

	store := newFakeStore()
	svc := NewBackupService(db, history, store, events.NewManager(zerolog.Nop()),
		dataDir, keep, zerolog.Nop())
	return svc, store
}

// extractArchive unpacks a tar.gz held in memory
func extractArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = content
	}
	return files
}

func TestCreateAndUploadBackup(t *testing.T) {
	svc, store := setupBackupService(t, 5)

	archive, err := svc.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(archive, archivePrefix))
	assert.True(t, strings.HasSuffix(archive, ".tar.gz"))

	require.Len(t, store.objects, 1)
	files := extractArchive(t, store.objects[archive])

	require.Contains(t, files, "skewcast.db")
	require.Contains(t, files, "history/CL.db")
	require.Contains(t, files, "backup-metadata.json")

	var metadata BackupMetadata
	require.NoError(t, json.Unmarshal(files["backup-metadata.json"], &metadata))
	require.Len(t, metadata.Databases, 2)
	assert.False(t, metadata.Timestamp.IsZero())

	// Manifest checksums must match the archived bytes
	for _, dbMeta := range metadata.Databases {
		content, ok := files[dbMeta.Name]
		require.True(t, ok, "manifest names %s but the archive lacks it", dbMeta.Name)
		assert.Equal(t, int64(len(content)), dbMeta.SizeBytes)

		sum := sha256.Sum256(content)
		assert.Equal(t, fmt.Sprintf("sha256:%x", sum), dbMeta.Checksum)
	}
}

func TestListBackupsSortsAndFilters(t *testing.T) {
	svc, store := setupBackupService(t, 5)

	store.objects["skewcast-backup-2026-08-10-040000.tar.gz"] = []byte("old")
	store.objects["skewcast-backup-2026-08-24-040000.tar.gz"] = []byte("newest")
	store.objects["skewcast-backup-2026-08-17-040000.tar.gz"] = []byte("middle")
	store.objects["skewcast-backup-garbage.tar.gz"] = []byte("junk")

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3, "unparseable names are skipped")

	assert.Equal(t, "skewcast-backup-2026-08-24-040000.tar.gz", backups[0].Filename)
	assert.Equal(t, "skewcast-backup-2026-08-17-040000.tar.gz", backups[1].Filename)
	assert.Equal(t, "skewcast-backup-2026-08-10-040000.tar.gz", backups[2].Filename)
	assert.Equal(t, int64(6), backups[0].SizeBytes)
	assert.GreaterOrEqual(t, backups[0].AgeHours, int64(0))
}

func seedArchives(store *fakeStore, n int) {
	base := time.Date(2026, 8, 1, 4, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		name := archivePrefix + base.AddDate(0, 0, i).Format(archiveTimeFormat) + ".tar.gz"
		store.objects[name] = []byte("backup")
	}
}

func TestPruneBackupsKeepsNewest(t *testing.T) {
	svc, store := setupBackupService(t, 3)
	seedArchives(store, 5)

	deleted, err := svc.PruneBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.Equal(t, archivePrefix+"2026-08-05-040000.tar.gz", backups[0].Filename)
}

func TestPruneBackupsEnforcesMinimum(t *testing.T) {
	// keep=1 still leaves three archives behind
	svc, store := setupBackupService(t, 1)
	seedArchives(store, 4)

	deleted, err := svc.PruneBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Len(t, store.objects, 3)
}

func TestPruneBackupsNothingToDo(t *testing.T) {
	svc, store := setupBackupService(t, 3)
	seedArchives(store, 2)

	deleted, err := svc.PruneBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
	assert.Len(t, store.objects, 2)
}

func TestBackupJob(t *testing.T) {
	svc, store := setupBackupService(t, 5)

	job := NewBackupJob(svc, zerolog.Nop())
	assert.Equal(t, "backup", job.Name())
	require.NoError(t, job.Run())
	assert.Len(t, store.objects, 1)
}
