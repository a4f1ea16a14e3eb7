package forecast

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(db))
	return db
}

func TestRepositorySaveAndLatest(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	f := testForecast("CL")
	require.NoError(t, repo.Save(f))

	loaded, err := repo.Latest("CL")
	require.NoError(t, err)
	assert.Equal(t, f.ID, loaded.ID)
	assert.Equal(t, f.BaseDate, loaded.BaseDate)
	assert.Equal(t, f.TargetDate, loaded.TargetDate)
	assert.InDelta(t, f.BaseClose, loaded.BaseClose, 1e-12)
	assert.InDelta(t, f.Params.Loc, loaded.Params.Loc, 1e-12)
	assert.InDelta(t, f.Params.Scale, loaded.Params.Scale, 1e-12)
	assert.InDelta(t, f.Params.Skew, loaded.Params.Skew, 1e-12)
	assert.InDelta(t, f.Params.Tail, loaded.Params.Tail, 1e-12)
	assert.True(t, loaded.CreatedAt.Equal(f.CreatedAt))
}

func TestRepositoryLatestPicksNewestBaseDate(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	older := testForecast("CL")
	older.ID = "f-old"
	older.BaseDate = "2026-08-20"
	newer := testForecast("CL")
	newer.ID = "f-new"
	newer.BaseDate = "2026-08-21"

	require.NoError(t, repo.Save(newer))
	require.NoError(t, repo.Save(older))

	loaded, err := repo.Latest("CL")
	require.NoError(t, err)
	assert.Equal(t, "f-new", loaded.ID)
}

func TestRepositorySaveReplacesSameBaseDate(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	first := testForecast("CL")
	require.NoError(t, repo.Save(first))

	second := testForecast("CL")
	second.ID = "f-2"
	second.Params.Loc = 0.001
	second.CreatedAt = first.CreatedAt.Add(time.Hour)
	require.NoError(t, repo.Save(second))

	all, err := repo.Range("CL", "", "")
	require.NoError(t, err)
	require.Len(t, all, 1, "one density per base date")
	assert.Equal(t, "f-2", all[0].ID)
	assert.InDelta(t, 0.001, all[0].Params.Loc, 1e-12)
}

func TestRepositoryRange(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	for i, date := range []string{"2026-08-17", "2026-08-18", "2026-08-19", "2026-08-20"} {
		f := testForecast("CL")
		f.ID = string(rune('a' + i))
		f.BaseDate = date
		require.NoError(t, repo.Save(f))
	}

	// Another symbol must not leak in
	other := testForecast("NG")
	other.BaseDate = "2026-08-18"
	require.NoError(t, repo.Save(other))

	mid, err := repo.Range("CL", "2026-08-18", "2026-08-19")
	require.NoError(t, err)
	require.Len(t, mid, 2)
	assert.Equal(t, "2026-08-18", mid[0].BaseDate)
	assert.Equal(t, "2026-08-19", mid[1].BaseDate)

	all, err := repo.Range("CL", "", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRepositoryByTargetDate(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	f := testForecast("CL")
	require.NoError(t, repo.Save(f))

	loaded, err := repo.ByTargetDate("CL", f.TargetDate)
	require.NoError(t, err)
	assert.Equal(t, f.ID, loaded.ID)

	_, err = repo.ByTargetDate("CL", "2030-01-01")
	assert.ErrorIs(t, err, ErrNoForecast)
}

func TestRepositoryLatestEmpty(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.Latest("CL")
	assert.ErrorIs(t, err, ErrNoForecast)
}
