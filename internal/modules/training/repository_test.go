package training

import (
	"database/sql"
	"errors"
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

func TestRepositoryRunLifecycle(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	run := &Run{
		ID:        "run-1",
		Symbol:    "CL",
		Status:    StatusRunning,
		StartedAt: time.Date(2026, 8, 20, 23, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateRun(run))

	loaded, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, loaded.Status)
	assert.Equal(t, "CL", loaded.Symbol)
	assert.True(t, loaded.StartedAt.Equal(run.StartedAt))
	assert.Nil(t, loaded.FinishedAt)
	assert.Nil(t, loaded.BestValNLL)
	assert.Nil(t, loaded.FinalTrainNLL)

	report := &Report{
		SampleCount:   300,
		TrainSamples:  240,
		ValSamples:    60,
		EpochsRun:     42,
		BestEpoch:     12,
		BestValNLL:    1.21,
		FinalTrainNLL: 1.05,
		StoppedEarly:  true,
	}
	require.NoError(t, repo.MarkCompleted("run-1", report))

	loaded, err = repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, loaded.Status)
	require.NotNil(t, loaded.FinishedAt)
	assert.Equal(t, 300, loaded.SampleCount)
	assert.Equal(t, 240, loaded.TrainSamples)
	assert.Equal(t, 60, loaded.ValSamples)
	assert.Equal(t, 42, loaded.EpochsRun)
	assert.Equal(t, 12, loaded.BestEpoch)
	require.NotNil(t, loaded.BestValNLL)
	assert.InDelta(t, 1.21, *loaded.BestValNLL, 1e-9)
	require.NotNil(t, loaded.FinalTrainNLL)
	assert.InDelta(t, 1.05, *loaded.FinalTrainNLL, 1e-9)
	assert.True(t, loaded.StoppedEarly)
}

func TestRepositoryMarkFailed(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	run := &Run{ID: "run-2", Symbol: "CL", Status: StatusRunning, StartedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateRun(run))
	require.NoError(t, repo.MarkFailed("run-2", errors.New("validation loss is not finite")))

	loaded, err := repo.GetRun("run-2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, loaded.Status)
	assert.Equal(t, "validation loss is not finite", loaded.Error)
	require.NotNil(t, loaded.FinishedAt)
}

func TestRepositoryGetRunNotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRepositoryListRuns(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	base := time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)
	seed := []struct {
		id     string
		symbol string
		offset time.Duration
	}{
		{"run-a", "CL", 0},
		{"run-b", "CL", time.Hour},
		{"run-c", "NG", 2 * time.Hour},
	}
	for _, s := range seed {
		require.NoError(t, repo.CreateRun(&Run{
			ID: s.id, Symbol: s.symbol, Status: StatusRunning, StartedAt: base.Add(s.offset),
		}))
	}

	all, err := repo.ListRuns("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-c", all[0].ID, "newest first")
	assert.Equal(t, "run-a", all[2].ID)

	cl, err := repo.ListRuns("CL", 0)
	require.NoError(t, err)
	require.Len(t, cl, 2)
	assert.Equal(t, "run-b", cl[0].ID)

	limited, err := repo.ListRuns("", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-c", limited[0].ID)
}

func TestRepositoryEpochStatsRoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	run := &Run{ID: "run-e", Symbol: "CL", Status: StatusRunning, StartedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateRun(run))

	history := []EpochStats{
		{Epoch: 1, TrainNLL: 1.9, ValNLL: 1.95, GradNorm: 4.2},
		{Epoch: 2, TrainNLL: 1.6, ValNLL: 1.7, GradNorm: 2.8},
		{Epoch: 3, TrainNLL: 1.5, ValNLL: 1.68, GradNorm: 1.9},
	}
	require.NoError(t, repo.SaveEpochStats("run-e", history))

	loaded, err := repo.GetEpochStats("run-e")
	require.NoError(t, err)
	assert.Equal(t, history, loaded)

	empty, err := repo.GetEpochStats("missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
