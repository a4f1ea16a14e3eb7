package training

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/internal/events"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/model"
)

func setupTestService(t *testing.T) (*Service, *Repository, *model.Repository, *marketdata.HistoryDB) {
	t.Helper()

	db := setupTestDB(t)
	require.NoError(t, model.InitSchema(db))

	history, err := marketdata.NewHistoryDB(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	repo := NewRepository(db, zerolog.Nop())
	models := model.NewRepository(db, zerolog.Nop())

	cfg := DefaultFileConfig()
	cfg.Network.HiddenSizes = []int{8}
	cfg.Training.Epochs = 3
	cfg.Training.Patience = 0

	svc := NewService(history, repo, models, events.NewManager(zerolog.Nop()), cfg, zerolog.Nop())
	return svc, repo, models, history
}

func TestServiceTrainFallsBackToSynthetic(t *testing.T) {
	svc, repo, models, _ := setupTestService(t)

	result, err := svc.Train("CL")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Run.Status)
	assert.Equal(t, 3, result.Report.EpochsRun)

	// The fresh snapshot is the active model
	snap, err := models.ActiveSnapshot("CL")
	require.NoError(t, err)
	assert.Equal(t, result.Snapshot.ID, snap.ID)
	assert.Equal(t, result.Run.ID, snap.RunID)

	// Run row and loss history are persisted
	run, err := repo.GetRun(result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	require.NotNil(t, run.BestValNLL)

	history, err := repo.GetEpochStats(result.Run.ID)
	require.NoError(t, err)
	assert.Len(t, history, result.Report.EpochsRun)
}

func TestServiceTrainUsesStoredHistory(t *testing.T) {
	svc, _, _, history := setupTestService(t)

	closes := marketdata.GenerateSyntheticCloses(400, 99)
	_, err := history.SaveDailyCloses("CL", closes)
	require.NoError(t, err)

	result, err := svc.Train("CL")
	require.NoError(t, err)

	// Trained on the stored 400-row history, not the 750-day fallback
	assert.Greater(t, result.Report.SampleCount, 300)
	assert.Less(t, result.Report.SampleCount, 400)
}

func TestServiceTrainIsRepeatable(t *testing.T) {
	svc, _, models, _ := setupTestService(t)

	first, err := svc.Train("CL")
	require.NoError(t, err)
	second, err := svc.Train("CL")
	require.NoError(t, err)

	// Identical data and seed give identical losses across runs
	assert.Equal(t, first.Report.History, second.Report.History)

	// The second snapshot replaced the first as active
	active, err := models.ActiveSnapshot("CL")
	require.NoError(t, err)
	assert.Equal(t, second.Snapshot.ID, active.ID)

	metas, err := models.List("CL", 0)
	require.NoError(t, err)
	assert.Len(t, metas, 2)
}

func TestServiceRejectsConcurrentTraining(t *testing.T) {
	svc, _, _, _ := setupTestService(t)

	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, err := svc.Train("CL")
	assert.ErrorIs(t, err, ErrTrainingBusy)

	_, err = svc.StartTraining("CL")
	assert.ErrorIs(t, err, ErrTrainingBusy)
}

func TestServiceStartTrainingRunsInBackground(t *testing.T) {
	svc, repo, models, _ := setupTestService(t)

	runID, err := svc.StartTraining("CL")
	require.NoError(t, err)

	// The run row exists before the background work finishes
	run, err := repo.GetRun(runID)
	require.NoError(t, err)
	assert.Contains(t, []string{StatusRunning, StatusCompleted}, run.Status)

	require.Eventually(t, func() bool {
		run, err := repo.GetRun(runID)
		return err == nil && run.Status == StatusCompleted
	}, 30*time.Second, 50*time.Millisecond)

	_, err = models.ActiveSnapshot("CL")
	assert.NoError(t, err)
}
