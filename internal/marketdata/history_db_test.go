package marketdata

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/internal/domain"
)

func newTestHistoryDB(t *testing.T) *HistoryDB {
	t.Helper()

	h, err := NewHistoryDB(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return h
}

func TestSaveAndGetDailyCloses(t *testing.T) {
	h := newTestHistoryDB(t)

	closes := []domain.DailyClose{
		{Date: "2026-08-19", Close: 74.1},
		{Date: "2026-08-17", Close: 73.5},
		{Date: "2026-08-18", Close: 73.9},
	}

	written, err := h.SaveDailyCloses("CL", closes)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	got, err := h.GetDailyCloses("CL", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ascending by date regardless of insert order
	assert.Equal(t, "2026-08-17", got[0].Date)
	assert.Equal(t, "2026-08-18", got[1].Date)
	assert.Equal(t, "2026-08-19", got[2].Date)
}

func TestGetDailyClosesLimit(t *testing.T) {
	h := newTestHistoryDB(t)

	_, err := h.SaveDailyCloses("CL", []domain.DailyClose{
		{Date: "2026-08-17", Close: 73.5},
		{Date: "2026-08-18", Close: 73.9},
		{Date: "2026-08-19", Close: 74.1},
	})
	require.NoError(t, err)

	got, err := h.GetDailyCloses("CL", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Most recent rows, still ascending
	assert.Equal(t, "2026-08-18", got[0].Date)
	assert.Equal(t, "2026-08-19", got[1].Date)
}

func TestSaveDailyClosesUpserts(t *testing.T) {
	h := newTestHistoryDB(t)

	_, err := h.SaveDailyCloses("CL", []domain.DailyClose{{Date: "2026-08-19", Close: 74.1}})
	require.NoError(t, err)

	_, err = h.SaveDailyCloses("CL", []domain.DailyClose{{Date: "2026-08-19", Close: 75.0}})
	require.NoError(t, err)

	got, err := h.GetDailyCloses("CL", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 75.0, got[0].Close, 1e-9)
}

func TestSaveDailyClosesSkipsNonPositive(t *testing.T) {
	h := newTestHistoryDB(t)

	written, err := h.SaveDailyCloses("CL", []domain.DailyClose{
		{Date: "2026-08-18", Close: 0},
		{Date: "2026-08-19", Close: -3},
		{Date: "2026-08-20", Close: 74.2},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
}

func TestSummary(t *testing.T) {
	h := newTestHistoryDB(t)

	_, err := h.SaveDailyCloses("NG", []domain.DailyClose{
		{Date: "2026-08-17", Close: 2.50},
		{Date: "2026-08-18", Close: 2.55},
		{Date: "2026-08-19", Close: 2.45},
	})
	require.NoError(t, err)

	s, err := h.Summary("NG")
	require.NoError(t, err)

	assert.Equal(t, "NG", s.Symbol)
	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, "2026-08-17", s.FirstDate)
	assert.Equal(t, "2026-08-19", s.LastDate)
	assert.InDelta(t, 2.45, s.LastClose, 1e-9)
	assert.Greater(t, s.AnnualizedVol, 0.0)
	assert.InDelta(t, (2.60-2.45)/2.60, s.MaxDrawdown, 1e-9)
	assert.NotZero(t, s.SharpeRatio)
}

func TestSummaryNoData(t *testing.T) {
	h := newTestHistoryDB(t)

	_, err := h.Summary("EMPTY")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDatabasesListsSymbolFiles(t *testing.T) {
	h := newTestHistoryDB(t)

	_, err := h.SaveDailyCloses("CL", []domain.DailyClose{{Date: "2026-08-19", Close: 74.1}})
	require.NoError(t, err)
	_, err = h.SaveDailyCloses("BRN.F", []domain.DailyClose{{Date: "2026-08-19", Close: 78.3}})
	require.NoError(t, err)

	paths, err := h.Databases()
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}
