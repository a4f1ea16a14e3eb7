package model

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/internal/modules/features"
)

func buildTestSnapshot(t *testing.T, symbol string) *Snapshot {
	t.Helper()

	scaler := &features.Scaler{
		Means: make([]float64, features.FeatureCount),
		Stds:  []float64{1, 1, 1, 1, 1, 1},
	}

	return &Snapshot{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		RunID:         uuid.NewString(),
		CreatedAt:     time.Date(2026, 8, 20, 23, 30, 0, 0, time.UTC),
		BestValNLL:    1.234,
		FeatureConfig: features.DefaultConfig(),
		FeatureScaler: scaler,
		TargetScaler:  &features.TargetScaler{Mean: 0.0002, Std: 0.012},
		Net:           NewNetwork(features.FeatureCount, []int{8, 4}, rand.New(rand.NewSource(11))),
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	original := buildTestSnapshot(t, "CL")

	payload, err := original.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	decoded, err := DecodeSnapshot(payload)
	require.NoError(t, err)

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Symbol, decoded.Symbol)
	assert.Equal(t, original.Net.Weights, decoded.Net.Weights)
	assert.Equal(t, original.Net.Biases, decoded.Net.Biases)
	assert.Equal(t, original.FeatureScaler, decoded.FeatureScaler)
	assert.Equal(t, original.TargetScaler, decoded.TargetScaler)
	assert.Equal(t, original.FeatureConfig, decoded.FeatureConfig)
}

func TestDecodeSnapshotGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte("definitely not msgpack"))
	assert.Error(t, err)
}

func TestSnapshotValidate(t *testing.T) {
	s := buildTestSnapshot(t, "CL")
	require.NoError(t, s.Validate())

	missing := *s
	missing.TargetScaler = nil
	assert.Error(t, missing.Validate())

	narrow := *s
	narrow.FeatureScaler = &features.Scaler{Means: []float64{0}, Stds: []float64{1}}
	assert.Error(t, narrow.Validate())

	headless := *s
	headless.Net = nil
	assert.Error(t, headless.Validate())
}
