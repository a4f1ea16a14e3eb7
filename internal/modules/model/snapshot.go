package model

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/skewcast/skewcast/internal/modules/features"
)

// Snapshot bundles everything a forecast needs: the trained network, the
// indicator windows it was trained with, and the fitted normalization
// state for features and target. Persisting the scalers with the weights
// keeps serving exactly consistent with training.
type Snapshot struct {
	ID            string                 `msgpack:"id"`
	Symbol        string                 `msgpack:"symbol"`
	RunID         string                 `msgpack:"run_id"`
	CreatedAt     time.Time              `msgpack:"created_at"`
	BestValNLL    float64                `msgpack:"best_val_nll"`
	FeatureConfig features.Config        `msgpack:"feature_config"`
	FeatureScaler *features.Scaler       `msgpack:"feature_scaler"`
	TargetScaler  *features.TargetScaler `msgpack:"target_scaler"`
	Net           *Network               `msgpack:"net"`
}

// Encode serializes the snapshot to a compact binary blob
func (s *Snapshot) Encode() ([]byte, error) {
	payload, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return payload, nil
}

// DecodeSnapshot deserializes and validates a snapshot blob
func DecodeSnapshot(payload []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that the snapshot is internally consistent
func (s *Snapshot) Validate() error {
	if s.ID == "" || s.Symbol == "" {
		return fmt.Errorf("snapshot is missing id or symbol")
	}
	if s.Net == nil {
		return fmt.Errorf("snapshot %s has no network", s.ID)
	}
	if err := s.Net.Validate(); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.ID, err)
	}
	if s.FeatureScaler == nil || s.TargetScaler == nil {
		return fmt.Errorf("snapshot %s is missing scaler state", s.ID)
	}
	if err := s.FeatureScaler.Validate(s.Net.InputSize); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.ID, err)
	}
	return nil
}
