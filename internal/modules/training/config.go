package training

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/modules/features"
)

// Config holds the optimizer and schedule settings for a training run
type Config struct {
	Epochs       int     `toml:"epochs" default:"400" validate:"gt=0"`
	BatchSize    int     `toml:"batch_size" default:"32" validate:"gt=0"`
	LearningRate float64 `toml:"learning_rate" default:"0.005" validate:"gt=0"`
	ClipNorm     float64 `toml:"clip_norm" default:"5.0" validate:"gt=0"`
	ValFraction  float64 `toml:"val_fraction" default:"0.2" validate:"gt=0,lte=0.5"`
	Patience     int     `toml:"patience" default:"30" validate:"gte=0"`
	Seed         int64   `toml:"seed" default:"42"`
}

// NetworkConfig describes the hidden layer layout of the density network
type NetworkConfig struct {
	HiddenSizes []int `toml:"hidden_sizes" default:"[32,16]" validate:"min=1,dive,gt=0"`
}

// FileConfig is the full model configuration as loaded from a TOML file:
// indicator windows, network layout and the training schedule.
type FileConfig struct {
	Features features.Config `toml:"features"`
	Network  NetworkConfig   `toml:"network"`
	Training Config          `toml:"training"`
}

// DefaultFileConfig returns the built-in configuration
func DefaultFileConfig() FileConfig {
	var cfg FileConfig
	_ = defaults.Set(&cfg)
	return cfg
}

// LoadFileConfig reads a TOML model configuration. Keys omitted from the
// file fall back to their defaults, and an empty path returns the defaults
// unchanged.
func LoadFileConfig(path string, log zerolog.Logger) (FileConfig, error) {
	var cfg FileConfig

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("model config file not found: %s", path)
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid model config: %w", err)
	}

	log.Info().
		Str("path", path).
		Ints("hidden_sizes", cfg.Network.HiddenSizes).
		Int("epochs", cfg.Training.Epochs).
		Int("batch_size", cfg.Training.BatchSize).
		Float64("learning_rate", cfg.Training.LearningRate).
		Msg("Model configuration loaded")

	return cfg, nil
}
