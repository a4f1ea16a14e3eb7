package features

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Config holds the indicator windows behind the six model inputs. All
// windows are trailing, so features computed for day t never see day t+1.
type Config struct {
	FastMAPeriod int     `toml:"fast_ma_period" default:"10" validate:"min=2"`
	SlowMAPeriod int     `toml:"slow_ma_period" default:"30" validate:"min=2,gtfield=FastMAPeriod"`
	RSIPeriod    int     `toml:"rsi_period" default:"14" validate:"min=2"`
	VolWindow    int     `toml:"vol_window" default:"20" validate:"min=2"`
	BollPeriod   int     `toml:"boll_period" default:"20" validate:"min=2"`
	BollStdDev   float64 `toml:"boll_std_dev" default:"2.0" validate:"gt=0"`
	ZScoreWindow int     `toml:"zscore_window" default:"20" validate:"min=2"`
}

// DefaultConfig returns the standard indicator windows
func DefaultConfig() Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	return cfg
}

// Validate checks window sanity
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid feature config: %w", err)
	}
	return nil
}

// Warmup returns the number of leading rows consumed before every
// feature has a full window behind it
func (c Config) Warmup() int {
	warmup := c.SlowMAPeriod - 1
	for _, w := range []int{c.FastMAPeriod - 1, c.RSIPeriod, c.VolWindow, c.BollPeriod - 1, c.ZScoreWindow - 1} {
		if w > warmup {
			warmup = w
		}
	}
	return warmup
}
