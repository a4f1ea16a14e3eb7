package marketdata

import (
	"math"
	"math/rand"
	"time"

	"github.com/skewcast/skewcast/internal/domain"
)

// Parameters of the fallback series, roughly matching a mid-vol commodity
const (
	syntheticStartPrice = 75.0
	syntheticDailyVol   = 0.018
	syntheticDrift      = 0.0002
)

// GenerateSyntheticCloses builds a seedable geometric random walk over the
// most recent `days` weekdays, ending today. It stands in for real history
// when no import has happened yet, so the training pipeline always has
// something to chew on.
func GenerateSyntheticCloses(days int, seed int64) []domain.DailyClose {
	if days < 1 {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))

	dates := make([]string, 0, days)
	day := time.Now()
	for len(dates) < days {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, day.Format(domain.DayFormat))
		}
		day = day.AddDate(0, 0, -1)
	}
	// dates were collected newest-first
	for i, j := 0, len(dates)-1; i < j; i, j = i+1, j-1 {
		dates[i], dates[j] = dates[j], dates[i]
	}

	closes := make([]domain.DailyClose, days)
	price := syntheticStartPrice
	for i := 0; i < days; i++ {
		// Geometric step: S(t+1) = S(t) * exp(drift + vol * Z)
		price *= math.Exp(syntheticDrift + syntheticDailyVol*rng.NormFloat64())
		closes[i] = domain.DailyClose{Date: dates[i], Close: price}
	}

	return closes
}
