package marketdata

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"optlab/internal/domain"
)

// RandomWalk is the placeholder feed used when no historical data is
// configured: a seeded geometric random walk over weekdays. The same seed and
// origin always produce the same path, and each date's price is memoised.
type RandomWalk struct {
	startPrice float64
	dailyVol   float64
	seed       uint64

	mu     sync.Mutex
	origin domain.Date
	rng    *rand.Rand
	path   []float64 // path[i] is the close i weekdays after origin
}

// NewRandomWalk returns a walk starting at startPrice with the given daily
// volatility (0.01 = 1% per day). The origin is the first date requested.
func NewRandomWalk(startPrice, dailyVol float64, seed uint64) *RandomWalk {
	return &RandomWalk{
		startPrice: startPrice,
		dailyVol:   dailyVol,
		seed:       seed,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// SpotPrice returns the walk's price on date. Weekends repeat the preceding
// Friday, and dates before the origin quote the start price.
func (w *RandomWalk) SpotPrice(ctx context.Context, date time.Time) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	day := domain.DateOf(date)
	if w.origin.IsZero() {
		w.origin = day
		w.path = []float64{w.startPrice}
	}
	if day.Before(w.origin) {
		return w.startPrice, nil
	}

	idx := weekdaysBetween(w.origin, day)
	for len(w.path) <= idx {
		prev := w.path[len(w.path)-1]
		z := w.rng.NormFloat64()
		w.path = append(w.path, prev*math.Exp(w.dailyVol*z-0.5*w.dailyVol*w.dailyVol))
	}
	return w.path[idx], nil
}

// weekdaysBetween counts weekdays in (from, to]; weekends map onto the
// preceding weekday.
func weekdaysBetween(from, to domain.Date) int {
	n := 0
	for d := from.AddDays(1); !d.After(to); d = d.AddDays(1) {
		if !d.IsWeekend() {
			n++
		}
	}
	return n
}
