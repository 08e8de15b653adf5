package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"optlab/internal/domain"
)

// maxStaleDays bounds how far back a missing day (a holiday) may borrow the
// previous close from.
const maxStaleDays = 7

type yearLoader func(ctx context.Context, year int) ([]domain.Bar, error)

type dayClose struct {
	day   domain.Date
	close float64
}

// closeCache holds daily closes loaded one calendar year at a time.
type closeCache struct {
	mu    sync.Mutex
	load  yearLoader
	years map[int][]dayClose
}

func newCloseCache(load yearLoader) *closeCache {
	return &closeCache{load: load, years: make(map[int][]dayClose)}
}

// closeOn returns the close for date, or the most recent earlier close within
// maxStaleDays.
func (c *closeCache) closeOn(ctx context.Context, date time.Time) (float64, error) {
	day := domain.DateOf(date)
	for _, year := range []int{day.Year(), day.Year() - 1} {
		closes, err := c.yearCloses(ctx, year)
		if err != nil {
			return 0, err
		}
		i := sort.Search(len(closes), func(i int) bool { return closes[i].day.After(day) })
		if i == 0 {
			continue
		}
		found := closes[i-1]
		if found.day.DaysUntil(day) > maxStaleDays {
			break
		}
		return found.close, nil
	}
	return 0, fmt.Errorf("%s: %w", day, ErrNoPrice)
}

func (c *closeCache) yearCloses(ctx context.Context, year int) ([]dayClose, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if closes, ok := c.years[year]; ok {
		return closes, nil
	}
	bars, err := c.load(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("loading %d closes: %w", year, err)
	}

	closes := make([]dayClose, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, dayClose{day: domain.DateOf(b.Timestamp), close: b.Close})
	}
	sort.Slice(closes, func(i, j int) bool { return closes[i].day.Before(closes[j].day) })
	c.years[year] = closes
	return closes, nil
}

func yearBounds(year int) (time.Time, time.Time) {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0).Add(-time.Nanosecond)
}
