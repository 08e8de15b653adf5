package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"optlab/internal/domain"
	"optlab/internal/store"
)

func day(s string) time.Time { return domain.MustDate(s).Time }

func TestFlat(t *testing.T) {
	p, err := Flat(21500).SpotPrice(context.Background(), day("2024-01-06"))
	if err != nil || p != 21500 {
		t.Errorf("Flat.SpotPrice = %v, %v; want 21500, nil", p, err)
	}
}

func TestSequenceSkipsWeekends(t *testing.T) {
	// 2024-01-05 is a Friday.
	s := Sequence(day("2024-01-05"), 100, 101, 102)

	want := map[string]float64{"2024-01-05": 100, "2024-01-08": 101, "2024-01-09": 102}
	if len(s) != len(want) {
		t.Fatalf("Sequence = %v, want %v", s, want)
	}
	for k, v := range want {
		if s[k] != v {
			t.Errorf("Sequence[%s] = %v, want %v", k, s[k], v)
		}
	}

	if _, err := s.SpotPrice(context.Background(), day("2024-01-06")); !errors.Is(err, ErrNoPrice) {
		t.Errorf("SpotPrice on a missing day error = %v, want ErrNoPrice", err)
	}
}

func TestRandomWalkDeterministic(t *testing.T) {
	ctx := context.Background()
	a := NewRandomWalk(100, 0.01, 42)
	b := NewRandomWalk(100, 0.01, 42)

	first, _ := a.SpotPrice(ctx, day("2024-01-02"))
	if first != 100 {
		t.Errorf("price on origin = %v, want start price 100", first)
	}

	// b jumps straight to the end; a walks day by day. Paths must agree.
	end, _ := b.SpotPrice(ctx, day("2024-01-02"))
	bEnd, _ := b.SpotPrice(ctx, day("2024-03-29"))
	var aEnd float64
	for d := day("2024-01-02"); !d.After(day("2024-03-29")); d = d.AddDate(0, 0, 1) {
		p, err := a.SpotPrice(ctx, d)
		if err != nil {
			t.Fatalf("SpotPrice(%s): %v", d.Format("2006-01-02"), err)
		}
		if p <= 0 {
			t.Fatalf("SpotPrice(%s) = %v, want positive", d.Format("2006-01-02"), p)
		}
		aEnd = p
	}
	if end != 100 || aEnd != bEnd {
		t.Errorf("walks diverged: %v vs %v", aEnd, bEnd)
	}

	fri, _ := a.SpotPrice(ctx, day("2024-01-05"))
	sat, _ := a.SpotPrice(ctx, day("2024-01-06"))
	if fri != sat {
		t.Errorf("Saturday = %v, want Friday's %v", sat, fri)
	}

	again, _ := a.SpotPrice(ctx, day("2024-02-14"))
	fresh := NewRandomWalk(100, 0.01, 42)
	fresh.SpotPrice(ctx, day("2024-01-02"))
	want, _ := fresh.SpotPrice(ctx, day("2024-02-14"))
	if again != want {
		t.Errorf("memoised price = %v, want %v", again, want)
	}

	other := NewRandomWalk(100, 0.01, 7)
	other.SpotPrice(ctx, day("2024-01-02"))
	if p, _ := other.SpotPrice(ctx, day("2024-03-29")); p == bEnd {
		t.Errorf("different seeds produced the same path end %v", p)
	}
}

func TestRandomWalkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRandomWalk(100, 0.01, 1).SpotPrice(ctx, day("2024-01-02")); !errors.Is(err, context.Canceled) {
		t.Errorf("SpotPrice error = %v, want context.Canceled", err)
	}
}

func writeBars(t *testing.T, s store.BarStore, closes map[string]float64) {
	t.Helper()
	var bars []domain.Bar
	for k, v := range closes {
		bars = append(bars, domain.Bar{Symbol: "SPY", Timestamp: day(k), Close: v})
	}
	if err := s.WriteBars(context.Background(), "us", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
}

func TestBarProvider(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	writeBars(t, ps, map[string]float64{
		"2023-12-29": 475.3,
		"2024-01-02": 472.6,
		"2024-01-03": 468.8,
		"2024-01-12": 476.7,
		"2024-01-16": 474.9, // 2024-01-15 is a holiday
	})
	p := NewBarProvider(ps, "us", "spy")
	ctx := context.Background()

	tests := []struct {
		date string
		want float64
	}{
		{"2024-01-02", 472.6},
		{"2024-01-03", 468.8},
		{"2024-01-15", 476.7},
		{"2024-01-01", 475.3}, // previous year
		{"2024-01-16", 474.9},
	}
	for _, tt := range tests {
		got, err := p.SpotPrice(ctx, day(tt.date))
		if err != nil {
			t.Errorf("SpotPrice(%s): %v", tt.date, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SpotPrice(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}

	// A gap longer than a holiday weekend is missing data, not a holiday.
	if _, err := p.SpotPrice(ctx, day("2024-01-11")); !errors.Is(err, ErrNoPrice) {
		t.Errorf("SpotPrice across a gap error = %v, want ErrNoPrice", err)
	}
	if _, err := p.SpotPrice(ctx, day("2022-06-01")); !errors.Is(err, ErrNoPrice) {
		t.Errorf("SpotPrice before any data error = %v, want ErrNoPrice", err)
	}
}

type fakeBarsClient struct {
	mu       sync.Mutex
	calls    int
	failures int
	bars     []alpacamd.Bar
}

func (f *fakeBarsClient) GetBars(symbol string, req alpacamd.GetBarsRequest) ([]alpacamd.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 service unavailable")
	}
	var out []alpacamd.Bar
	for _, b := range f.bars {
		if !b.Timestamp.Before(req.Start) && !b.Timestamp.After(req.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestAlpacaProviderCachesAndRetries(t *testing.T) {
	// Alpaca stamps daily bars at midnight New York time.
	client := &fakeBarsClient{
		failures: 1,
		bars: []alpacamd.Bar{
			{Timestamp: time.Date(2024, 1, 3, 5, 0, 0, 0, time.UTC), Close: 468.8, Volume: 100},
			{Timestamp: time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC), Close: 472.6, Volume: 200},
		},
	}
	sink := store.NewParquetStore(t.TempDir())
	p := NewAlpacaProviderWithClient(client, AlpacaConfig{Symbol: "spy", Sink: sink})
	p.backoff = time.Millisecond
	ctx := context.Background()

	got, err := p.SpotPrice(ctx, day("2024-01-02"))
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	if got != 472.6 {
		t.Errorf("SpotPrice = %v, want 472.6", got)
	}
	if got, _ := p.SpotPrice(ctx, day("2024-01-03")); got != 468.8 {
		t.Errorf("SpotPrice(2024-01-03) = %v, want 468.8", got)
	}
	if client.calls != 2 {
		t.Errorf("client calls = %d, want 2 (one retry, then cached)", client.calls)
	}

	written, err := sink.ReadBars(ctx, "SPY", "us", day("2024-01-01"), day("2024-12-31"))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(written) != 2 || written[0].Close != 472.6 {
		t.Errorf("sink bars = %+v, want both fetched bars in order", written)
	}
}

func TestAlpacaProviderFetchBars(t *testing.T) {
	client := &fakeBarsClient{bars: []alpacamd.Bar{
		{Timestamp: time.Date(2024, 2, 2, 5, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: time.Date(2024, 2, 1, 5, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.2, Volume: 12},
	}}
	p := NewAlpacaProviderWithClient(client, AlpacaConfig{Symbol: "qqq"})

	bars, err := p.FetchBars(context.Background(), day("2024-02-01"), day("2024-02-29"))
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("FetchBars returned %d bars, want 2", len(bars))
	}
	if bars[0].Symbol != "QQQ" || bars[0].Close != 1.2 || bars[1].Volume != 10 {
		t.Errorf("bars = %+v, want QQQ bars sorted by time", bars)
	}
}

func TestAlpacaProviderGivesUp(t *testing.T) {
	client := &fakeBarsClient{failures: 10}
	p := NewAlpacaProviderWithClient(client, AlpacaConfig{Symbol: "SPY"})
	p.backoff = time.Millisecond

	if _, err := p.SpotPrice(context.Background(), day("2024-01-02")); err == nil {
		t.Fatal("SpotPrice succeeded against a failing API")
	}
	if client.calls != fetchAttempts {
		t.Errorf("client calls = %d, want %d", client.calls, fetchAttempts)
	}
}

func TestSourceNewProvider(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	tests := []struct {
		src     Source
		want    string
		wantErr bool
	}{
		{Source{StartPrice: 100, DailyVol: 0.01}, "*marketdata.RandomWalk", false},
		{Source{Kind: SourceParquet, Store: ps, Market: "us", Symbol: "SPY"}, "*marketdata.BarProvider", false},
		{Source{Kind: SourceParquet}, "", true},
		{Source{Kind: SourceAlpaca, Symbol: "SPY", Store: ps}, "*marketdata.AlpacaProvider", false},
		{Source{Kind: "ftp"}, "", true},
	}
	for _, tt := range tests {
		p, err := tt.src.NewProvider()
		if (err != nil) != tt.wantErr {
			t.Errorf("NewProvider(%q) error = %v, wantErr %v", tt.src.Kind, err, tt.wantErr)
			continue
		}
		if err == nil && fmt.Sprintf("%T", p) != tt.want {
			t.Errorf("NewProvider(%q) = %T, want %s", tt.src.Kind, p, tt.want)
		}
	}

	a, _ := Source{StartPrice: 100, DailyVol: 0.01, Seed: 5}.NewProvider()
	b, _ := Source{StartPrice: 100, DailyVol: 0.01, Seed: 5}.NewProvider()
	if a == b {
		t.Error("NewProvider returned a shared provider")
	}
}
