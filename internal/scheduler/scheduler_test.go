package scheduler

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cseflow/config"
	"cseflow/internal/cse"
	"cseflow/internal/store"
)

// stubFetcher serves canned payloads per endpoint and records call counts.
type stubFetcher struct {
	payloads   map[string]interface{}
	errs       map[string]error
	info       map[string]interface{}
	fetchCalls map[string]int
	infoCalls  []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		payloads:   make(map[string]interface{}),
		errs:       make(map[string]error),
		info:       make(map[string]interface{}),
		fetchCalls: make(map[string]int),
	}
}

func (f *stubFetcher) Fetch(_ context.Context, endpoint string) (interface{}, error) {
	f.fetchCalls[endpoint]++
	if err, ok := f.errs[endpoint]; ok {
		return nil, err
	}
	payload, ok := f.payloads[endpoint]
	if !ok {
		return nil, fmt.Errorf("no payload for %s", endpoint)
	}
	return payload, nil
}

func (f *stubFetcher) CompanyInfo(_ context.Context, symbol string) (interface{}, error) {
	f.infoCalls = append(f.infoCalls, symbol)
	payload, ok := f.info[symbol]
	if !ok {
		return nil, fmt.Errorf("no info for %s", symbol)
	}
	return payload, nil
}

func testConfig(dataDir string) *config.Config {
	cfg := &config.Config{}
	cfg.Polling.Interval = time.Minute
	cfg.Polling.RetryDelay = time.Minute
	cfg.Polling.ClosedInterval = time.Millisecond
	cfg.Polling.RequestDelay = time.Microsecond
	cfg.Market.OpenHour = 9
	cfg.Market.CloseHour = 14
	cfg.Market.CloseMinute = 35
	cfg.Refresh.Hour = 9
	cfg.Refresh.Minute = 5
	cfg.Refresh.Window = 10 * time.Minute
	cfg.Source.Endpoints = []string{
		cse.EndpointMarketStatus,
		cse.EndpointMarketSummary,
		cse.EndpointSharePrices,
		cse.EndpointTopGainers,
		cse.EndpointTopLosers,
		cse.EndpointSectors,
	}
	cfg.Storage.DataDir = dataDir
	cfg.Storage.ReferenceDir = "reference"
	return cfg
}

func newTestScheduler(t *testing.T, fetcher cse.Fetcher, now time.Time) (*Scheduler, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)
	return New(cfg, Options{
		Fetcher:   fetcher,
		Series:    store.NewTimeSeries(dir, nil),
		Reference: store.NewReference(dir, cfg.Storage.ReferenceDir, nil),
		Now:       func() time.Time { return now },
	}), dir
}

func priceList(symbols ...string) map[string]interface{} {
	records := make([]interface{}, 0, len(symbols))
	for _, sym := range symbols {
		records = append(records, map[string]interface{}{
			"symbol": sym,
			"name":   sym + " PLC",
			"sector": "Banks",
		})
	}
	return map[string]interface{}{"reqTodaySharePrice": records}
}

func fillPayloads(f *stubFetcher) {
	f.payloads[cse.EndpointMarketStatus] = map[string]interface{}{"status": "Regular Trading"}
	f.payloads[cse.EndpointMarketSummary] = map[string]interface{}{
		"reqMarketSummery": map[string]interface{}{
			"aspi": map[string]interface{}{"value": 12500.5},
			"snp":  map[string]interface{}{"value": 3600.25},
		},
	}
	f.payloads[cse.EndpointSharePrices] = priceList("LOLC.N0000", "COMB.N0000")
	f.payloads[cse.EndpointTopGainers] = []interface{}{
		map[string]interface{}{"symbol": "LOLC.N0000"},
	}
	f.payloads[cse.EndpointTopLosers] = []interface{}{
		map[string]interface{}{"symbol": "COMB.N0000"},
	}
	f.payloads[cse.EndpointSectors] = []interface{}{
		map[string]interface{}{"sectorName": "Banks", "sectorIndex": 101.5},
	}
}

func TestMarketOpen(t *testing.T) {
	m := testConfig(t.TempDir()).Market
	tests := []struct {
		name string
		when time.Time
		want bool
	}{
		{"monday at open", time.Date(2026, 9, 7, 9, 0, 0, 0, SLST), true},
		{"monday before open", time.Date(2026, 9, 7, 8, 59, 0, 0, SLST), false},
		{"monday last minute", time.Date(2026, 9, 7, 14, 34, 59, 0, SLST), true},
		{"monday at close", time.Date(2026, 9, 7, 14, 35, 0, 0, SLST), false},
		{"friday midday", time.Date(2026, 9, 4, 12, 0, 0, 0, SLST), true},
		{"saturday midday", time.Date(2026, 9, 5, 12, 0, 0, 0, SLST), false},
		{"sunday midday", time.Date(2026, 9, 6, 12, 0, 0, 0, SLST), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := marketOpen(m, tt.when); got != tt.want {
				t.Errorf("marketOpen(%s) = %v, want %v", tt.when, got, tt.want)
			}
		})
	}
}

func TestInRefreshWindow(t *testing.T) {
	r := testConfig(t.TempDir()).Refresh
	tests := []struct {
		name string
		when time.Time
		want bool
	}{
		{"window start", time.Date(2026, 9, 7, 9, 5, 0, 0, SLST), true},
		{"window last minute", time.Date(2026, 9, 7, 9, 14, 59, 0, SLST), true},
		{"window end", time.Date(2026, 9, 7, 9, 15, 0, 0, SLST), false},
		{"before window", time.Date(2026, 9, 7, 9, 4, 59, 0, SLST), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inRefreshWindow(r, tt.when); got != tt.want {
				t.Errorf("inRefreshWindow(%s) = %v, want %v", tt.when, got, tt.want)
			}
		})
	}
}

func TestCycleIsolatesSourceFailures(t *testing.T) {
	fetcher := newStubFetcher()
	fillPayloads(fetcher)
	fetcher.errs[cse.EndpointMarketSummary] = fmt.Errorf("http 502: bad gateway")

	now := time.Date(2026, 9, 7, 10, 30, 0, 0, SLST)
	s, dir := newTestScheduler(t, fetcher, now)
	s.runCycle(context.Background())

	for _, source := range s.cfg.Source.Endpoints {
		if fetcher.fetchCalls[source] != 1 {
			t.Errorf("endpoint %s fetched %d times, want 1", source, fetcher.fetchCalls[source])
		}
	}
	if _, err := os.Stat(filepath.Join(dir, cse.EndpointMarketStatus)); err != nil {
		t.Errorf("marketStatus artifacts missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, cse.EndpointMarketSummary)); !os.IsNotExist(err) {
		t.Errorf("failed source must not leave artifacts, stat err = %v", err)
	}
}

func TestReferenceRefreshOncePerDay(t *testing.T) {
	fetcher := newStubFetcher()
	fillPayloads(fetcher)

	now := time.Date(2026, 9, 7, 9, 6, 0, 0, SLST)
	s, _ := newTestScheduler(t, fetcher, now)

	s.runCycle(context.Background())
	if !s.refreshedToday {
		t.Fatal("first in-window cycle did not refresh the reference")
	}
	refPath := s.reference.Path()
	if _, err := os.Stat(refPath); err != nil {
		t.Fatalf("reference table missing after refresh: %v", err)
	}

	// A later cycle in the same window must not rebuild.
	if err := os.Remove(refPath); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return now.Add(time.Minute) }
	s.runCycle(context.Background())
	if _, err := os.Stat(refPath); !os.IsNotExist(err) {
		t.Errorf("reference rebuilt twice in one day, stat err = %v", err)
	}
}

func TestReferenceRefreshDeferredWhenPriceFetchFails(t *testing.T) {
	fetcher := newStubFetcher()
	fillPayloads(fetcher)
	fetcher.errs[cse.EndpointSharePrices] = fmt.Errorf("http 502: bad gateway")

	now := time.Date(2026, 9, 7, 9, 6, 0, 0, SLST)
	s, _ := newTestScheduler(t, fetcher, now)
	s.runCycle(context.Background())

	if s.refreshedToday {
		t.Error("refresh must be deferred when the price list is missing")
	}
	if _, err := os.Stat(s.reference.Path()); !os.IsNotExist(err) {
		t.Errorf("reference table written without its inputs, stat err = %v", err)
	}
}

func TestRunClearsRefreshFlagWhenClosed(t *testing.T) {
	fetcher := newStubFetcher()
	now := time.Date(2026, 9, 5, 12, 0, 0, 0, SLST) // Saturday
	s, _ := newTestScheduler(t, fetcher, now)
	s.refreshedToday = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v, want context.DeadlineExceeded", err)
	}
	if s.refreshedToday {
		t.Error("closed-market pass did not clear the refresh flag")
	}
	if len(fetcher.fetchCalls) != 0 {
		t.Errorf("closed market must not fetch, got calls %v", fetcher.fetchCalls)
	}
}

func TestCycleCollectsCompaniesForLegacyOutputs(t *testing.T) {
	fetcher := newStubFetcher()
	fillPayloads(fetcher)
	// Duplicate row in the price list must not fetch the symbol twice.
	fetcher.payloads[cse.EndpointSharePrices] = priceList("LOLC.N0000", "COMB.N0000", "LOLC.N0000")
	fetcher.info["LOLC.N0000"] = map[string]interface{}{
		"reqSymbolInfo": map[string]interface{}{
			"symbol":          "LOLC.N0000",
			"name":            "LOLC HOLDINGS PLC",
			"lastTradedPrice": 512.25,
			"change":          4.5,
		},
	}
	fetcher.info["COMB.N0000"] = map[string]interface{}{
		"reqSymbolInfo": map[string]interface{}{
			"symbol":          "COMB.N0000",
			"name":            "COMMERCIAL BANK PLC",
			"lastTradedPrice": 101.0,
			"change":          -1.25,
		},
	}

	now := time.Date(2026, 9, 7, 10, 30, 0, 0, SLST)
	s, dir := newTestScheduler(t, fetcher, now)
	legacy, err := store.NewLegacy(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.legacy = legacy
	s.runCycle(context.Background())

	if len(fetcher.infoCalls) != 2 {
		t.Fatalf("company info fetched for %v, want 2 distinct symbols", fetcher.infoCalls)
	}

	f, err := os.Open(filepath.Join(dir, "cse_market_data.csv"))
	if err != nil {
		t.Fatalf("open csv history: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 { // header + two companies
		t.Fatalf("csv has %d rows, want 3", len(rows))
	}
	if rows[1][1] != "LOLC.N0000" || rows[2][1] != "COMB.N0000" {
		t.Errorf("unexpected symbol order: %q, %q", rows[1][1], rows[2][1])
	}
}
