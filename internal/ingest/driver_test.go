package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/source"
	"github.com/carhound/carhound/internal/store"
	"github.com/carhound/carhound/internal/types"
)

func testIngestConfig() *config.IngestConfig {
	return &config.IngestConfig{
		Workers:        4,
		MaxPages:       50,
		PageDelay:      time.Millisecond,
		EmptyPageLimit: 3,
		MaxRetries:     1,
	}
}

// stubSource serves canned pages and counts detail fetches.
type stubSource struct {
	pages       [][]types.RawItem
	totalPages  int
	listCalls   atomic.Int64
	detailCalls atomic.Int64
	detailErr   error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) ListPage(ctx context.Context, page int) (*source.PageResult, error) {
	s.listCalls.Add(1)
	var items []types.RawItem
	if page-1 < len(s.pages) {
		items = s.pages[page-1]
	}
	return &source.PageResult{
		Items:      items,
		Page:       page,
		TotalPages: s.totalPages,
	}, nil
}

func (s *stubSource) FetchDetail(ctx context.Context, rec *types.Record) (types.RawItem, error) {
	s.detailCalls.Add(1)
	if s.detailErr != nil {
		return nil, s.detailErr
	}
	return types.RawItem{"color": "blue"}, nil
}

// stubNormalizer lifts the raw id into a record and copies detail fields.
type stubNormalizer struct{}

func (stubNormalizer) Source() string { return "stub" }

func (stubNormalizer) SearchResult(raw types.RawItem) (*types.Record, error) {
	rec := types.NewRecord("stub")
	rec.VehicleID = raw.String("id")
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (stubNormalizer) EnrichDetail(rec *types.Record, detail types.RawItem) {
	for k, v := range detail {
		rec.Set(k, v)
	}
}

func (stubNormalizer) Finalize(rec *types.Record) {}

func pageOf(ids ...string) []types.RawItem {
	items := make([]types.RawItem, len(ids))
	for i, id := range ids {
		items[i] = types.RawItem{"id": id}
	}
	return items
}

func newTestDriver(src *stubSource, st store.Store, cfg *config.IngestConfig) (*Driver, *Stats) {
	stats := NewStats()
	logger := slog.New(slog.DiscardHandler)
	return NewDriver(cfg, src, stubNormalizer{}, st, stats, logger), stats
}

func TestDriverIngestsAllPages(t *testing.T) {
	src := &stubSource{
		pages: [][]types.RawItem{
			pageOf("a", "b", "c"),
			pageOf("d", "e"),
		},
		totalPages: 2,
	}
	st := store.NewMemoryStore()
	driver, stats := newTestDriver(src, st, testIngestConfig())

	if err := driver.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.Len() != 5 {
		t.Errorf("expected 5 records, got %d", st.Len())
	}
	if got := stats.PagesProcessed.Load(); got != 2 {
		t.Errorf("expected 2 pages, got %d", got)
	}
	if got := stats.Persisted.Load(); got != 5 {
		t.Errorf("expected 5 persisted, got %d", got)
	}
	if got := src.detailCalls.Load(); got != 5 {
		t.Errorf("expected 5 detail fetches, got %d", got)
	}

	doc, ok := st.Get("a_stub")
	if !ok {
		t.Fatal("expected record a_stub")
	}
	if doc["color"] != "blue" {
		t.Errorf("expected detail field merged, got %v", doc["color"])
	}
}

func TestDriverSkipsDetailForKnownListings(t *testing.T) {
	src := &stubSource{
		pages: [][]types.RawItem{
			pageOf("a", "b"),
			pageOf("c", "d"),
		},
		totalPages: 2,
	}
	st := store.NewMemoryStore()

	// Pre-seed the first page's listings.
	for _, id := range []string{"a", "b"} {
		rec := types.NewRecord("stub")
		rec.VehicleID = id
		if _, err := st.Upsert(context.Background(), rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	driver, stats := newTestDriver(src, st, testIngestConfig())
	if err := driver.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Known listings are detected before their detail pages are requested.
	if got := src.detailCalls.Load(); got != 2 {
		t.Errorf("expected detail fetches only for new listings, got %d", got)
	}
	if got := stats.Duplicates.Load(); got != 2 {
		t.Errorf("expected 2 duplicates, got %d", got)
	}
	if got := stats.Persisted.Load(); got != 2 {
		t.Errorf("expected 2 persisted, got %d", got)
	}
}

func TestDriverStopsAfterConsecutiveKnownPages(t *testing.T) {
	pages := [][]types.RawItem{
		pageOf("a"), pageOf("b"), pageOf("c"), pageOf("d"), pageOf("e"),
	}
	src := &stubSource{pages: pages, totalPages: len(pages)}
	st := store.NewMemoryStore()

	// Everything is already known.
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		rec := types.NewRecord("stub")
		rec.VehicleID = id
		if _, err := st.Upsert(context.Background(), rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	driver, stats := newTestDriver(src, st, testIngestConfig())
	if err := driver.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Three consecutive pages without anything new end the run.
	if got := src.listCalls.Load(); got != 3 {
		t.Errorf("expected 3 pages fetched, got %d", got)
	}
	if got := stats.Persisted.Load(); got != 0 {
		t.Errorf("expected nothing persisted, got %d", got)
	}
	if got := src.detailCalls.Load(); got != 0 {
		t.Errorf("expected no detail fetches, got %d", got)
	}
}

func TestDriverKeepsPartialRecordOnDetailFailure(t *testing.T) {
	src := &stubSource{
		pages:      [][]types.RawItem{pageOf("a")},
		totalPages: 1,
		detailErr:  errors.New("detail page unavailable"),
	}
	st := store.NewMemoryStore()
	driver, stats := newTestDriver(src, st, testIngestConfig())

	if err := driver.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := stats.Persisted.Load(); got != 1 {
		t.Fatalf("expected partial record persisted, got %d", got)
	}
	doc, ok := st.Get("a_stub")
	if !ok {
		t.Fatal("expected record a_stub")
	}
	if _, hasColor := doc["color"]; hasColor {
		t.Error("expected no detail fields on partial record")
	}
}

func TestDriverHonorsPageCap(t *testing.T) {
	pages := make([][]types.RawItem, 10)
	for i := range pages {
		pages[i] = pageOf(string(rune('a' + i)))
	}
	src := &stubSource{pages: pages, totalPages: 10}
	st := store.NewMemoryStore()

	cfg := testIngestConfig()
	cfg.MaxPages = 2
	driver, stats := newTestDriver(src, st, cfg)

	if err := driver.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := stats.PagesProcessed.Load(); got != 2 {
		t.Errorf("expected 2 pages, got %d", got)
	}
}

func TestDriverEndsOnEmptyPage(t *testing.T) {
	src := &stubSource{
		pages:      [][]types.RawItem{pageOf("a"), nil, pageOf("c")},
		totalPages: 3,
	}
	st := store.NewMemoryStore()
	driver, stats := newTestDriver(src, st, testIngestConfig())

	if err := driver.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := stats.PagesProcessed.Load(); got != 1 {
		t.Errorf("expected 1 page processed, got %d", got)
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 record, got %d", st.Len())
	}
}
