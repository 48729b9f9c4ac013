package source

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/fetcher"
	"github.com/carhound/carhound/internal/types"
)

// stubFetcher returns a canned body and records the last request.
type stubFetcher struct {
	body    []byte
	err     error
	lastReq *fetcher.Request
}

func (f *stubFetcher) Fetch(ctx context.Context, req *fetcher.Request) (*fetcher.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &fetcher.Response{StatusCode: 200, Body: f.body, Attempts: 1}, nil
}

func (f *stubFetcher) Close() error { return nil }
func (f *stubFetcher) Type() string { return "stub" }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

const autoscoutListBody = `{
  "pageProps": {
    "numberOfResults": 412,
    "numberOfPages": 21,
    "listings": [
      {"id": "l1", "url": "/angebote/l1"},
      {"id": "l2", "url": "/angebote/l2"}
    ]
  }
}`

func TestAutoScoutListPage(t *testing.T) {
	f := &stubFetcher{body: []byte(autoscoutListBody)}
	cfg := &config.AutoScoutConfig{
		ListURL:  "https://www.autoscout24.de/_next/data/build/lst.json",
		SiteURL:  "https://www.autoscout24.de",
		SearchID: "search-1",
	}
	s := NewAutoScout(cfg, f, ModeRecent, testLogger())

	result, err := s.ListPage(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.TotalPages != 21 || result.TotalItems != 412 {
		t.Errorf("unexpected pagination: pages=%d items=%d", result.TotalPages, result.TotalItems)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].String("id") != "l1" {
		t.Errorf("unexpected first item: %v", result.Items[0])
	}

	q := f.lastReq.Query
	if q.Get("page") != "3" {
		t.Errorf("expected page=3, got %q", q.Get("page"))
	}
	if q.Get("sort") != "age" {
		t.Errorf("expected newest-first sort in recent mode, got %q", q.Get("sort"))
	}
	if q.Get("search_id") != "search-1" {
		t.Errorf("expected search id forwarded, got %q", q.Get("search_id"))
	}
	if f.lastReq.Profile != fetcher.ProfileAPI {
		t.Error("expected API profile for the listing feed")
	}
}

func TestAutoScoutListPageBadPayload(t *testing.T) {
	cfg := &config.AutoScoutConfig{ListURL: "https://example.com/lst.json"}

	for _, body := range []string{"not json", `{"other": true}`} {
		s := NewAutoScout(cfg, &stubFetcher{body: []byte(body)}, ModeFull, testLogger())
		_, err := s.ListPage(context.Background(), 1)
		var pe *types.ParseError
		if !errors.As(err, &pe) {
			t.Errorf("body %q: expected *types.ParseError, got %v", body, err)
		}
	}
}

const autoscoutDetailBody = `<html><head>
<script id="__NEXT_DATA__" type="application/json">
{"props": {"pageProps": {"listingDetails": {"vehicle": {"make": "Audi"}}}}}
</script>
</head><body></body></html>`

func TestAutoScoutFetchDetail(t *testing.T) {
	f := &stubFetcher{body: []byte(autoscoutDetailBody)}
	cfg := &config.AutoScoutConfig{SiteURL: "https://www.autoscout24.de"}
	s := NewAutoScout(cfg, f, ModeFull, testLogger())

	rec := types.NewRecord("autoscout24")
	rec.VehicleID = "l1"
	rec.ListingURL = "https://www.autoscout24.de/angebote/l1"

	detail, err := s.FetchDetail(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := detail.Path("vehicle").String("make"); got != "Audi" {
		t.Errorf("unexpected detail payload: %v", detail)
	}
}

func TestAutoScoutFetchDetailNoScript(t *testing.T) {
	f := &stubFetcher{body: []byte("<html><body>blocked</body></html>")}
	s := NewAutoScout(&config.AutoScoutConfig{}, f, ModeFull, testLogger())

	rec := types.NewRecord("autoscout24")
	rec.VehicleID = "l1"
	rec.ListingURL = "https://example.com/l1"

	_, err := s.FetchDetail(context.Background(), rec)
	var pe *types.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *types.ParseError, got %v", err)
	}
}

const mobileListBody = `<html><head>
<script>
window.__INITIAL_STATE__ = {"search": {"srp": {"data": {"searchResults": {
  "numResultsTotal": 1500,
  "numPages": 50,
  "items": [
    {"type": "ad", "id": 111, "relativeUrl": "/fahrzeuge/details.html?id=111"},
    {"type": "topAd", "id": 999},
    {"type": "ad", "id": 222, "relativeUrl": "/fahrzeuge/details.html?id=222"}
  ]
}}}}};
window.__PUBLIC_CONFIG__ = {"locale": "de"};
</script>
</head><body></body></html>`

func TestMobileListPage(t *testing.T) {
	f := &stubFetcher{body: []byte(mobileListBody)}
	cfg := &config.MobileConfig{
		SearchURL: "https://suchen.mobile.de/fahrzeuge/search.html",
		SiteURL:   "https://suchen.mobile.de",
	}
	s := NewMobile(cfg, f, ModeRecent, testLogger())

	result, err := s.ListPage(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.TotalPages != 50 || result.TotalItems != 1500 {
		t.Errorf("unexpected pagination: pages=%d items=%d", result.TotalPages, result.TotalItems)
	}
	// Teaser entries are filtered; only real ads remain.
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 ads, got %d", len(result.Items))
	}
	if result.Items[0].String("id") != "111" {
		t.Errorf("unexpected first ad: %v", result.Items[0])
	}

	q := f.lastReq.Query
	if q.Get("pageNumber") != "2" {
		t.Errorf("expected pageNumber=2, got %q", q.Get("pageNumber"))
	}
	if q.Get("sb") != "doc" {
		t.Errorf("expected newest-first sort in recent mode, got %q", q.Get("sb"))
	}
}

const mobileDetailBody = `<html><head>
<script>
window.__INITIAL_STATE__ = {"search": {"vip": {"ads": {"111": {"data": {"ad": {
  "make": "BMW", "model": "320d"
}}}}}}};
window.__PUBLIC_CONFIG__ = {};
</script>
</head><body></body></html>`

func TestMobileFetchDetail(t *testing.T) {
	f := &stubFetcher{body: []byte(mobileDetailBody)}
	cfg := &config.MobileConfig{SiteURL: "https://suchen.mobile.de"}
	s := NewMobile(cfg, f, ModeFull, testLogger())

	rec := types.NewRecord("mobile")
	rec.VehicleID = "111"
	rec.ListingURL = "https://suchen.mobile.de/fahrzeuge/details.html?id=111"

	detail, err := s.FetchDetail(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := detail.String("make"); got != "BMW" {
		t.Errorf("unexpected detail payload: %v", detail)
	}
}

func TestMobileFetchDetailUnknownID(t *testing.T) {
	f := &stubFetcher{body: []byte(mobileDetailBody)}
	s := NewMobile(&config.MobileConfig{}, f, ModeFull, testLogger())

	rec := types.NewRecord("mobile")
	rec.VehicleID = "404"
	rec.ListingURL = "https://example.com/404"

	_, err := s.FetchDetail(context.Background(), rec)
	var pe *types.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *types.ParseError, got %v", err)
	}
}

func TestMobileListPageNoState(t *testing.T) {
	f := &stubFetcher{body: []byte("<html><body>captcha</body></html>")}
	s := NewMobile(&config.MobileConfig{SearchURL: "https://example.com"}, f, ModeFull, testLogger())

	_, err := s.ListPage(context.Background(), 1)
	var pe *types.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *types.ParseError, got %v", err)
	}
}
