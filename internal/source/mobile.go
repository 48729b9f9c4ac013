package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/fetcher"
	"github.com/carhound/carhound/internal/types"
)

const initialStateMarker = "__INITIAL_STATE__"

// Mobile adapts the mobile.de marketplace. Both the search results and the
// detail pages are HTML documents whose data lives in an inline script
// assigning window.__INITIAL_STATE__.
type Mobile struct {
	cfg     *config.MobileConfig
	fetcher fetcher.Fetcher
	mode    Mode
	logger  *slog.Logger
}

// NewMobile creates the mobile.de adapter.
func NewMobile(cfg *config.MobileConfig, f fetcher.Fetcher, mode Mode, logger *slog.Logger) *Mobile {
	return &Mobile{
		cfg:     cfg,
		fetcher: f,
		mode:    mode,
		logger:  logger.With("component", "mobile_source"),
	}
}

// Name identifies the marketplace.
func (s *Mobile) Name() string { return "mobile" }

// ListPage fetches one page of search results.
func (s *Mobile) ListPage(ctx context.Context, page int) (*PageResult, error) {
	query := url.Values{
		"dam":             {"false"},
		"isSearchRequest": {"true"},
		"od":              {"down"},
		"pageNumber":      {strconv.Itoa(page)},
		"ref":             {"srpNextPage"},
		"s":               {"Car"},
		"vc":              {"Car"},
	}
	switch s.mode {
	case ModeRecent:
		query.Set("sb", "doc") // sort by date of creation, newest first
	default:
		query.Set("sb", "rel")
	}

	resp, err := s.fetcher.Fetch(ctx, &fetcher.Request{
		URL:     s.cfg.SearchURL,
		Query:   query,
		Profile: fetcher.ProfileBrowser,
		Referer: s.cfg.SiteURL,
	})
	if err != nil {
		return nil, err
	}

	state, err := s.extractInitialState(resp.Body, s.cfg.SearchURL)
	if err != nil {
		return nil, err
	}

	results := state.Path("search", "srp", "data", "searchResults")
	if results == nil {
		return nil, &types.ParseError{Source: s.Name(), URL: s.cfg.SearchURL, Err: errors.New("state has no searchResults")}
	}

	totalItems, _ := asInt(results["numResultsTotal"])
	totalPages, _ := asInt(results["numPages"])

	var items []types.RawItem
	for _, entry := range results.List("items") {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := types.RawItem(m)
		// Result pages interleave ads with teaser/banner entries.
		if item.String("type") != "ad" {
			continue
		}
		items = append(items, item)
	}

	return &PageResult{
		Items:      items,
		Page:       page,
		TotalPages: totalPages,
		TotalItems: totalItems,
	}, nil
}

// FetchDetail fetches a detail page and extracts the ad payload for the
// record's listing id.
func (s *Mobile) FetchDetail(ctx context.Context, rec *types.Record) (types.RawItem, error) {
	resp, err := s.fetcher.Fetch(ctx, &fetcher.Request{
		URL:     rec.ListingURL,
		Profile: fetcher.ProfileBrowser,
		Referer: s.cfg.SiteURL,
	})
	if err != nil {
		return nil, err
	}

	state, err := s.extractInitialState(resp.Body, rec.ListingURL)
	if err != nil {
		return nil, err
	}

	ad := state.Path("search", "vip", "ads", rec.VehicleID, "data", "ad")
	if ad == nil {
		return nil, &types.ParseError{
			Source: s.Name(),
			URL:    rec.ListingURL,
			Err:    fmt.Errorf("no ad data for id %s", rec.VehicleID),
		}
	}

	return ad, nil
}

// extractInitialState locates the inline script assigning
// window.__INITIAL_STATE__ and decodes the JSON object it carries. The
// assignment is followed in the same script by window.__PUBLIC_CONFIG__,
// which delimits the object.
func (s *Mobile) extractInitialState(body []byte, pageURL string) (types.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &types.ParseError{Source: s.Name(), URL: pageURL, Err: err}
	}

	var raw string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(text, initialStateMarker) {
			return true
		}
		raw = text
		return false
	})

	if raw == "" {
		return nil, &types.ParseError{
			Source: s.Name(),
			URL:    pageURL,
			Err:    errors.New("no " + initialStateMarker + " script"),
		}
	}

	if idx := strings.Index(raw, "window.__PUBLIC_CONFIG__"); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "window."+initialStateMarker+" =")
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), ";"))

	var state map[string]any
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, &types.ParseError{Source: s.Name(), URL: pageURL, Err: err}
	}

	return types.RawItem(state), nil
}

// asInt renders a decoded JSON number as an int.
func asInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
