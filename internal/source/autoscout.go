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

	"github.com/antchfx/htmlquery"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/fetcher"
	"github.com/carhound/carhound/internal/types"
)

// AutoScout adapts the autoscout24 marketplace. The listing feed is a bare
// JSON endpoint (the site's Next.js data route); detail pages are HTML
// documents carrying the full listing state in a __NEXT_DATA__ script tag.
type AutoScout struct {
	cfg     *config.AutoScoutConfig
	fetcher fetcher.Fetcher
	mode    Mode
	logger  *slog.Logger
}

// NewAutoScout creates the autoscout24 adapter.
func NewAutoScout(cfg *config.AutoScoutConfig, f fetcher.Fetcher, mode Mode, logger *slog.Logger) *AutoScout {
	return &AutoScout{
		cfg:     cfg,
		fetcher: f,
		mode:    mode,
		logger:  logger.With("component", "autoscout_source"),
	}
}

// Name identifies the marketplace.
func (s *AutoScout) Name() string { return "autoscout24" }

// listEnvelope is the shape of the pagination endpoint's response.
type listEnvelope struct {
	PageProps *struct {
		NumberOfResults int              `json:"numberOfResults"`
		NumberOfPages   int              `json:"numberOfPages"`
		Listings        []map[string]any `json:"listings"`
	} `json:"pageProps"`
}

// ListPage fetches one page of the listing feed.
func (s *AutoScout) ListPage(ctx context.Context, page int) (*PageResult, error) {
	query := url.Values{
		"atype":           {"C"},
		"cy":              {"D"},
		"damaged_listing": {"exclude"},
		"desc":            {"1"},
		"ocs_listing":     {"include"},
		"powertype":       {"kw"},
		"source":          {"listpage_pagination"},
		"ustate":          {"N,U"},
		"page":            {strconv.Itoa(page)},
	}
	if s.cfg.SearchID != "" {
		query.Set("search_id", s.cfg.SearchID)
	}
	switch s.mode {
	case ModeRecent:
		query.Set("sort", "age") // newest listings first
	default:
		query.Set("sort", "standard")
	}

	resp, err := s.fetcher.Fetch(ctx, &fetcher.Request{
		URL:     s.cfg.ListURL,
		Query:   query,
		Profile: fetcher.ProfileAPI,
		Referer: s.cfg.SiteURL,
	})
	if err != nil {
		return nil, err
	}

	var envelope listEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, &types.ParseError{Source: s.Name(), URL: s.cfg.ListURL, Err: err}
	}
	if envelope.PageProps == nil {
		return nil, &types.ParseError{Source: s.Name(), URL: s.cfg.ListURL, Err: errors.New("response has no pageProps")}
	}

	items := make([]types.RawItem, 0, len(envelope.PageProps.Listings))
	for _, l := range envelope.PageProps.Listings {
		items = append(items, types.RawItem(l))
	}

	return &PageResult{
		Items:      items,
		Page:       page,
		TotalPages: envelope.PageProps.NumberOfPages,
		TotalItems: envelope.PageProps.NumberOfResults,
	}, nil
}

// FetchDetail fetches a detail page and extracts the listing state from
// its __NEXT_DATA__ script tag.
func (s *AutoScout) FetchDetail(ctx context.Context, rec *types.Record) (types.RawItem, error) {
	resp, err := s.fetcher.Fetch(ctx, &fetcher.Request{
		URL:     rec.ListingURL,
		Profile: fetcher.ProfileBrowser,
	})
	if err != nil {
		return nil, err
	}

	doc, err := htmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &types.ParseError{Source: s.Name(), URL: rec.ListingURL, Err: err}
	}

	node := htmlquery.FindOne(doc, `//script[@id='__NEXT_DATA__']`)
	if node == nil {
		return nil, &types.ParseError{Source: s.Name(), URL: rec.ListingURL, Err: errors.New("no __NEXT_DATA__ script")}
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(htmlquery.InnerText(node)), &state); err != nil {
		return nil, &types.ParseError{Source: s.Name(), URL: rec.ListingURL, Err: err}
	}

	details := types.RawItem(state).Path("props", "pageProps", "listingDetails")
	if details == nil {
		return nil, &types.ParseError{
			Source: s.Name(),
			URL:    rec.ListingURL,
			Err:    fmt.Errorf("no listingDetails for id %s", rec.VehicleID),
		}
	}

	return details, nil
}
