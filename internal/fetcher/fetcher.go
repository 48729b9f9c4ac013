package fetcher

import (
	"context"
	"net/url"
	"time"
)

// Profile selects the header set sent with a request. Listing feeds are
// data APIs and expect XHR-style headers; detail pages are ordinary
// browser navigations.
type Profile int

const (
	// ProfileBrowser mimics a top-level page navigation.
	ProfileBrowser Profile = iota

	// ProfileAPI mimics an in-page data request (fetch/XHR).
	ProfileAPI
)

// Request describes one fetch target.
type Request struct {
	// URL is the target, without query parameters.
	URL string

	// Query parameters appended to the URL, if any.
	Query url.Values

	// Profile selects the header set.
	Profile Profile

	// Referer is sent when non-empty.
	Referer string

	// Timeout overrides the configured per-attempt timeout when > 0.
	Timeout time.Duration
}

// Target returns the full request URL including encoded query parameters.
func (r *Request) Target() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	return r.URL + "?" + r.Query.Encode()
}

// Response is the body of a successful fetch.
type Response struct {
	StatusCode int
	Body       []byte
	FinalURL   string
	Duration   time.Duration
	Attempts   int
}

// Fetcher retrieves a target with retry and backoff applied internally. A
// returned error is always terminal for the target: retries are exhausted
// or the context was cancelled.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// Counters receives request accounting from fetchers. Implementations must
// be safe for concurrent use; the run statistics satisfy this.
type Counters interface {
	// RequestSent is called once per attempt that goes on the wire.
	RequestSent()

	// RequestFailed is called once per target whose retries are exhausted.
	RequestFailed()
}

// nopCounters is used when no statistics sink is attached.
type nopCounters struct{}

func (nopCounters) RequestSent()   {}
func (nopCounters) RequestFailed() {}
