// Package source holds the per-marketplace adapters. An adapter knows how
// to turn a page index into a request, how to decode the response (bare
// JSON or JSON embedded in an HTML document) into raw listing items plus
// pagination metadata, and how to fetch the detail payload for one listing.
package source

import (
	"context"

	"github.com/carhound/carhound/internal/types"
)

// Mode selects the listing order of a run.
type Mode string

const (
	// ModeFull walks the default listing order for a complete backfill.
	ModeFull Mode = "full"

	// ModeRecent walks the feed sorted by listing age, newest first, for
	// incremental runs that stop once they reach already-ingested data.
	ModeRecent Mode = "recent"
)

// PageResult is one decoded page of the listing feed.
type PageResult struct {
	// Items are the raw listing payloads of this page.
	Items []types.RawItem

	// Page is the 1-based page index this result corresponds to.
	Page int

	// TotalPages is the source-reported page count, 0 if unreported.
	TotalPages int

	// TotalItems is the source-reported result count, 0 if unreported.
	TotalItems int
}

// Source is a marketplace adapter.
type Source interface {
	// Name identifies the marketplace; it becomes the record's data_source.
	Name() string

	// ListPage fetches and decodes one page of the listing feed.
	ListPage(ctx context.Context, page int) (*PageResult, error)

	// FetchDetail fetches and decodes the detail payload for a listing
	// discovered on a page. The record carries the detail URL and id.
	FetchDetail(ctx context.Context, rec *types.Record) (types.RawItem, error)
}
