package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/normalize"
	"github.com/carhound/carhound/internal/source"
	"github.com/carhound/carhound/internal/store"
	"github.com/carhound/carhound/internal/types"
)

// Driver runs the ingestion loop for one marketplace: page through the
// listing feed, fan each page's items out to a bounded worker group, and
// advance only once the whole page is settled. Pages are paced by a rate
// limiter so pagination never outruns the configured page delay.
type Driver struct {
	cfg    *config.IngestConfig
	src    source.Source
	norm   normalize.Normalizer
	store  store.Store
	stats  *Stats
	logger *slog.Logger
}

// NewDriver wires a driver for one source.
func NewDriver(cfg *config.IngestConfig, src source.Source, norm normalize.Normalizer, st store.Store, stats *Stats, logger *slog.Logger) *Driver {
	return &Driver{
		cfg:    cfg,
		src:    src,
		norm:   norm,
		store:  st,
		stats:  stats,
		logger: logger.With("source", src.Name()),
	}
}

// Run pages through the source until one of the stop conditions holds: the
// reported page count or the configured page cap is reached, a page fetch
// fails, a page arrives empty, or the configured number of consecutive
// pages yields nothing new.
func (d *Driver) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(d.cfg.PageDelay), 1)

	page := 1
	emptyStreak := 0

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		result, err := d.src.ListPage(ctx, page)
		if err != nil {
			if page == 1 {
				return err
			}
			d.logger.Error("page fetch failed, ending run", "page", page, "error", err)
			return nil
		}
		if len(result.Items) == 0 {
			d.logger.Info("empty page, ending run", "page", page)
			return nil
		}

		d.stats.PagesProcessed.Add(1)
		d.stats.ItemsSeen.Add(int64(len(result.Items)))
		d.logger.Info("processing page",
			"page", page,
			"items", len(result.Items),
			"total_pages", result.TotalPages,
		)

		// The group is a per-page barrier: workers never return an error,
		// so one bad listing cannot abort its siblings.
		var pageNew atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.cfg.Workers)
		for _, item := range result.Items {
			item := item
			g.Go(func() error {
				if d.processItem(gctx, item) {
					pageNew.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}

		if pageNew.Load() > 0 {
			emptyStreak = 0
		} else {
			emptyStreak++
			if emptyStreak >= d.cfg.EmptyPageLimit {
				d.logger.Info("no new listings on consecutive pages, ending run",
					"pages", emptyStreak,
				)
				return nil
			}
		}

		if result.TotalPages > 0 && page >= result.TotalPages {
			d.logger.Info("reached last page", "page", page)
			return nil
		}
		if page >= d.cfg.MaxPages {
			d.logger.Info("reached page cap", "page", page)
			return nil
		}
		page++
	}
}

// processItem carries one listing from raw payload to the store. It reports
// whether a new record was persisted. The duplicate check runs before the
// detail fetch so already known listings cost no extra request; a failed
// detail fetch downgrades the record to its search-result attributes rather
// than losing the listing.
func (d *Driver) processItem(ctx context.Context, raw types.RawItem) bool {
	rec, err := d.norm.SearchResult(raw)
	if err != nil {
		d.stats.Errors.Add(1)
		d.logger.Warn("unusable search result", "error", err)
		return false
	}

	exists, err := d.store.Exists(ctx, rec.VehicleID, rec.Source)
	if err != nil {
		d.stats.Errors.Add(1)
		d.logger.Error("existence check failed", "vehicle_id", rec.VehicleID, "error", err)
		return false
	}
	if exists {
		d.stats.Duplicates.Add(1)
		return false
	}

	detail, err := d.src.FetchDetail(ctx, rec)
	if err != nil {
		d.logger.Warn("detail fetch failed, keeping partial record",
			"vehicle_id", rec.VehicleID,
			"url", rec.ListingURL,
			"error", err,
		)
	} else {
		d.norm.EnrichDetail(rec, detail)
	}
	d.norm.Finalize(rec)

	inserted, err := d.store.Upsert(ctx, rec)
	if err != nil {
		d.stats.Errors.Add(1)
		d.logger.Error("persist failed", "vehicle_id", rec.VehicleID, "error", err)
		return false
	}
	if !inserted {
		d.stats.Duplicates.Add(1)
		return false
	}

	d.stats.Persisted.Add(1)
	d.logger.Debug("record persisted", "unique_id", rec.UniqueID())
	return true
}
