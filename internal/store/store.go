package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/types"
)

// Store is the interface for all persistence backends. First writer wins:
// once a record exists under its unique id it is never modified, and a
// concurrent duplicate insert is benign.
type Store interface {
	// Exists reports whether a record is already persisted under the
	// (vehicle id, source) key.
	Exists(ctx context.Context, vehicleID, source string) (bool, error)

	// Upsert persists the record unless it already exists. It returns
	// whether the record was newly inserted; losing an insert race is not
	// an error.
	Upsert(ctx context.Context, rec *types.Record) (bool, error)

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// New creates the backend selected by the configuration.
func New(cfg *config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "mongo":
		return NewMongoStore(cfg.URI, cfg.Database, cfg.Collection, logger)
	case "jsonl":
		return NewJSONLStore(cfg.OutputPath, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// document flattens a record into the persisted shape. Scalar attributes
// and feature flags become top-level keys; the image list is stored as a
// JSON array string.
func document(rec *types.Record) map[string]any {
	doc := make(map[string]any, len(rec.Fields)+len(rec.Features)+5)
	doc["vehicle_id"] = rec.VehicleID
	doc["data_source"] = rec.Source
	if rec.ListingURL != "" {
		doc["listing_url"] = rec.ListingURL
	}
	for k, v := range rec.Fields {
		doc[k] = v
	}
	for name, has := range rec.Features {
		doc[name] = has
	}
	doc["images"] = rec.EncodedImages()
	doc["created_at"] = rec.FetchedAt
	return doc
}
