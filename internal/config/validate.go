package config

import (
	"fmt"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be >= 1, got %d", cfg.Ingest.Workers)
	}
	if cfg.Ingest.Workers > 100 {
		return fmt.Errorf("ingest.workers must be <= 100, got %d", cfg.Ingest.Workers)
	}
	if cfg.Ingest.MaxPages < 0 {
		return fmt.Errorf("ingest.max_pages must be >= 0, got %d", cfg.Ingest.MaxPages)
	}
	if cfg.Ingest.EmptyPageLimit < 1 {
		return fmt.Errorf("ingest.empty_page_limit must be >= 1, got %d", cfg.Ingest.EmptyPageLimit)
	}
	if cfg.Ingest.MaxRetries < 1 {
		return fmt.Errorf("ingest.max_retries must be >= 1, got %d", cfg.Ingest.MaxRetries)
	}
	if cfg.Ingest.RetryBaseDelay < 0 {
		return fmt.Errorf("ingest.retry_base_delay must be >= 0, got %s", cfg.Ingest.RetryBaseDelay)
	}
	if cfg.Ingest.RequestTimeout <= 0 {
		return fmt.Errorf("ingest.request_timeout must be > 0, got %s", cfg.Ingest.RequestTimeout)
	}
	if cfg.Ingest.MinBodySize < 0 {
		return fmt.Errorf("ingest.min_body_size must be >= 0, got %d", cfg.Ingest.MinBodySize)
	}

	switch cfg.Fetcher.Type {
	case "http", "browser":
	default:
		return fmt.Errorf("fetcher.type must be http or browser, got %q", cfg.Fetcher.Type)
	}

	switch cfg.Proxy.Rotation {
	case "round_robin", "random":
	default:
		return fmt.Errorf("proxy.rotation must be round_robin or random, got %q", cfg.Proxy.Rotation)
	}
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) == 0 {
		return fmt.Errorf("proxy.enabled is true but proxy.urls is empty")
	}

	switch cfg.Storage.Type {
	case "mongo":
		if cfg.Storage.URI == "" {
			return fmt.Errorf("storage.uri is required for mongo storage")
		}
		if cfg.Storage.Database == "" || cfg.Storage.Collection == "" {
			return fmt.Errorf("storage.database and storage.collection are required for mongo storage")
		}
	case "jsonl":
		if cfg.Storage.OutputPath == "" {
			return fmt.Errorf("storage.output_path is required for jsonl storage")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.type must be mongo, jsonl, or memory, got %q", cfg.Storage.Type)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}

	return nil
}
