package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/fetcher"
	"github.com/carhound/carhound/internal/ingest"
	"github.com/carhound/carhound/internal/normalize"
	"github.com/carhound/carhound/internal/source"
	"github.com/carhound/carhound/internal/store"
)

var (
	cfgFile     string
	verbose     bool
	mode        string
	workers     int
	maxPages    int
	pageDelay   string
	storageType string
	outputPath  string
	searchID    string
	fetcherType string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carhound",
		Short: "CarHound — vehicle marketplace ingestion",
		Long: `CarHound ingests vehicle listings from European marketplaces into a
deduplicated store. It pages through a marketplace's listing feed, fetches
per-listing detail pages, normalizes the payloads into a canonical record
and persists each listing exactly once.

Supported sources: autoscout24, mobile`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ingestCmd creates the "ingest" subcommand.
func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [source...]",
		Short: "Ingest listings from one or more marketplaces",
		Long: `Ingest listings from the named marketplaces (all configured sources when
none are given). Mode "full" walks the default listing order for a complete
backfill; mode "recent" walks newest-first and stops once consecutive pages
yield nothing new.`,
		RunE: runIngest,
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "full", "run mode: full or recent")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "concurrent detail workers per page (0 = config default)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page cap per source (0 = config default)")
	cmd.Flags().StringVar(&pageDelay, "page-delay", "", "delay between page fetches (e.g. 1s)")
	cmd.Flags().StringVar(&storageType, "storage", "", "storage backend: mongo, jsonl, memory")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path for the jsonl backend")
	cmd.Flags().StringVar(&searchID, "search-id", "", "autoscout24 saved-search id to page through")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type: http or browser")

	return cmd
}

// runIngest executes the ingest command.
func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(&cfg.Logging)

	runMode := source.Mode(mode)
	switch runMode {
	case source.ModeFull, source.ModeRecent:
	default:
		return fmt.Errorf("unknown mode %q (want full or recent)", mode)
	}

	names := args
	if len(names) == 0 {
		names = []string{"autoscout24", "mobile"}
	}

	stats := ingest.NewStats()

	f, err := newFetcher(cfg, stats, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()

	st, err := store.New(&cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting ingestion",
		"sources", names,
		"mode", runMode,
		"workers", cfg.Ingest.Workers,
		"storage", st.Name(),
	)

	for _, name := range names {
		src, norm, err := buildSource(name, cfg, f, runMode, logger)
		if err != nil {
			return err
		}

		driver := ingest.NewDriver(&cfg.Ingest, src, norm, st, stats, logger)
		if err := driver.Run(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("run interrupted", "source", name)
				break
			}
			logger.Error("run failed", "source", name, "error", err)
		}
	}

	logger.Info("ingestion complete", "stats", stats.Snapshot())
	fmt.Printf("\n%s\n", stats.Report())
	return nil
}

// buildSource wires the adapter and normalizer for a marketplace name.
func buildSource(name string, cfg *config.Config, f fetcher.Fetcher, m source.Mode, logger *slog.Logger) (source.Source, normalize.Normalizer, error) {
	switch name {
	case "autoscout24", "autoscout":
		src := source.NewAutoScout(&cfg.Sources.AutoScout, f, m, logger)
		return src, normalize.NewAutoScoutNormalizer(cfg.Sources.AutoScout.SiteURL), nil
	case "mobile", "mobile.de":
		src := source.NewMobile(&cfg.Sources.Mobile, f, m, logger)
		return src, normalize.NewMobileNormalizer(cfg.Sources.Mobile.SiteURL), nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q (want autoscout24 or mobile)", name)
	}
}

// newFetcher creates the configured fetcher implementation.
func newFetcher(cfg *config.Config, stats *ingest.Stats, logger *slog.Logger) (fetcher.Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "browser":
		return fetcher.NewBrowserFetcher(cfg, stats, logger, fetcher.WithStealth())
	default:
		return fetcher.NewHTTPFetcher(cfg, stats, logger)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("CarHound %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Ingest:\n")
			fmt.Printf("  Workers:           %d\n", cfg.Ingest.Workers)
			fmt.Printf("  Max Pages:         %d\n", cfg.Ingest.MaxPages)
			fmt.Printf("  Page Delay:        %s\n", cfg.Ingest.PageDelay)
			fmt.Printf("  Empty Page Limit:  %d\n", cfg.Ingest.EmptyPageLimit)
			fmt.Printf("  Max Retries:       %d\n", cfg.Ingest.MaxRetries)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Ingest.RequestTimeout)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Follow Redirects:  %v\n", cfg.Fetcher.FollowRedirects)
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Printf("\nProxy:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Proxy.Enabled)
			fmt.Printf("  Rotation:          %s\n", cfg.Proxy.Rotation)
			fmt.Printf("  Count:             %d\n", len(cfg.Proxy.URLs))
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  URI:               %s\n", cfg.Storage.URI)
			fmt.Printf("  Database:          %s\n", cfg.Storage.Database)
			fmt.Printf("  Collection:        %s\n", cfg.Storage.Collection)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nSources:\n")
			fmt.Printf("  autoscout24:       %s\n", cfg.Sources.AutoScout.ListURL)
			fmt.Printf("  mobile:            %s\n", cfg.Sources.Mobile.SearchURL)
			return nil
		},
	}
}

// setupLogger creates the structured logger from the logging configuration.
func setupLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	var out io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if workers > 0 {
		cfg.Ingest.Workers = workers
	}
	if maxPages > 0 {
		cfg.Ingest.MaxPages = maxPages
	}
	if pageDelay != "" {
		if d, err := time.ParseDuration(pageDelay); err == nil {
			cfg.Ingest.PageDelay = d
		}
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if searchID != "" {
		cfg.Sources.AutoScout.SearchID = searchID
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = fetcherType
	}
}
