package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for carhound.
type Config struct {
	Ingest  IngestConfig  `mapstructure:"ingest"  yaml:"ingest"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Sources SourcesConfig `mapstructure:"sources" yaml:"sources"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// IngestConfig controls the pagination loop and per-page fan-out.
type IngestConfig struct {
	Workers        int           `mapstructure:"workers"          yaml:"workers"`
	MaxPages       int           `mapstructure:"max_pages"        yaml:"max_pages"`
	PageDelay      time.Duration `mapstructure:"page_delay"       yaml:"page_delay"`
	EmptyPageLimit int           `mapstructure:"empty_page_limit" yaml:"empty_page_limit"`
	MaxRetries     int           `mapstructure:"max_retries"      yaml:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	MinBodySize    int           `mapstructure:"min_body_size"    yaml:"min_body_size"`
}

// FetcherConfig controls the request fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"` // http or browser
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled      bool     `mapstructure:"enabled"        yaml:"enabled"`
	Rotation     string   `mapstructure:"rotation"       yaml:"rotation"`
	URLs         []string `mapstructure:"urls"           yaml:"urls"`
	RotateOnFail bool     `mapstructure:"rotate_on_fail" yaml:"rotate_on_fail"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"` // mongo, jsonl, memory
	URI        string `mapstructure:"uri"         yaml:"uri"`
	Database   string `mapstructure:"database"    yaml:"database"`
	Collection string `mapstructure:"collection"  yaml:"collection"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
}

// SourcesConfig holds per-marketplace endpoints.
type SourcesConfig struct {
	AutoScout AutoScoutConfig `mapstructure:"autoscout24" yaml:"autoscout24"`
	Mobile    MobileConfig    `mapstructure:"mobile"      yaml:"mobile"`
}

// AutoScoutConfig configures the autoscout24 adapter. ListURL is the
// versioned _next/data pagination endpoint; SiteURL prefixes the relative
// listing URLs the feed returns.
type AutoScoutConfig struct {
	ListURL  string `mapstructure:"list_url"  yaml:"list_url"`
	SiteURL  string `mapstructure:"site_url"  yaml:"site_url"`
	SearchID string `mapstructure:"search_id" yaml:"search_id"`
}

// MobileConfig configures the mobile.de adapter.
type MobileConfig struct {
	SearchURL string `mapstructure:"search_url" yaml:"search_url"`
	SiteURL   string `mapstructure:"site_url"   yaml:"site_url"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			Workers:        5,
			MaxPages:       200,
			PageDelay:      1 * time.Second,
			EmptyPageLimit: 3,
			MaxRetries:     3,
			RetryBaseDelay: 1 * time.Second,
			RequestTimeout: 30 * time.Second,
			MinBodySize:    0,
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Proxy: ProxyConfig{
			Enabled:      false,
			Rotation:     "round_robin",
			RotateOnFail: true,
		},
		Storage: StorageConfig{
			Type:       "mongo",
			URI:        "mongodb://localhost:27017",
			Database:   "vehicle_marketplace",
			Collection: "vehicle_data",
			OutputPath: "./output/records.jsonl",
		},
		Sources: SourcesConfig{
			AutoScout: AutoScoutConfig{
				ListURL: "https://www.autoscout24.de/_next/data/as24-search-funnel_main/lst.json",
				SiteURL: "https://www.autoscout24.de",
			},
			Mobile: MobileConfig{
				SearchURL: "https://suchen.mobile.de/fahrzeuge/search.html",
				SiteURL:   "https://suchen.mobile.de",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
