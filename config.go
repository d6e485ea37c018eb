package bookdl

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCatalogURL is the upstream location of the book catalog JSON.
const DefaultCatalogURL = "https://raw.githubusercontent.com/jbiaojerry/ebook-treasure-chest/main/docs/all-books.json"

// Config holds application configuration, loadable from a YAML file.
type Config struct {
	// Paths. Relative paths are resolved against Root.
	Root        string `yaml:"-"`
	DownloadDir string `yaml:"download_dir"`
	DataDir     string `yaml:"data_dir"`

	// Catalog source.
	CatalogURL string `yaml:"catalog_url"`

	// Concurrency. BrowserConcurrency caps simultaneous browser sessions;
	// DownloadConcurrency independently sizes the transfer worker pool.
	// AcquireFanout sizes the acquisition producer fan-out; zero derives it
	// from BrowserConcurrency. See AcquireFanoutSize.
	BrowserConcurrency  int `yaml:"browser_concurrency"`
	DownloadConcurrency int `yaml:"download_concurrency"`
	AcquireFanout       int `yaml:"acquire_fanout"`

	// QueueSize bounds the link queue between the two stages. It must stay
	// small relative to link lifetime so acquired links cannot pile up and
	// expire before a transfer worker picks them up.
	QueueSize int `yaml:"queue_size"`

	// Timeouts.
	BrowserTimeout  time.Duration `yaml:"browser_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// Retry policy. MaxRetries and RetryBackoff govern link acquisition
	// (exponential backoff); MaxDownloadRetries governs the transfer stage
	// independently (linear backoff).
	MaxRetries         int           `yaml:"max_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	MaxDownloadRetries int           `yaml:"max_download_retries"`

	// Pacing window between browser page visits, jittered to look human.
	RequestMinDelay time.Duration `yaml:"request_min_delay"`
	RequestMaxDelay time.Duration `yaml:"request_max_delay"`

	// Browser.
	Headless bool `yaml:"headless"`

	// Proxy source: an HTTP API returning proxy lists, or a local
	// line-delimited file. Mutually exclusive.
	ProxyAPIURL string `yaml:"proxy_api_url"`
	ProxyFile   string `yaml:"proxy_file"`

	// Filters and limits.
	ExcludeCategories []string `yaml:"exclude_categories"`
	MaxFileSizeMB     int64    `yaml:"max_file_size"` // 0 disables the cap

	// Extraction.
	ExtractFormats []string `yaml:"extract_formats"`
	KeepArchive    bool     `yaml:"keep_zip"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Root:                ".",
		DownloadDir:         "downloads",
		DataDir:             "data",
		CatalogURL:          DefaultCatalogURL,
		BrowserConcurrency:  3,
		DownloadConcurrency: 10,
		QueueSize:           20,
		BrowserTimeout:      30 * time.Second,
		DownloadTimeout:     300 * time.Second,
		MaxRetries:          3,
		RetryBackoff:        5 * time.Second,
		MaxDownloadRetries:  2,
		RequestMinDelay:     5 * time.Second,
		RequestMaxDelay:     15 * time.Second,
		Headless:            true,
		MaxFileSizeMB:       500,
		ExtractFormats:      []string{"epub"},
	}
}

// LoadConfig reads a YAML config file, filling unset fields with defaults.
// A missing path returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, WrapErrorf(err, EINVALID, "reading config %q", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, WrapErrorf(err, EINVALID, "parsing config %q", path)
	}
	cfg.Root = filepath.Dir(path)
	return cfg, nil
}

// AcquireFanoutSize returns the acquisition producer fan-out. It is always
// wider than BrowserConcurrency: producers spend much of their time in
// pacing and backoff waits holding no browser session, so an equal-sized
// fan-out would leave session slots idle. An explicit AcquireFanout wins
// only when it actually exceeds the session cap.
func (c *Config) AcquireFanoutSize() int {
	if c.AcquireFanout > c.BrowserConcurrency {
		return c.AcquireFanout
	}
	return c.BrowserConcurrency + 2
}

// DownloadPath returns the absolute download root.
func (c *Config) DownloadPath() string { return c.resolve(c.DownloadDir) }

// DataPath returns the absolute data directory.
func (c *Config) DataPath() string { return c.resolve(c.DataDir) }

// DBPath returns the state database location.
func (c *Config) DBPath() string { return filepath.Join(c.DataPath(), "state.db") }

// CatalogPath returns the local catalog JSON location.
func (c *Config) CatalogPath() string { return filepath.Join(c.DataPath(), "all-books.json") }

// EnsureDirs creates the download and data directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DownloadPath(), c.DataPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}
