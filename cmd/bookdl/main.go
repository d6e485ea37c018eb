package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/mjarosz/bookdl"
	"github.com/mjarosz/bookdl/catalog"
	"github.com/mjarosz/bookdl/pipeline"
	"github.com/mjarosz/bookdl/proxy"
	"github.com/mjarosz/bookdl/rod"
	"github.com/mjarosz/bookdl/sqlite"
	"github.com/mjarosz/bookdl/transfer"
)

func main() {
	ctx := context.Background()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Config file path. Set before calling Run().
	ConfigPath string

	// SQLite database backing the record store.
	DB *sqlite.DB

	// Browser-driven link fetcher, wired only for the download command.
	Fetcher bookdl.LinkFetcher

	// Record store for end-to-end testing.
	Records bookdl.RecordStore
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		ConfigPath: defaultConfigPath(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.Fetcher != nil {
		if err := m.Fetcher.Close(); err != nil {
			return err
		}
	}
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("bookdl"),
		kong.Description("Bulk ebook downloader for ctfile-hosted book catalogs."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'bookdl --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	if cli.Config != "" {
		m.ConfigPath = cli.Config
	}
	cfg, err := bookdl.LoadConfig(m.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, cli, cmd)

	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Progress output owns stdout during a download run, so logs go to
	// stderr and stay quiet unless --verbose is set.
	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	// Open database
	m.DB = sqlite.NewDB(cfg.DBPath())
	if err := m.DB.Open(); err != nil {
		fmt.Fprintf(stderr, "Hint: check that %q is writable\n", cfg.DataPath())
		return fmt.Errorf("failed to open database at %q: %w", cfg.DBPath(), err)
	}
	defer m.Close()

	m.Records = sqlite.NewRecordStore(m.DB)
	deps.Config = cfg
	deps.Logger = logger
	deps.Records = m.Records
	deps.Catalog = catalog.NewFetcher(catalog.WithLogger(logger))

	// The browser and the pipeline are only wired for the download
	// command; everything else works from the catalog and the database.
	if cmd == "download" {
		pool := proxyPool(cfg, logger)

		fetcher, err := rod.NewFetcher(
			rod.WithTimeout(cfg.BrowserTimeout),
			rod.WithHeadless(cfg.Headless),
			rod.WithProxyPool(pool),
			rod.WithConcurrency(int64(cfg.BrowserConcurrency)),
			rod.WithLogger(logger),
		)
		if err != nil {
			fmt.Fprintln(stderr, "Hint: Chrome or Chromium must be installed")
			return fmt.Errorf("failed to start browser: %w", err)
		}
		m.Fetcher = fetcher

		deps.Scheduler = &pipeline.Scheduler{
			Records: m.Records,
			Links:   rod.NewLoggingFetcher(fetcher, logger),
			Proxies: pool,
			Download: transfer.NewDownloader(
				transfer.WithTimeout(cfg.DownloadTimeout),
				transfer.WithMaxFileSize(cfg.MaxFileSizeMB*1024*1024),
				transfer.WithLogger(logger),
			),
			Extract: transfer.NewEbookExtractor(
				transfer.KeepArchive(cfg.KeepArchive),
				transfer.WithExtractorLogger(logger),
			),
			DownloadRoot:       cfg.DownloadPath(),
			ExtractFormats:     cfg.ExtractFormats,
			QueueSize:          cfg.QueueSize,
			AcquireFanout:      cfg.AcquireFanoutSize(),
			Workers:            cfg.DownloadConcurrency,
			MaxRetries:         cfg.MaxRetries,
			RetryBackoff:       cfg.RetryBackoff,
			MaxDownloadRetries: cfg.MaxDownloadRetries,
			Pacer:              pipeline.NewPacer(cfg.RequestMinDelay, cfg.RequestMaxDelay),
			Logger:             logger,
		}
	}

	return kongCtx.Run(deps)
}

// applyOverrides copies command-line overrides into the loaded config.
func applyOverrides(cfg *bookdl.Config, cli *CLI, cmd string) {
	switch cmd {
	case "download":
		c := cli.Download
		if c.OutputDir != "" {
			cfg.DownloadDir = c.OutputDir
		}
		if c.Concurrent > 0 {
			cfg.BrowserConcurrency = c.Concurrent
		}
		if c.DownloadConcurrent > 0 {
			cfg.DownloadConcurrency = c.DownloadConcurrent
		}
		if c.NoHeadless {
			cfg.Headless = false
		}
		if len(c.Formats) > 0 {
			cfg.ExtractFormats = c.Formats
		}
		if c.KeepZip {
			cfg.KeepArchive = true
		}
		if c.ProxyFile != "" {
			cfg.ProxyFile = c.ProxyFile
			cfg.ProxyAPIURL = ""
		} else if c.ProxyAPI != "" {
			cfg.ProxyAPIURL = c.ProxyAPI
			cfg.ProxyFile = ""
		}
	case "retry":
		if cli.Retry.NoHeadless {
			cfg.Headless = false
		}
	}
}

// proxyPool builds the proxy pool from config: a local file wins over an
// API endpoint, and without either the downloader connects directly.
func proxyPool(cfg *bookdl.Config, logger *slog.Logger) bookdl.ProxyPool {
	switch {
	case cfg.ProxyFile != "":
		return proxy.NewPool(proxy.WithFileSource(cfg.ProxyFile), proxy.WithLogger(logger))
	case cfg.ProxyAPIURL != "":
		return proxy.NewPool(proxy.WithAPISource(cfg.ProxyAPIURL), proxy.WithLogger(logger))
	default:
		return bookdl.NopProxyPool{}
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("BOOKDL_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}
