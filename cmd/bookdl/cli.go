package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/mjarosz/bookdl"
	"github.com/mjarosz/bookdl/catalog"
	"github.com/mjarosz/bookdl/pipeline"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx       context.Context
	Stdout    io.Writer
	Stderr    io.Writer
	Config    *bookdl.Config
	Logger    *slog.Logger
	Records   bookdl.RecordStore
	Catalog   *catalog.Fetcher
	Scheduler *pipeline.Scheduler
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config  string `short:"C" help:"Config file path (default: config.yaml)"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Download  DownloadCmd  `cmd:"" help:"Download ebooks from the catalog"`
	List      ListCmd      `cmd:"" help:"List books or categories"`
	Status    StatusCmd    `cmd:"" help:"Show download statistics"`
	Retry     RetryCmd     `cmd:"" help:"Reset failed and skipped records for a new run"`
	FetchData FetchDataCmd `cmd:"" name:"fetch-data" help:"Download or update the book catalog"`
}

// DownloadCmd is the "download" subcommand.
type DownloadCmd struct {
	Categories         []string `short:"c" help:"Filter by category (repeatable)"`
	Keyword            string   `short:"k" help:"Filter by keyword in title or author"`
	Limit              int      `short:"n" help:"Limit the number of books"`
	Concurrent         int      `help:"Override browser concurrency"`
	DownloadConcurrent int      `help:"Override HTTP download concurrency"`
	NoHeadless         bool     `help:"Show the browser window (debugging)"`
	Formats            []string `help:"Ebook formats to extract, e.g. epub,azw3,mobi"`
	KeepZip            bool     `help:"Keep ZIP archives after extraction"`
	OutputDir          string   `short:"o" help:"Download directory (overrides config)"`
	ProxyAPI           string   `help:"Proxy pool API URL" xor:"proxy"`
	ProxyFile          string   `help:"Local proxy list file, one ip:port per line" xor:"proxy"`
}

// ListCmd is the "list" subcommand.
type ListCmd struct {
	Categories bool     `help:"List categories with book counts"`
	Category   []string `short:"c" help:"Show books in the given categories"`
	Keyword    string   `short:"k" help:"Filter by keyword in title or author"`
	Limit      int      `short:"n" default:"20" help:"Number of rows to show"`
}

// StatusCmd is the "status" subcommand.
type StatusCmd struct{}

// RetryCmd is the "retry" subcommand.
type RetryCmd struct {
	NoHeadless bool `help:"Show the browser window (debugging)"`
}

// FetchDataCmd is the "fetch-data" subcommand.
type FetchDataCmd struct{}
