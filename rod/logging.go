package rod

import (
	"context"
	"log/slog"
	"time"

	"github.com/mjarosz/bookdl"
)

// Ensure LoggingFetcher implements bookdl.LinkFetcher.
var _ bookdl.LinkFetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps a LinkFetcher with debug logging.
type LoggingFetcher struct {
	next   bookdl.LinkFetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next bookdl.LinkFetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// FetchLink logs the acquisition attempt and delegates to the wrapped fetcher.
func (f *LoggingFetcher) FetchLink(ctx context.Context, book *bookdl.Book) (link *bookdl.DirectLink, err error) {
	defer func(begin time.Time) {
		f.logger.Info("fetch link",
			"uid", book.UID(),
			"title", book.Title,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return f.next.FetchLink(ctx, book)
}

// Close delegates to the wrapped fetcher.
func (f *LoggingFetcher) Close() error {
	return f.next.Close()
}
