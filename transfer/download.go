// Package transfer performs the high-throughput half of the pipeline:
// resumable HTTP downloads of acquired CDN links and extraction of ebook
// files from the downloaded archives.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mjarosz/bookdl"
)

// PartSuffix distinguishes in-progress transfer artifacts. The artifact is
// renamed atomically to its final name on completion.
const PartSuffix = ".part"

const (
	defaultTimeout = 300 * time.Second

	// userAgent matches a plain desktop browser; some CDNs reject the Go
	// default.
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Ensure Downloader implements bookdl.Downloader at compile time.
var _ bookdl.Downloader = (*Downloader)(nil)

// Downloader streams files over HTTP with resumable semantics.
type Downloader struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithTimeout sets the whole-transfer timeout. Defaults to 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(dl *Downloader) { dl.client.Timeout = d }
}

// WithMaxFileSize caps the declared size of a transfer in bytes; larger
// files abort with EPERMANENT before any bandwidth is spent. Zero disables
// the cap.
func WithMaxFileSize(n int64) Option {
	return func(dl *Downloader) { dl.maxBytes = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(dl *Downloader) { dl.logger = logger }
}

// NewDownloader creates a Downloader.
func NewDownloader(opts ...Option) *Downloader {
	dl := &Downloader{
		client: &http.Client{Timeout: defaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(dl)
	}
	return dl
}

// Download fetches url into dest. A same-named partial artifact is resumed
// with a byte-range request; when the server does not honor ranges the
// progress is discarded and the transfer restarts from zero.
func (dl *Downloader) Download(ctx context.Context, url, dest string, progress bookdl.TransferProgressFunc) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "creating destination dir")
	}
	part := dest + PartSuffix

	var downloaded int64
	if info, err := os.Stat(part); err == nil {
		downloaded = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.EINVALID, "building request")
	}
	req.Header.Set("User-Agent", userAgent)
	if downloaded > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", downloaded))
		dl.logger.Debug("resuming transfer", "dest", filepath.Base(dest), "offset", downloaded)
	}

	resp, err := dl.client.Do(req)
	if err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "requesting %s", url)
	}
	defer resp.Body.Close()

	// Range Not Satisfiable: the partial artifact is likely already the
	// whole file.
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		if downloaded > 0 {
			if err := os.Rename(part, dest); err != nil {
				return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "finalizing %s", dest)
			}
			return downloaded, nil
		}
		return 0, bookdl.Errorf(bookdl.ETRANSIENT, "range request refused for %s", url)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return 0, err
	}

	var total int64
	appendMode := false
	if resp.StatusCode == http.StatusPartialContent {
		total = totalFromContentRange(resp.Header.Get("Content-Range"))
		appendMode = true
	} else {
		total = resp.ContentLength
		// A full-content response means the server ignored the Range
		// header; prior progress is useless.
		downloaded = 0
	}

	// Size cap is checked from the declared length before any body bytes
	// are consumed.
	if dl.maxBytes > 0 && total > dl.maxBytes {
		return 0, bookdl.Errorf(bookdl.EPERMANENT,
			"declared size %d exceeds limit %d", total, dl.maxBytes)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "opening %s", part)
	}

	buf := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				f.Close()
				return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "writing %s", part)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return 0, bookdl.WrapErrorf(readErr, bookdl.ETRANSIENT, "streaming %s", url)
		}
	}
	if err := f.Close(); err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "closing %s", part)
	}

	if err := os.Rename(part, dest); err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "finalizing %s", dest)
	}

	dl.logger.Info("transfer complete", "dest", filepath.Base(dest), "bytes", downloaded)
	return downloaded, nil
}

// classifyStatus maps HTTP response codes onto the failure taxonomy:
// 403/404/410 mean the time-limited link expired and a fresh one is needed;
// everything else non-2xx is worth another attempt.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusForbidden, code == http.StatusNotFound, code == http.StatusGone:
		return bookdl.Errorf(bookdl.EEXPIRED, "link expired (HTTP %d)", code)
	default:
		return bookdl.Errorf(bookdl.ETRANSIENT, "HTTP %d", code)
	}
}

// totalFromContentRange extracts the complete length from a Content-Range
// header ("bytes 100-199/12345"). Unknown lengths report zero.
func totalFromContentRange(header string) int64 {
	i := strings.LastIndex(header, "/")
	if i == -1 {
		return 0
	}
	total, err := strconv.ParseInt(header[i+1:], 10, 64)
	if err != nil {
		return 0
	}
	return total
}
