package main_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mjarosz/bookdl"
	main "github.com/mjarosz/bookdl/cmd/bookdl"
	"github.com/mjarosz/bookdl/mock"
	"github.com/mjarosz/bookdl/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testScheduler builds a pipeline wired entirely with mocks; every book
// acquires a link and transfers successfully.
func testScheduler() *pipeline.Scheduler {
	var mu sync.Mutex
	records := make(map[string]bookdl.DownloadRecord)
	store := &mock.RecordStore{
		UpsertFn: func(_ context.Context, record *bookdl.DownloadRecord) error {
			mu.Lock()
			defer mu.Unlock()
			records[record.BookUID] = *record
			return nil
		},
		FindByStatusFn: func(_ context.Context, _ bookdl.Status) ([]*bookdl.DownloadRecord, error) {
			return nil, nil
		},
		CompletedOrSkippedUIDsFn: func(_ context.Context) (map[string]struct{}, error) {
			return map[string]struct{}{}, nil
		},
		ResetStaleInFlightFn: func(_ context.Context) (int, error) {
			return 0, nil
		},
		StatsFn: func(_ context.Context) (map[bookdl.Status]int, error) {
			mu.Lock()
			defer mu.Unlock()
			stats := make(map[bookdl.Status]int)
			for _, record := range records {
				stats[record.Status]++
			}
			return stats, nil
		},
		TotalCompletedBytesFn: func(_ context.Context) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			var total int64
			for _, record := range records {
				if record.Status == bookdl.StatusCompleted {
					total += record.FileSize
				}
			}
			return total, nil
		},
	}

	return &pipeline.Scheduler{
		Records: store,
		Links: &mock.LinkFetcher{
			FetchLinkFn: func(_ context.Context, book *bookdl.Book) (*bookdl.DirectLink, error) {
				return &bookdl.DirectLink{
					URL:      "https://cdn.example.com/" + book.UID() + ".zip",
					Filename: book.UID() + ".zip",
				}, nil
			},
		},
		Proxies: bookdl.NopProxyPool{},
		Download: &mock.Downloader{
			DownloadFn: func(_ context.Context, _, _ string, _ bookdl.TransferProgressFunc) (int64, error) {
				return 100, nil
			},
		},
		Extract: &mock.Extractor{
			ExtractFn: func(_, _ string, _ []string) ([]string, error) {
				return nil, nil
			},
		},
		DownloadRoot:       "/tmp/books",
		ExtractFormats:     []string{"epub"},
		QueueSize:          4,
		AcquireFanout:      2,
		Workers:            2,
		MaxRetries:         1,
		RetryBackoff:       time.Millisecond,
		MaxDownloadRetries: 1,
		DownloadRetryDelay: time.Millisecond,
	}
}

func TestDownloadCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("downloads matching books and prints the summary", func(t *testing.T) {
		t.Parallel()

		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		sched := testScheduler()
		deps := &main.Dependencies{
			Ctx:       context.Background(),
			Stdout:    stdout,
			Stderr:    stderr,
			Config:    testConfig(t),
			Records:   sched.Records,
			Scheduler: sched,
		}

		cmd := &main.DownloadCmd{}
		require.NoError(t, cmd.Run(deps))

		output := stdout.String()
		assert.Contains(t, output, "Selected 3 books")
		assert.Contains(t, output, "3 completed")
		assert.Contains(t, output, "0 failed")
	})

	t.Run("applies category and limit filters before downloading", func(t *testing.T) {
		t.Parallel()

		stdout := &bytes.Buffer{}
		sched := testScheduler()
		deps := &main.Dependencies{
			Ctx:       context.Background(),
			Stdout:    stdout,
			Stderr:    &bytes.Buffer{},
			Config:    testConfig(t),
			Records:   sched.Records,
			Scheduler: sched,
		}

		cmd := &main.DownloadCmd{Categories: []string{"科幻"}, Limit: 1}
		require.NoError(t, cmd.Run(deps))

		assert.Contains(t, stdout.String(), "Selected 1 books")
		assert.Contains(t, stdout.String(), "1 completed")
	})

	t.Run("reports when no books match", func(t *testing.T) {
		t.Parallel()

		stdout := &bytes.Buffer{}
		sched := testScheduler()
		deps := &main.Dependencies{
			Ctx:       context.Background(),
			Stdout:    stdout,
			Stderr:    &bytes.Buffer{},
			Config:    testConfig(t),
			Records:   sched.Records,
			Scheduler: sched,
		}

		cmd := &main.DownloadCmd{Keyword: "nonexistent"}
		require.NoError(t, cmd.Run(deps))

		assert.Contains(t, stdout.String(), "No books match")
	})

	t.Run("returns error when catalog is missing", func(t *testing.T) {
		t.Parallel()

		cfg := bookdl.DefaultConfig()
		cfg.Root = t.TempDir()

		stderr := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:    context.Background(),
			Stdout: &bytes.Buffer{},
			Stderr: stderr,
			Config: cfg,
		}

		err := (&main.DownloadCmd{}).Run(deps)
		require.Error(t, err)
		assert.Equal(t, bookdl.ENOTFOUND, bookdl.ErrorCode(err))
	})
}
