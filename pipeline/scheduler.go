// Package pipeline orchestrates the two-stage download run: a paced,
// proxy-rotating link acquisition stage feeding an independently sized pool
// of transfer workers through a bounded queue. The queue is the only
// coupling between the stages and the backpressure that keeps acquired
// links from piling up and expiring before a worker picks them up.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mjarosz/bookdl"
	"github.com/mjarosz/bookdl/transfer"
	"golang.org/x/sync/errgroup"
)

// DefaultCategoryDir receives books whose category sanitizes to nothing.
const DefaultCategoryDir = "未分类"

// Scheduler coordinates a download run.
type Scheduler struct {
	Records  bookdl.RecordStore
	Links    bookdl.LinkFetcher
	Proxies  bookdl.ProxyPool
	Download bookdl.Downloader
	Extract  bookdl.Extractor

	// DownloadRoot is the destination tree:
	// <DownloadRoot>/<sanitized category>/<filename>.
	DownloadRoot string

	// ExtractFormats are the ebook extensions pulled out of downloaded
	// archives; the first one doubles as the default extension for
	// declared filenames without one.
	ExtractFormats []string

	// QueueSize bounds the link queue. Keep it small relative to link
	// lifetime.
	QueueSize int

	// AcquireFanout caps concurrent acquisition attempts. It should be a
	// little wider than the browser's own session cap so the pipe stays
	// fed without over-subscribing the browser.
	AcquireFanout int

	// Workers is the transfer pool size, independent of AcquireFanout.
	Workers int

	// Acquisition retry policy: exponential backoff over MaxRetries
	// attempts.
	MaxRetries   int
	RetryBackoff time.Duration

	// Transfer retry policy: linear backoff over MaxDownloadRetries
	// attempts, deliberately smaller than the acquisition limit.
	MaxDownloadRetries int
	DownloadRetryDelay time.Duration

	Pacer  *Pacer
	Logger *slog.Logger

	// Progress, if set, receives events as items reach terminal states.
	Progress ProgressFunc

	// OnTransferProgress, if set, receives per-file byte counts.
	OnTransferProgress func(title string, downloaded, total int64)

	mu        sync.Mutex
	result    Result
	completed int
	total     int
}

// Result holds the aggregate outcome of a run.
type Result struct {
	AlreadyDone int // excluded up front by a prior completed/skipped record
	Completed   int
	Failed      int
	Skipped     int
}

// ProgressType indicates the type of progress event.
type ProgressType int

// Progress event types.
const (
	ProgressStarted ProgressType = iota
	ProgressCompleted
	ProgressFailed
	ProgressSkipped
	ProgressFinished
)

// ProgressEvent reports progress during a run.
type ProgressEvent struct {
	Type      ProgressType
	Title     string
	Completed int
	Total     int
	Err       error
}

// ProgressFunc is a callback for reporting run progress.
type ProgressFunc func(event ProgressEvent)

// Run downloads every book not already excluded by a prior completed or
// skipped record. One producer task acquires links under pacing and proxy
// rotation; Workers consumers drain the queue, transfer and extract, and
// finalize per-item state. Items fail individually; Run only returns an
// error for run-level faults such as the record store failing.
func (s *Scheduler) Run(ctx context.Context, books []*bookdl.Book) (*Result, error) {
	logger := s.logger()

	// Reconcile an interrupted prior run: records stuck in "downloading"
	// go back to pending, and their partial artifacts are deleted — the
	// direct link has almost certainly expired, so resuming is pointless.
	stale, err := s.Records.FindByStatus(ctx, bookdl.StatusDownloading)
	if err != nil {
		return nil, err
	}
	for _, record := range stale {
		if record.FilePath == "" {
			continue
		}
		if err := os.Remove(record.FilePath + transfer.PartSuffix); err == nil {
			logger.Debug("removed stale partial artifact", "path", record.FilePath)
		}
	}
	if n, err := s.Records.ResetStaleInFlight(ctx); err != nil {
		return nil, err
	} else if n > 0 {
		logger.Info("reset stale in-flight records", "count", n)
	}

	done, err := s.Records.CompletedOrSkippedUIDs(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(books))
	var pending []*bookdl.Book
	for _, book := range books {
		uid := book.UID()
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		if _, ok := done[uid]; ok {
			continue
		}
		pending = append(pending, book)
	}

	s.mu.Lock()
	s.result = Result{AlreadyDone: len(books) - len(pending)}
	s.completed = 0
	s.total = len(pending)
	s.mu.Unlock()

	if len(pending) == 0 {
		logger.Info("nothing to do, all books already downloaded", "books", len(books))
		return s.snapshot(), nil
	}

	logger.Info("starting run",
		"pending", len(pending),
		"books", len(books),
		"workers", s.workers(),
		"queue", s.queueSize(),
	)
	s.notify(ProgressEvent{Type: ProgressStarted, Total: len(pending)})

	queue := make(chan *bookdl.LinkTask, s.queueSize())

	var consumers sync.WaitGroup
	for i := 0; i < s.workers(); i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			// Closing the queue stops workers promptly once the
			// remaining tasks are consumed.
			for task := range queue {
				s.transferOne(ctx, task)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.acquireFanout())
	for _, book := range pending {
		book := book
		g.Go(func() error {
			s.acquireOne(gctx, book, queue)
			return nil
		})
	}
	_ = g.Wait()
	close(queue)
	consumers.Wait()

	s.notify(ProgressEvent{Type: ProgressFinished, Completed: s.progressCount(), Total: len(pending)})
	return s.snapshot(), nil
}

// acquireOne drives one book through the acquisition stage: pace, mark
// in-flight, fetch the link, classify failures, and either enqueue a
// transfer task or persist a terminal state. Enqueueing blocks when the
// queue is full; that is the backpressure preventing link expiry.
func (s *Scheduler) acquireOne(ctx context.Context, book *bookdl.Book, queue chan<- *bookdl.LinkTask) {
	logger := s.logger()
	record := bookdl.NewRecord(book)

	maxRetries := s.maxRetries()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := s.Pacer.Wait(ctx); err != nil {
			return
		}

		record.Status = bookdl.StatusDownloading
		record.RetryCount = attempt - 1
		if err := s.Records.Upsert(ctx, record); err != nil {
			logger.Error("persisting in-flight record", "uid", record.BookUID, "err", err)
			return
		}

		link, err := s.Links.FetchLink(ctx, book)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			record.ErrorMsg = bookdl.ErrorMessage(err)

			// Tunnel errors and block pages are the proxy's fault; rotate
			// before the next attempt.
			if bookdl.ErrorCode(err) == bookdl.EPROXY {
				s.Proxies.Invalidate()
			}

			if !bookdl.Retryable(err) {
				s.finalize(ctx, record, bookdl.StatusSkipped)
				return
			}

			logger.Warn("link acquisition failed",
				"title", book.Title,
				"attempt", attempt,
				"max", maxRetries,
				"err", err,
			)
			if attempt < maxRetries {
				if !sleepCtx(ctx, s.retryBackoff()<<(attempt-1)) {
					return
				}
			}
			continue
		}

		record.CDNURL = link.URL
		dest := s.destPath(book, link)
		record.FilePath = dest
		if err := s.Records.Upsert(ctx, record); err != nil {
			logger.Error("persisting acquired link", "uid", record.BookUID, "err", err)
			return
		}

		task := &bookdl.LinkTask{Book: book, Record: record, Link: link, Dest: dest}
		select {
		case queue <- task:
		case <-ctx.Done():
		}
		return
	}

	record.RetryCount = maxRetries
	s.finalize(ctx, record, bookdl.StatusFailed)
}

// transferOne drives one task through the transfer stage with its own,
// smaller retry budget.
func (s *Scheduler) transferOne(ctx context.Context, task *bookdl.LinkTask) {
	logger := s.logger()
	record := task.Record

	var progress bookdl.TransferProgressFunc
	if s.OnTransferProgress != nil {
		progress = func(downloaded, total int64) {
			s.OnTransferProgress(task.Book.Title, downloaded, total)
		}
	}

	maxRetries := s.maxDownloadRetries()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		size, err := s.Download.Download(ctx, task.Link.URL, task.Dest, progress)
		if err == nil {
			// Extraction failures flow through the same classification
			// pass as the download itself, so a corrupt archive after a
			// successful transfer still marks the item skipped.
			err = s.extractAndComplete(ctx, task, size)
			if err == nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		record.ErrorMsg = bookdl.ErrorMessage(err)

		switch bookdl.ErrorCode(err) {
		case bookdl.EEXPIRED:
			// The link died in the queue; only a fresh acquisition can
			// save this item, so stop immediately.
			s.finalize(ctx, record, bookdl.StatusFailed)
			return
		case bookdl.EPERMANENT:
			s.finalize(ctx, record, bookdl.StatusSkipped)
			return
		}

		logger.Warn("transfer failed",
			"title", task.Book.Title,
			"attempt", attempt,
			"max", maxRetries,
			"err", err,
		)
		if attempt < maxRetries {
			if !sleepCtx(ctx, s.downloadRetryDelay()) {
				return
			}
		}
	}

	s.finalize(ctx, record, bookdl.StatusFailed)
}

// extractAndComplete unpacks the archive and persists the completed record.
func (s *Scheduler) extractAndComplete(ctx context.Context, task *bookdl.LinkTask, size int64) error {
	record := task.Record
	title := bookdl.SanitizeFilename(task.Book.Title)

	files, err := s.Extract.Extract(task.Dest, title, s.ExtractFormats)
	if err != nil {
		return err
	}

	if len(files) > 0 {
		record.FilePath = files[0]
		var total int64
		for _, f := range files {
			if info, statErr := os.Stat(f); statErr == nil {
				total += info.Size()
			}
		}
		record.FileSize = total
	} else {
		record.FilePath = task.Dest
		record.FileSize = size
	}

	record.ErrorMsg = ""
	s.finalize(ctx, record, bookdl.StatusCompleted)
	return nil
}

// finalize persists a terminal state, updates the aggregate counters, and
// advances the overall progress exactly once for the item.
func (s *Scheduler) finalize(ctx context.Context, record *bookdl.DownloadRecord, status bookdl.Status) {
	record.Status = status
	if err := s.Records.Upsert(ctx, record); err != nil {
		s.logger().Error("persisting terminal record", "uid", record.BookUID, "err", err)
	}

	s.mu.Lock()
	switch status {
	case bookdl.StatusCompleted:
		s.result.Completed++
	case bookdl.StatusSkipped:
		s.result.Skipped++
	default:
		s.result.Failed++
	}
	s.completed++
	completed, total := s.completed, s.total
	s.mu.Unlock()

	eventType := ProgressCompleted
	switch status {
	case bookdl.StatusFailed:
		eventType = ProgressFailed
	case bookdl.StatusSkipped:
		eventType = ProgressSkipped
	}
	var eventErr error
	if record.ErrorMsg != "" {
		eventErr = bookdl.Errorf(bookdl.EINTERNAL, "%s", record.ErrorMsg)
	}
	s.notify(ProgressEvent{
		Type:      eventType,
		Title:     record.Title,
		Completed: completed,
		Total:     total,
		Err:       eventErr,
	})

	if status == bookdl.StatusFailed || status == bookdl.StatusSkipped {
		s.logger().Error("item reached terminal failure",
			"uid", record.BookUID,
			"title", record.Title,
			"status", string(status),
			"err", record.ErrorMsg,
		)
	}
}

// destPath computes <root>/<sanitized category>/<filename>, preferring the
// declared filename and falling back to the sanitized title plus the
// default extension.
func (s *Scheduler) destPath(book *bookdl.Book, link *bookdl.DirectLink) string {
	filename := bookdl.SanitizeFilename(link.Filename)
	if filename == "" {
		filename = bookdl.SanitizeFilename(book.Title)
	}
	if filepath.Ext(filename) == "" {
		filename += "." + s.defaultExt()
	}

	category := bookdl.SanitizeFilename(book.Category)
	if category == "" {
		category = DefaultCategoryDir
	}
	return filepath.Join(s.DownloadRoot, category, filename)
}

func (s *Scheduler) defaultExt() string {
	if len(s.ExtractFormats) > 0 {
		return strings.ToLower(strings.TrimPrefix(s.ExtractFormats[0], "."))
	}
	return "epub"
}

func (s *Scheduler) snapshot() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := s.result
	return &result
}

func (s *Scheduler) progressCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *Scheduler) notify(event ProgressEvent) {
	if s.Progress != nil {
		s.Progress(event)
	}
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Scheduler) queueSize() int {
	if s.QueueSize > 0 {
		return s.QueueSize
	}
	return 20
}

func (s *Scheduler) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return 10
}

func (s *Scheduler) acquireFanout() int {
	if s.AcquireFanout > 0 {
		return s.AcquireFanout
	}
	return 5
}

func (s *Scheduler) maxRetries() int {
	if s.MaxRetries > 0 {
		return s.MaxRetries
	}
	return 3
}

func (s *Scheduler) retryBackoff() time.Duration {
	if s.RetryBackoff > 0 {
		return s.RetryBackoff
	}
	return 5 * time.Second
}

func (s *Scheduler) maxDownloadRetries() int {
	if s.MaxDownloadRetries > 0 {
		return s.MaxDownloadRetries
	}
	return 2
}

func (s *Scheduler) downloadRetryDelay() time.Duration {
	if s.DownloadRetryDelay > 0 {
		return s.DownloadRetryDelay
	}
	return 3 * time.Second
}

// sleepCtx sleeps for d unless the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
