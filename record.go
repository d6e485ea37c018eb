package bookdl

import (
	"context"
	"time"
)

// Status is the durable state of a download record.
type Status string

// Download record states. A record moves pending → downloading → one of the
// terminal states. "downloading" is never terminal across runs: a crash
// leaves it behind and ResetStaleInFlight forces it back to pending on the
// next startup.
const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
)

// Terminal reports whether the status excludes the item from future runs.
// Skipped records (permanent failures) count the same as completed here but
// are distinguished in statistics.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// DownloadRecord is the durable per-book state machine, keyed by book UID.
// Upserts overwrite every mutable field; there is no partial-update path.
type DownloadRecord struct {
	BookUID    string
	Title      string
	Author     string
	Category   string
	Link       string
	Status     Status
	FilePath   string
	FileSize   int64
	CDNURL     string
	ErrorMsg   string
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewRecord creates a pending record for a book.
func NewRecord(b *Book) *DownloadRecord {
	return &DownloadRecord{
		BookUID:  b.UID(),
		Title:    b.Title,
		Author:   b.Author,
		Category: b.Category,
		Link:     b.Link,
		Status:   StatusPending,
	}
}

// Validate returns an error if the record contains invalid fields.
func (r *DownloadRecord) Validate() error {
	if r.BookUID == "" {
		return Errorf(EINVALID, "record book UID required")
	}
	if r.Link == "" {
		return Errorf(EINVALID, "record link required")
	}
	return nil
}

// RecordStore persists download records. Implementations must be safe for
// concurrent use; each record is only ever written by the pipeline stage
// currently holding its task.
type RecordStore interface {
	// Upsert inserts or fully overwrites the record keyed by its book UID.
	Upsert(ctx context.Context, record *DownloadRecord) error

	// FindByUID retrieves a single record.
	// Returns ENOTFOUND if no record exists for the UID.
	FindByUID(ctx context.Context, bookUID string) (*DownloadRecord, error)

	// FindByStatus retrieves all records with the given status.
	FindByStatus(ctx context.Context, status Status) ([]*DownloadRecord, error)

	// CompletedOrSkippedUIDs returns the set of UIDs excluded from future
	// runs: completed downloads plus permanently skipped items.
	CompletedOrSkippedUIDs(ctx context.Context) (map[string]struct{}, error)

	// ResetStaleInFlight forces records left in "downloading" by an
	// interrupted run back to "pending". Returns the number reset.
	ResetStaleInFlight(ctx context.Context) (int, error)

	// ResetFailed resets failed and skipped records to "pending" so a
	// subsequent run retries them. Returns the number reset.
	ResetFailed(ctx context.Context) (int, error)

	// Stats returns record counts grouped by status.
	Stats(ctx context.Context) (map[Status]int, error)

	// TotalCompletedBytes returns the sum of file sizes over completed
	// records.
	TotalCompletedBytes(ctx context.Context) (int64, error)
}
