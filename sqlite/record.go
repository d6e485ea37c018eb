package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mjarosz/bookdl"
)

// Compile-time interface verification.
var _ bookdl.RecordStore = (*RecordStore)(nil)

// RecordStore implements bookdl.RecordStore using SQLite.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

const recordColumns = `book_uid, title, author, category, link, status,
	file_path, file_size, cdn_url, error_msg, retry_count, created_at, updated_at`

// Upsert inserts or fully overwrites the record keyed by book UID. Every
// mutable field is replaced; created_at is preserved for existing rows.
func (s *RecordStore) Upsert(ctx context.Context, record *bookdl.DownloadRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	record.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_uid) DO UPDATE SET
			status = excluded.status,
			file_path = excluded.file_path,
			file_size = excluded.file_size,
			cdn_url = excluded.cdn_url,
			error_msg = excluded.error_msg,
			retry_count = excluded.retry_count,
			updated_at = excluded.updated_at
	`, record.BookUID, record.Title, record.Author, record.Category, record.Link,
		string(record.Status), record.FilePath, record.FileSize, record.CDNURL,
		record.ErrorMsg, record.RetryCount,
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339))

	return err
}

// FindByUID retrieves a single record.
func (s *RecordStore) FindByUID(ctx context.Context, bookUID string) (*bookdl.DownloadRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM download_records WHERE book_uid = ?
	`, bookUID)

	record, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, bookdl.Errorf(bookdl.ENOTFOUND, "record %q not found", bookUID)
	}
	return record, err
}

// FindByStatus retrieves all records with the given status.
func (s *RecordStore) FindByStatus(ctx context.Context, status bookdl.Status) ([]*bookdl.DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM download_records WHERE status = ? ORDER BY updated_at
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*bookdl.DownloadRecord
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CompletedOrSkippedUIDs returns the UIDs excluded from future runs.
func (s *RecordStore) CompletedOrSkippedUIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT book_uid FROM download_records WHERE status IN (?, ?)
	`, string(bookdl.StatusCompleted), string(bookdl.StatusSkipped))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uids := make(map[string]struct{})
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		uids[uid] = struct{}{}
	}
	return uids, rows.Err()
}

// ResetStaleInFlight forces records left in "downloading" by an interrupted
// run back to "pending".
func (s *RecordStore) ResetStaleInFlight(ctx context.Context) (int, error) {
	return s.resetToPending(ctx, bookdl.StatusDownloading)
}

// ResetFailed resets failed and skipped records to "pending".
func (s *RecordStore) ResetFailed(ctx context.Context) (int, error) {
	failed, err := s.resetToPending(ctx, bookdl.StatusFailed)
	if err != nil {
		return 0, err
	}
	skipped, err := s.resetToPending(ctx, bookdl.StatusSkipped)
	return failed + skipped, err
}

func (s *RecordStore) resetToPending(ctx context.Context, from bookdl.Status) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE download_records
		SET status = ?, error_msg = '', retry_count = 0, updated_at = ?
		WHERE status = ?
	`, string(bookdl.StatusPending), time.Now().UTC().Format(time.RFC3339), string(from))
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Stats returns record counts grouped by status.
func (s *RecordStore) Stats(ctx context.Context) (map[bookdl.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM download_records GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[bookdl.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[bookdl.Status(status)] = count
	}
	return stats, rows.Err()
}

// TotalCompletedBytes returns the sum of file sizes over completed records.
func (s *RecordStore) TotalCompletedBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(file_size), 0) FROM download_records WHERE status = ?
	`, string(bookdl.StatusCompleted)).Scan(&total)
	return total, err
}

// scanRecord scans a download_records row in recordColumns order.
func scanRecord(scan func(dest ...any) error) (*bookdl.DownloadRecord, error) {
	var record bookdl.DownloadRecord
	var status, createdAt, updatedAt string

	if err := scan(&record.BookUID, &record.Title, &record.Author, &record.Category,
		&record.Link, &status, &record.FilePath, &record.FileSize, &record.CDNURL,
		&record.ErrorMsg, &record.RetryCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	record.Status = bookdl.Status(status)

	var err error
	if record.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &record, nil
}

// parseRFC3339 parses an RFC3339 formatted timestamp string.
func parseRFC3339(value, fieldName string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", fieldName, err)
	}
	return t, nil
}
