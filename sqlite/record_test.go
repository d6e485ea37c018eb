package sqlite_test

import (
	"context"
	"testing"

	"github.com/mjarosz/bookdl"
	"github.com/mjarosz/bookdl/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.RecordStore {
	t.Helper()

	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open())
	t.Cleanup(func() { db.Close() })

	return sqlite.NewRecordStore(db)
}

func testRecord(uid string, status bookdl.Status) *bookdl.DownloadRecord {
	return &bookdl.DownloadRecord{
		BookUID:  uid,
		Title:    "title-" + uid,
		Author:   "author",
		Category: "分类",
		Link:     "https://url89.ctfile.com/f/" + uid,
		Status:   status,
	}
}

func TestRecordStore_Upsert_overwrites_all_mutable_fields(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	record := testRecord("f1", bookdl.StatusDownloading)
	record.ErrorMsg = "timeout"
	record.RetryCount = 2
	require.NoError(t, store.Upsert(ctx, record))

	record.Status = bookdl.StatusCompleted
	record.FilePath = "/downloads/分类/book.epub"
	record.FileSize = 12345
	record.CDNURL = "https://cdn.example.com/book.zip"
	record.ErrorMsg = ""
	record.RetryCount = 0
	require.NoError(t, store.Upsert(ctx, record))

	got, err := store.FindByUID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, bookdl.StatusCompleted, got.Status)
	assert.Equal(t, "/downloads/分类/book.epub", got.FilePath)
	assert.Equal(t, int64(12345), got.FileSize)
	assert.Equal(t, "https://cdn.example.com/book.zip", got.CDNURL)
	assert.Empty(t, got.ErrorMsg)
	assert.Zero(t, got.RetryCount)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRecordStore_Upsert_rejects_invalid_record(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	err := store.Upsert(context.Background(), &bookdl.DownloadRecord{Title: "no uid"})
	require.Error(t, err)
	assert.Equal(t, bookdl.EINVALID, bookdl.ErrorCode(err))
}

func TestRecordStore_FindByUID_not_found(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.FindByUID(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, bookdl.ENOTFOUND, bookdl.ErrorCode(err))
}

func TestRecordStore_CompletedOrSkippedUIDs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testRecord("a", bookdl.StatusCompleted)))
	require.NoError(t, store.Upsert(ctx, testRecord("b", bookdl.StatusSkipped)))
	require.NoError(t, store.Upsert(ctx, testRecord("c", bookdl.StatusFailed)))
	require.NoError(t, store.Upsert(ctx, testRecord("d", bookdl.StatusPending)))

	uids, err := store.CompletedOrSkippedUIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, uids, 2)
	assert.Contains(t, uids, "a")
	assert.Contains(t, uids, "b")
}

func TestRecordStore_ResetStaleInFlight(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testRecord("stale1", bookdl.StatusDownloading)))
	require.NoError(t, store.Upsert(ctx, testRecord("stale2", bookdl.StatusDownloading)))
	require.NoError(t, store.Upsert(ctx, testRecord("done", bookdl.StatusCompleted)))

	n, err := store.ResetStaleInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.FindByUID(ctx, "stale1")
	require.NoError(t, err)
	assert.Equal(t, bookdl.StatusPending, got.Status)
	assert.Zero(t, got.RetryCount)

	got, err = store.FindByUID(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, bookdl.StatusCompleted, got.Status)
}

func TestRecordStore_ResetFailed_includes_skipped(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	failed := testRecord("f", bookdl.StatusFailed)
	failed.ErrorMsg = "link fetch timeout"
	failed.RetryCount = 3
	require.NoError(t, store.Upsert(ctx, failed))
	require.NoError(t, store.Upsert(ctx, testRecord("s", bookdl.StatusSkipped)))
	require.NoError(t, store.Upsert(ctx, testRecord("p", bookdl.StatusPending)))

	n, err := store.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.FindByUID(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, bookdl.StatusPending, got.Status)
	assert.Empty(t, got.ErrorMsg)
	assert.Zero(t, got.RetryCount)
}

func TestRecordStore_Stats_and_TotalCompletedBytes(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	done1 := testRecord("d1", bookdl.StatusCompleted)
	done1.FileSize = 100
	done2 := testRecord("d2", bookdl.StatusCompleted)
	done2.FileSize = 250
	require.NoError(t, store.Upsert(ctx, done1))
	require.NoError(t, store.Upsert(ctx, done2))
	require.NoError(t, store.Upsert(ctx, testRecord("x", bookdl.StatusFailed)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[bookdl.StatusCompleted])
	assert.Equal(t, 1, stats[bookdl.StatusFailed])

	total, err := store.TotalCompletedBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), total)
}

func TestRecordStore_FindByStatus(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testRecord("w1", bookdl.StatusDownloading)))
	require.NoError(t, store.Upsert(ctx, testRecord("w2", bookdl.StatusDownloading)))

	records, err := store.FindByStatus(ctx, bookdl.StatusDownloading)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, bookdl.StatusDownloading, records[0].Status)
}
