package mock

import (
	"context"

	"github.com/mjarosz/bookdl"
)

var _ bookdl.RecordStore = (*RecordStore)(nil)

// RecordStore is a mock implementation of bookdl.RecordStore.
type RecordStore struct {
	UpsertFn                 func(ctx context.Context, record *bookdl.DownloadRecord) error
	FindByUIDFn              func(ctx context.Context, uid string) (*bookdl.DownloadRecord, error)
	FindByStatusFn           func(ctx context.Context, status bookdl.Status) ([]*bookdl.DownloadRecord, error)
	CompletedOrSkippedUIDsFn func(ctx context.Context) (map[string]struct{}, error)
	ResetStaleInFlightFn     func(ctx context.Context) (int, error)
	ResetFailedFn            func(ctx context.Context) (int, error)
	StatsFn                  func(ctx context.Context) (map[bookdl.Status]int, error)
	TotalCompletedBytesFn    func(ctx context.Context) (int64, error)
}

func (s *RecordStore) Upsert(ctx context.Context, record *bookdl.DownloadRecord) error {
	return s.UpsertFn(ctx, record)
}

func (s *RecordStore) FindByUID(ctx context.Context, uid string) (*bookdl.DownloadRecord, error) {
	return s.FindByUIDFn(ctx, uid)
}

func (s *RecordStore) FindByStatus(ctx context.Context, status bookdl.Status) ([]*bookdl.DownloadRecord, error) {
	return s.FindByStatusFn(ctx, status)
}

func (s *RecordStore) CompletedOrSkippedUIDs(ctx context.Context) (map[string]struct{}, error) {
	return s.CompletedOrSkippedUIDsFn(ctx)
}

func (s *RecordStore) ResetStaleInFlight(ctx context.Context) (int, error) {
	return s.ResetStaleInFlightFn(ctx)
}

func (s *RecordStore) ResetFailed(ctx context.Context) (int, error) {
	return s.ResetFailedFn(ctx)
}

func (s *RecordStore) Stats(ctx context.Context) (map[bookdl.Status]int, error) {
	return s.StatsFn(ctx)
}

func (s *RecordStore) TotalCompletedBytes(ctx context.Context) (int64, error) {
	return s.TotalCompletedBytesFn(ctx)
}
