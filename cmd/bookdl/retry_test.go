package main_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/mjarosz/bookdl"
	main "github.com/mjarosz/bookdl/cmd/bookdl"
	"github.com/mjarosz/bookdl/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("resets failed and skipped records", func(t *testing.T) {
		t.Parallel()

		resetCalled := false
		records := &mock.RecordStore{
			FindByStatusFn: func(_ context.Context, status bookdl.Status) ([]*bookdl.DownloadRecord, error) {
				switch status {
				case bookdl.StatusFailed:
					return []*bookdl.DownloadRecord{{BookUID: "a"}, {BookUID: "b"}}, nil
				case bookdl.StatusSkipped:
					return []*bookdl.DownloadRecord{{BookUID: "c"}}, nil
				}
				return nil, nil
			},
			ResetFailedFn: func(_ context.Context) (int, error) {
				resetCalled = true
				return 3, nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:     context.Background(),
			Stdout:  stdout,
			Stderr:  &bytes.Buffer{},
			Records: records,
		}

		require.NoError(t, (&main.RetryCmd{}).Run(deps))

		assert.True(t, resetCalled)
		output := stdout.String()
		assert.Contains(t, output, "Reset 3 records")
		assert.Contains(t, output, "2 failed")
		assert.Contains(t, output, "1 skipped")
		assert.Contains(t, output, "bookdl download")
	})

	t.Run("does nothing when there is nothing to reset", func(t *testing.T) {
		t.Parallel()

		records := &mock.RecordStore{
			FindByStatusFn: func(_ context.Context, _ bookdl.Status) ([]*bookdl.DownloadRecord, error) {
				return nil, nil
			},
			ResetFailedFn: func(_ context.Context) (int, error) {
				t.Error("ResetFailed should not be called with no failed records")
				return 0, nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:     context.Background(),
			Stdout:  stdout,
			Stderr:  &bytes.Buffer{},
			Records: records,
		}

		require.NoError(t, (&main.RetryCmd{}).Run(deps))
		assert.Contains(t, stdout.String(), "No failed or skipped records")
	})

	t.Run("returns error when the reset fails", func(t *testing.T) {
		t.Parallel()

		records := &mock.RecordStore{
			FindByStatusFn: func(_ context.Context, _ bookdl.Status) ([]*bookdl.DownloadRecord, error) {
				return []*bookdl.DownloadRecord{{BookUID: "a"}}, nil
			},
			ResetFailedFn: func(_ context.Context) (int, error) {
				return 0, bookdl.Errorf(bookdl.EINTERNAL, "database error")
			},
		}

		stderr := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:     context.Background(),
			Stdout:  &bytes.Buffer{},
			Stderr:  stderr,
			Records: records,
		}

		err := (&main.RetryCmd{}).Run(deps)
		require.Error(t, err)
		assert.Contains(t, stderr.String(), "error:")
	})
}
