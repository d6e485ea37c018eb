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

func TestStatusCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("prints per-status counts and total size", func(t *testing.T) {
		t.Parallel()

		records := &mock.RecordStore{
			StatsFn: func(_ context.Context) (map[bookdl.Status]int, error) {
				return map[bookdl.Status]int{
					bookdl.StatusCompleted: 12,
					bookdl.StatusFailed:    3,
					bookdl.StatusSkipped:   1,
				}, nil
			},
			TotalCompletedBytesFn: func(_ context.Context) (int64, error) {
				return 2 * 1024 * 1024, nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:     context.Background(),
			Stdout:  stdout,
			Stderr:  &bytes.Buffer{},
			Records: records,
		}

		require.NoError(t, (&main.StatusCmd{}).Run(deps))

		output := stdout.String()
		assert.Contains(t, output, "completed")
		assert.Contains(t, output, "12")
		assert.Contains(t, output, "failed")
		assert.Contains(t, output, "skipped")
		assert.Contains(t, output, "total")
		assert.Contains(t, output, "16")
		assert.Contains(t, output, "2.0 MB")
	})

	t.Run("shows helpful message when no records exist", func(t *testing.T) {
		t.Parallel()

		records := &mock.RecordStore{
			StatsFn: func(_ context.Context) (map[bookdl.Status]int, error) {
				return map[bookdl.Status]int{}, nil
			},
		}

		stdout := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:     context.Background(),
			Stdout:  stdout,
			Stderr:  &bytes.Buffer{},
			Records: records,
		}

		require.NoError(t, (&main.StatusCmd{}).Run(deps))
		assert.Contains(t, stdout.String(), "No download records")
	})

	t.Run("returns error when stats query fails", func(t *testing.T) {
		t.Parallel()

		records := &mock.RecordStore{
			StatsFn: func(_ context.Context) (map[bookdl.Status]int, error) {
				return nil, bookdl.Errorf(bookdl.EINTERNAL, "database error")
			},
		}

		stderr := &bytes.Buffer{}
		deps := &main.Dependencies{
			Ctx:     context.Background(),
			Stdout:  &bytes.Buffer{},
			Stderr:  stderr,
			Records: records,
		}

		err := (&main.StatusCmd{}).Run(deps)
		require.Error(t, err)
		assert.Contains(t, stderr.String(), "error:")
	})
}
