package main

import (
	"fmt"

	"github.com/mjarosz/bookdl"
	"github.com/mjarosz/bookdl/pipeline"
)

// Run executes the status command.
func (c *StatusCmd) Run(deps *Dependencies) error {
	return printStats(deps)
}

// printStats renders the per-status record counts and the total size of
// completed downloads.
func printStats(deps *Dependencies) error {
	stats, err := deps.Records.Stats(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}

	if len(stats) == 0 {
		fmt.Fprintln(deps.Stdout, "No download records yet.")
		return nil
	}

	totalBytes, err := deps.Records.TotalCompletedBytes(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}

	total := 0
	for _, status := range []bookdl.Status{
		bookdl.StatusCompleted,
		bookdl.StatusPending,
		bookdl.StatusDownloading,
		bookdl.StatusFailed,
		bookdl.StatusSkipped,
	} {
		count, ok := stats[status]
		if !ok {
			continue
		}
		fmt.Fprintf(deps.Stdout, "%-12s %6d\n", status, count)
		total += count
	}
	fmt.Fprintf(deps.Stdout, "%-12s %6d\n", "total", total)
	fmt.Fprintf(deps.Stdout, "completed size: %s\n", pipeline.FormatBytes(totalBytes))
	return nil
}
