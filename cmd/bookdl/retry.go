package main

import (
	"fmt"

	"github.com/mjarosz/bookdl"
)

// Run executes the retry command.
func (c *RetryCmd) Run(deps *Dependencies) error {
	failed, err := deps.Records.FindByStatus(deps.Ctx, bookdl.StatusFailed)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}
	skipped, err := deps.Records.FindByStatus(deps.Ctx, bookdl.StatusSkipped)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}

	if len(failed)+len(skipped) == 0 {
		fmt.Fprintln(deps.Stdout, "No failed or skipped records to reset.")
		return nil
	}

	count, err := deps.Records.ResetFailed(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Reset %d records (%d failed, %d skipped) to pending.\n",
		count, len(failed), len(skipped))
	fmt.Fprintln(deps.Stdout, "Run 'bookdl download' to retry them.")
	return nil
}
