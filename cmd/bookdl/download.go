package main

import (
	"fmt"
	"sync"

	"github.com/mjarosz/bookdl"
	"github.com/mjarosz/bookdl/catalog"
	"github.com/mjarosz/bookdl/pipeline"
	"github.com/schollz/progressbar/v3"
)

// Run executes the download command.
func (c *DownloadCmd) Run(deps *Dependencies) error {
	books, err := catalog.Load(deps.Config.CatalogPath())
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}

	selected := catalog.Filter{
		Categories:        c.Categories,
		ExcludeCategories: deps.Config.ExcludeCategories,
		Keyword:           c.Keyword,
		Limit:             c.Limit,
	}.Apply(books)

	if len(selected) == 0 {
		fmt.Fprintln(deps.Stdout, "No books match the given filters.")
		return nil
	}

	fmt.Fprintf(deps.Stdout, "Selected %d books\n", len(selected))

	var mu sync.Mutex
	var bar *progressbar.ProgressBar
	deps.Scheduler.Progress = func(event pipeline.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch event.Type {
		case pipeline.ProgressStarted:
			bar = progressbar.NewOptions(event.Total,
				progressbar.OptionSetDescription("downloading"),
				progressbar.OptionSetWriter(deps.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		case pipeline.ProgressFailed:
			fmt.Fprintf(deps.Stderr, "  failed %s: %v\n", event.Title, event.Err)
			if bar != nil {
				_ = bar.Add(1)
			}
		case pipeline.ProgressSkipped:
			fmt.Fprintf(deps.Stderr, "  skip %s: %v\n", event.Title, event.Err)
			if bar != nil {
				_ = bar.Add(1)
			}
		case pipeline.ProgressCompleted:
			if bar != nil {
				_ = bar.Add(1)
			}
		case pipeline.ProgressFinished:
			if bar != nil {
				_ = bar.Finish()
			}
		}
	}
	deps.Scheduler.OnTransferProgress = func(title string, downloaded, total int64) {
		mu.Lock()
		defer mu.Unlock()
		if bar != nil {
			bar.Describe(fmt.Sprintf("downloading %s (%s)",
				pipeline.TruncateTitle(title, 20), pipeline.FormatBytes(downloaded)))
		}
	}

	result, err := deps.Scheduler.Run(deps.Ctx, selected)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Done: %d completed, %d failed, %d skipped, %d already done\n",
		result.Completed, result.Failed, result.Skipped, result.AlreadyDone)
	return printStats(deps)
}
