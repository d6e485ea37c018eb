package main

import (
	"fmt"

	"github.com/mjarosz/bookdl"
)

// Run executes the fetch-data command.
func (c *FetchDataCmd) Run(deps *Dependencies) error {
	path := deps.Config.CatalogPath()
	entries, err := deps.Catalog.Fetch(deps.Ctx, deps.Config.CatalogURL, path)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Saved %d catalog entries to %s\n", entries, path)
	return nil
}
