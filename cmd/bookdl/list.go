package main

import (
	"fmt"
	"strings"

	"github.com/mjarosz/bookdl"
	"github.com/mjarosz/bookdl/catalog"
)

// Run executes the list command.
func (c *ListCmd) Run(deps *Dependencies) error {
	books, err := catalog.Load(deps.Config.CatalogPath())
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", bookdl.ErrorMessage(err))
		return err
	}

	if c.Categories {
		counts := catalog.Categories(books)
		total := 0
		for _, cc := range counts {
			fmt.Fprintf(deps.Stdout, "%6d  %s\n", cc.Count, cc.Name)
			total += cc.Count
		}
		fmt.Fprintf(deps.Stdout, "%6d  total (%d categories)\n", total, len(counts))
		return nil
	}

	selected := catalog.Filter{
		Categories:        c.Category,
		ExcludeCategories: deps.Config.ExcludeCategories,
		Keyword:           c.Keyword,
		Limit:             c.Limit,
	}.Apply(books)

	if len(selected) == 0 {
		fmt.Fprintln(deps.Stdout, "No books match the given filters.")
		return nil
	}

	for i, book := range selected {
		fmt.Fprintf(deps.Stdout, "%4d  %s  %s  [%s]  %s\n",
			i+1, book.Title, book.Author, book.Category, strings.Join(book.Formats, ","))
	}
	return nil
}
