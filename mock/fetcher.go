package mock

import (
	"context"

	"github.com/mjarosz/bookdl"
)

var _ bookdl.LinkFetcher = (*LinkFetcher)(nil)

// LinkFetcher is a mock implementation of bookdl.LinkFetcher.
type LinkFetcher struct {
	FetchLinkFn func(ctx context.Context, book *bookdl.Book) (*bookdl.DirectLink, error)
	CloseFn     func() error
}

func (f *LinkFetcher) FetchLink(ctx context.Context, book *bookdl.Book) (*bookdl.DirectLink, error) {
	return f.FetchLinkFn(ctx, book)
}

func (f *LinkFetcher) Close() error {
	if f.CloseFn == nil {
		return nil
	}
	return f.CloseFn()
}
