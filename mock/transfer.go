package mock

import (
	"context"

	"github.com/mjarosz/bookdl"
)

var _ bookdl.Downloader = (*Downloader)(nil)

// Downloader is a mock implementation of bookdl.Downloader.
type Downloader struct {
	DownloadFn func(ctx context.Context, url, dest string, progress bookdl.TransferProgressFunc) (int64, error)
}

func (d *Downloader) Download(ctx context.Context, url, dest string, progress bookdl.TransferProgressFunc) (int64, error) {
	return d.DownloadFn(ctx, url, dest, progress)
}

var _ bookdl.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of bookdl.Extractor.
type Extractor struct {
	ExtractFn func(archivePath, title string, formats []string) ([]string, error)
}

func (e *Extractor) Extract(archivePath, title string, formats []string) ([]string, error) {
	return e.ExtractFn(archivePath, title, formats)
}
