package bookdl

import "context"

// TransferProgressFunc reports transfer progress as bytes arrive.
type TransferProgressFunc func(downloaded, total int64)

// Downloader streams a file over HTTP with resumable semantics.
type Downloader interface {
	// Download fetches url into dest, resuming a same-named partial
	// artifact when the server honors byte ranges. Returns the number of
	// bytes on disk once the file is complete and renamed into place.
	//
	// Errors carry taxonomy codes: EEXPIRED for 403/404/410 responses,
	// EPERMANENT when the declared size exceeds the configured cap, and
	// ETRANSIENT for everything else.
	Download(ctx context.Context, url, dest string, progress TransferProgressFunc) (int64, error)
}

// Extractor pulls ebook files out of a downloaded archive.
type Extractor interface {
	// Extract writes every archive entry whose extension is in formats to
	// the archive's directory as "<title>.<ext>", repairing mis-encoded
	// entry names first. Returns the extracted paths; an empty slice means
	// the archive held no matching entries and should be kept as-is.
	// Corrupt archives fail with EPERMANENT.
	Extract(archivePath, title string, formats []string) ([]string, error)
}
