package bookdl

import "context"

// DirectLink is a time-limited, pre-authorized CDN URL serving the raw file,
// together with the filename and byte size the host declared for it. Direct
// links expire quickly and are never persisted as live state; they only hand
// off work from the acquisition stage to the transfer stage.
type DirectLink struct {
	URL      string
	Filename string
	Size     int64
}

// LinkFetcher obtains direct download links by driving the source site's
// browser-side flow. Implementations hide page navigation, download-button
// heuristics, and network response interception.
type LinkFetcher interface {
	// FetchLink navigates to the book's page and intercepts the CDN link.
	// Fails with ETRANSIENT when the site does not answer within the
	// configured window and EPROXY when the download control cannot be
	// found (the signature of an anti-automation block page).
	FetchLink(ctx context.Context, book *Book) (*DirectLink, error)

	// Close releases browser resources.
	Close() error
}

// LinkTask is the unit passed through the bounded queue between the two
// pipeline stages. It is owned exclusively by whichever stage currently
// holds it; ownership transfers at enqueue/dequeue.
type LinkTask struct {
	Book   *Book
	Record *DownloadRecord
	Link   *DirectLink
	Dest   string
}
