// Package catalog loads and filters the book catalog JSON and keeps a local
// copy of it up to date.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mjarosz/bookdl"
)

// Load reads a catalog JSON file into books, dropping entries without a
// title or link. Returns ENOTFOUND when the file does not exist so callers
// can point the user at fetch-data.
func Load(path string) ([]*bookdl.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bookdl.Errorf(bookdl.ENOTFOUND, "catalog %q not found, run fetch-data first", path)
		}
		return nil, bookdl.WrapErrorf(err, bookdl.EINTERNAL, "reading catalog %q", path)
	}

	var raw []*bookdl.Book
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, bookdl.WrapErrorf(err, bookdl.EINVALID, "parsing catalog %q", path)
	}

	books := make([]*bookdl.Book, 0, len(raw))
	for _, book := range raw {
		book.Title = strings.TrimSpace(book.Title)
		book.Author = strings.TrimSpace(book.Author)
		book.Category = strings.TrimSpace(book.Category)
		book.Link = strings.TrimSpace(book.Link)
		if book.Title == "" || book.Link == "" {
			continue
		}
		books = append(books, book)
	}
	return books, nil
}

// Filter holds catalog selection criteria. Zero values mean "no constraint".
type Filter struct {
	Categories        []string
	ExcludeCategories []string
	Keyword           string
	Limit             int
}

// Apply returns the books matching the filter, preserving catalog order.
func (f Filter) Apply(books []*bookdl.Book) []*bookdl.Book {
	include := toSet(f.Categories)
	exclude := toSet(f.ExcludeCategories)
	keyword := strings.ToLower(f.Keyword)

	var result []*bookdl.Book
	for _, book := range books {
		if include != nil {
			if _, ok := include[book.Category]; !ok {
				continue
			}
		}
		if _, ok := exclude[book.Category]; ok {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(book.Title), keyword) &&
			!strings.Contains(strings.ToLower(book.Author), keyword) {
			continue
		}
		result = append(result, book)
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result
}

// CategoryCount is one row of the catalog's category breakdown.
type CategoryCount struct {
	Name  string
	Count int
}

// Categories returns per-category book counts, largest first. Ties sort by
// name so the order is stable.
func Categories(books []*bookdl.Book) []CategoryCount {
	counts := make(map[string]int)
	for _, book := range books {
		counts[book.Category]++
	}

	result := make([]CategoryCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, CategoryCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Fetcher downloads the catalog JSON to a local file.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithClient overrides the HTTP client.
func WithClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a catalog Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads the catalog from url into path, validating that the body
// is a JSON array before replacing the local copy. Returns the number of
// entries downloaded.
func (f *Fetcher) Fetch(ctx context.Context, url, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.EINVALID, "building catalog request")
	}

	f.logger.Info("downloading catalog", "url", url)
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "downloading catalog")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, bookdl.Errorf(bookdl.ETRANSIENT, "catalog source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "reading catalog body")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.EINVALID, "catalog source returned invalid JSON")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.EINTERNAL, "creating catalog directory")
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return 0, bookdl.WrapErrorf(err, bookdl.EINTERNAL, "writing catalog %q", path)
	}

	f.logger.Info("catalog updated", "entries", len(entries), "path", path)
	return len(entries), nil
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
