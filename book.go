package bookdl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Book is an immutable catalog entry describing a single downloadable title.
type Book struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Link     string   `json:"link"`
	Category string   `json:"category"`
	Language string   `json:"language"`
	Formats  []string `json:"formats"`
}

// UID derives the book's stable identity from the trailing path segment of
// its source link, with the query string stripped. Two books with the same
// link are the same book. Links without a usable path segment fall back to
// a hash of the whole link so the identity stays deterministic.
func (b *Book) UID() string {
	link := b.Link
	if i := strings.IndexAny(link, "?#"); i != -1 {
		link = link[:i]
	}
	link = strings.TrimRight(link, "/")
	if i := strings.LastIndex(link, "/"); i != -1 {
		if seg := link[i+1:]; seg != "" && !strings.Contains(seg, ":") {
			return seg
		}
	}
	return fmt.Sprintf("%x", xxhash.Sum64String(b.Link))
}

// Validate returns an error if the book cannot be downloaded.
func (b *Book) Validate() error {
	if b.Title == "" {
		return Errorf(EINVALID, "book title required")
	}
	if b.Link == "" {
		return Errorf(EINVALID, "book link required")
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeFilename strips characters that are illegal in Windows or Unix
// filenames and truncates overly long names. Multi-byte titles are measured
// in bytes, so the rune cut is conservative.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(name) > 200 {
		runes := []rune(name)
		if len(runes) > 60 {
			name = string(runes[:60])
		}
	}
	return strings.Trim(name, ". ")
}
