package transfer

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mjarosz/bookdl"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Ensure EbookExtractor implements bookdl.Extractor at compile time.
var _ bookdl.Extractor = (*EbookExtractor)(nil)

// EbookExtractor extracts ebook files from downloaded ZIP archives.
type EbookExtractor struct {
	keepArchive bool
	logger      *slog.Logger
}

// ExtractorOption configures an EbookExtractor.
type ExtractorOption func(*EbookExtractor)

// KeepArchive keeps the ZIP file after extraction instead of deleting it.
func KeepArchive(keep bool) ExtractorOption {
	return func(e *EbookExtractor) { e.keepArchive = keep }
}

// WithExtractorLogger sets the logger. Defaults to slog.Default().
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *EbookExtractor) { e.logger = logger }
}

// NewEbookExtractor creates an EbookExtractor.
func NewEbookExtractor(opts ...ExtractorOption) *EbookExtractor {
	e := &EbookExtractor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract writes every archive entry whose extension is in formats next to
// the archive as "<title>.<ext>". An empty result means the file is kept as
// the final artifact: either no entry matched, or the file is not an archive
// at all (some hosts serve the ebook directly instead of zipping it).
// Matching entries delete the archive afterwards unless KeepArchive was set.
func (e *EbookExtractor) Extract(archivePath, title string, formats []string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if !isZipFile(archivePath) {
			e.logger.Debug("not an archive, keeping file as-is", "name", filepath.Base(archivePath))
			return nil, nil
		}
		return nil, bookdl.WrapErrorf(err, bookdl.EPERMANENT, "invalid archive %s", filepath.Base(archivePath))
	}

	extracted, err := e.extractMatching(r, filepath.Dir(archivePath), title, formats)
	r.Close()
	if err != nil {
		return nil, err
	}

	if len(extracted) == 0 {
		e.logger.Warn("no target formats in archive",
			"archive", filepath.Base(archivePath),
			"formats", strings.Join(formats, ","),
		)
		return nil, nil
	}

	e.logger.Info("extraction complete",
		"archive", filepath.Base(archivePath),
		"files", len(extracted),
	)
	if !e.keepArchive {
		if err := os.Remove(archivePath); err != nil {
			e.logger.Warn("failed to remove archive", "path", archivePath, "err", err)
		}
	}
	return extracted, nil
}

func (e *EbookExtractor) extractMatching(r *zip.ReadCloser, destDir, title string, formats []string) ([]string, error) {
	targetExts := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		targetExts["."+strings.ToLower(strings.TrimPrefix(f, "."))] = struct{}{}
	}

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name := decodeEntryName(f)
		ext := strings.ToLower(filepath.Ext(name))
		if _, want := targetExts[ext]; !want {
			continue
		}

		finalPath := filepath.Join(destDir, title+ext)
		if _, err := os.Stat(finalPath); err == nil {
			e.logger.Debug("extracted file already exists", "name", filepath.Base(finalPath))
			extracted = append(extracted, finalPath)
			continue
		}

		if err := writeEntry(f, finalPath); err != nil {
			return nil, err
		}
		extracted = append(extracted, finalPath)
		e.logger.Debug("extracted entry", "from", name, "to", filepath.Base(finalPath))
	}
	return extracted, nil
}

// zipMagic holds the local-file-header, empty-archive, and spanned-archive
// ZIP signatures.
var zipMagic = [][]byte{
	{'P', 'K', 0x03, 0x04},
	{'P', 'K', 0x05, 0x06},
	{'P', 'K', 0x07, 0x08},
}

// isZipFile reports whether the file starts with a ZIP signature. Files
// without one are not corrupt archives, just not archives.
func isZipFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var header [4]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return false
	}
	for _, magic := range zipMagic {
		if bytes.Equal(header[:], magic) {
			return true
		}
	}
	return false
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return bookdl.WrapErrorf(err, bookdl.EPERMANENT, "reading archive entry %s", f.Name)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "creating %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dest)
		return bookdl.WrapErrorf(err, bookdl.EPERMANENT, "extracting %s", f.Name)
	}
	return out.Close()
}

// decodeEntryName repairs archive entry names written by legacy Windows
// tools, which store GBK bytes without the UTF-8 flag. Entries that already
// carry the flag, or that fail to decode, keep their raw name.
func decodeEntryName(f *zip.File) string {
	if !f.NonUTF8 {
		return f.Name
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().String(f.Name)
	if err != nil {
		return f.Name
	}
	return decoded
}
