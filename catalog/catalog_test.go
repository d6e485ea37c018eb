package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mjarosz/bookdl"
	"github.com/mjarosz/bookdl/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `[
	{"title":"三体","author":"刘慈欣","link":"https://books.example.com/book/1.html","category":"科幻"},
	{"title":"活着","author":"余华","link":"https://books.example.com/book/2.html","category":"文学"},
	{"title":"  ","author":"","link":"https://books.example.com/book/3.html","category":"文学"},
	{"title":"三体II","author":"刘慈欣","link":"https://books.example.com/book/4.html","category":"科幻"},
	{"title":"No Link","author":"x","link":"","category":"文学"}
]`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "all-books.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("loads valid entries and drops incomplete ones", func(t *testing.T) {
		t.Parallel()
		books, err := catalog.Load(writeCatalog(t, sampleCatalog))
		require.NoError(t, err)
		require.Len(t, books, 3)
		assert.Equal(t, "三体", books[0].Title)
		assert.Equal(t, "科幻", books[0].Category)
	})

	t.Run("missing file returns ENOTFOUND", func(t *testing.T) {
		t.Parallel()
		_, err := catalog.Load(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.Equal(t, bookdl.ENOTFOUND, bookdl.ErrorCode(err))
	})

	t.Run("invalid json returns EINVALID", func(t *testing.T) {
		t.Parallel()
		_, err := catalog.Load(writeCatalog(t, "{not json"))
		require.Error(t, err)
		assert.Equal(t, bookdl.EINVALID, bookdl.ErrorCode(err))
	})
}

func TestFilter(t *testing.T) {
	t.Parallel()

	books, err := catalog.Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	t.Run("no constraints returns everything", func(t *testing.T) {
		t.Parallel()
		assert.Len(t, catalog.Filter{}.Apply(books), 3)
	})

	t.Run("filters by category", func(t *testing.T) {
		t.Parallel()
		result := catalog.Filter{Categories: []string{"科幻"}}.Apply(books)
		require.Len(t, result, 2)
		assert.Equal(t, "三体", result[0].Title)
		assert.Equal(t, "三体II", result[1].Title)
	})

	t.Run("excludes categories", func(t *testing.T) {
		t.Parallel()
		result := catalog.Filter{ExcludeCategories: []string{"科幻"}}.Apply(books)
		require.Len(t, result, 1)
		assert.Equal(t, "活着", result[0].Title)
	})

	t.Run("keyword matches title or author case-insensitively", func(t *testing.T) {
		t.Parallel()
		assert.Len(t, catalog.Filter{Keyword: "刘慈欣"}.Apply(books), 2)
		assert.Len(t, catalog.Filter{Keyword: "活着"}.Apply(books), 1)
		assert.Empty(t, catalog.Filter{Keyword: "missing"}.Apply(books))
	})

	t.Run("limit caps the result", func(t *testing.T) {
		t.Parallel()
		assert.Len(t, catalog.Filter{Limit: 2}.Apply(books), 2)
	})
}

func TestCategories(t *testing.T) {
	t.Parallel()

	books, err := catalog.Load(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	counts := catalog.Categories(books)
	require.Len(t, counts, 2)
	assert.Equal(t, catalog.CategoryCount{Name: "科幻", Count: 2}, counts[0])
	assert.Equal(t, catalog.CategoryCount{Name: "文学", Count: 1}, counts[1])
}

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("downloads and persists a valid catalog", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(sampleCatalog))
		}))
		defer srv.Close()

		path := filepath.Join(t.TempDir(), "data", "all-books.json")
		n, err := catalog.NewFetcher().Fetch(context.Background(), srv.URL, path)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		books, err := catalog.Load(path)
		require.NoError(t, err)
		assert.Len(t, books, 3)
	})

	t.Run("rejects non-200 responses", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := catalog.NewFetcher().Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x.json"))
		require.Error(t, err)
		assert.Equal(t, bookdl.ETRANSIENT, bookdl.ErrorCode(err))
	})

	t.Run("rejects invalid JSON without touching the local copy", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>rate limited</html>"))
		}))
		defer srv.Close()

		path := writeCatalog(t, sampleCatalog)
		_, err := catalog.NewFetcher().Fetch(context.Background(), srv.URL, path)
		require.Error(t, err)
		assert.Equal(t, bookdl.EINVALID, bookdl.ErrorCode(err))

		books, err := catalog.Load(path)
		require.NoError(t, err)
		assert.Len(t, books, 3)
	})
}
