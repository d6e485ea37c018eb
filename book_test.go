package bookdl_test

import (
	"strings"
	"testing"

	"github.com/mjarosz/bookdl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBook_UID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link string
		want string
	}{
		{
			name: "trailing path segment",
			link: "https://books.example.com/book/10019.html",
			want: "10019.html",
		},
		{
			name: "query string is stripped",
			link: "https://books.example.com/book/10019.html?ref=home",
			want: "10019.html",
		},
		{
			name: "fragment is stripped",
			link: "https://books.example.com/book/10019.html#reviews",
			want: "10019.html",
		},
		{
			name: "trailing slash is ignored",
			link: "https://books.example.com/book/10019/",
			want: "10019",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := &bookdl.Book{Link: tt.link}
			assert.Equal(t, tt.want, b.UID())
		})
	}

	t.Run("link without a path segment falls back to a hash", func(t *testing.T) {
		t.Parallel()
		b := &bookdl.Book{Link: "https://books.example.com"}
		uid := b.UID()
		assert.NotEmpty(t, uid)
		assert.NotContains(t, uid, "/")
		// Deterministic across calls.
		assert.Equal(t, uid, b.UID())
	})

	t.Run("same link yields the same identity", func(t *testing.T) {
		t.Parallel()
		a := &bookdl.Book{Title: "A", Link: "https://books.example.com/book/1.html"}
		b := &bookdl.Book{Title: "B", Link: "https://books.example.com/book/1.html"}
		assert.Equal(t, a.UID(), b.UID())
	})
}

func TestBook_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid book", func(t *testing.T) {
		t.Parallel()
		b := &bookdl.Book{Title: "三体", Link: "https://books.example.com/book/1.html"}
		assert.NoError(t, b.Validate())
	})

	t.Run("missing title", func(t *testing.T) {
		t.Parallel()
		b := &bookdl.Book{Link: "https://books.example.com/book/1.html"}
		err := b.Validate()
		require.Error(t, err)
		assert.Equal(t, bookdl.EINVALID, bookdl.ErrorCode(err))
	})

	t.Run("missing link", func(t *testing.T) {
		t.Parallel()
		b := &bookdl.Book{Title: "三体"}
		err := b.Validate()
		require.Error(t, err)
		assert.Equal(t, bookdl.EINVALID, bookdl.ErrorCode(err))
	})
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "book.epub", "book.epub"},
		{"illegal characters replaced", `a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{"control characters replaced", "a\x00b\x1fc", "a_b_c"},
		{"trailing dots and spaces trimmed", " book. ", "book"},
		{"multibyte name preserved", "智慧未来.zip", "智慧未来.zip"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, bookdl.SanitizeFilename(tt.in))
		})
	}

	t.Run("overly long names are truncated by runes", func(t *testing.T) {
		t.Parallel()
		long := strings.Repeat("智", 100)
		got := bookdl.SanitizeFilename(long)
		assert.Equal(t, 60, len([]rune(got)))
	})
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.True(t, bookdl.StatusCompleted.Terminal())
	assert.True(t, bookdl.StatusSkipped.Terminal())
	assert.False(t, bookdl.StatusPending.Terminal())
	assert.False(t, bookdl.StatusDownloading.Terminal())
	assert.False(t, bookdl.StatusFailed.Terminal())
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	b := &bookdl.Book{
		Title:    "三体",
		Author:   "刘慈欣",
		Category: "科幻",
		Link:     "https://books.example.com/book/1.html",
	}
	r := bookdl.NewRecord(b)

	assert.Equal(t, b.UID(), r.BookUID)
	assert.Equal(t, "三体", r.Title)
	assert.Equal(t, "刘慈欣", r.Author)
	assert.Equal(t, "科幻", r.Category)
	assert.Equal(t, b.Link, r.Link)
	assert.Equal(t, bookdl.StatusPending, r.Status)
}
