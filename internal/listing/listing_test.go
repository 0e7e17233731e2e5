package listing_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/listing"
)

const hostile = `<script>alert("x&y's")</script>`

// nodesWithClass parses fragment and returns every element carrying class.
func nodesWithClass(t *testing.T, fragment, class string) []*html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fragment))
	require.NoError(t, err)

	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "class" && hasClass(a.Val, class) {
					found = append(found, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func hasClass(attr, class string) bool {
	for _, c := range strings.Fields(attr) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func docs(n int) []api.Document {
	out := make([]api.Document, n)
	for i := range out {
		out[i] = api.Document{ID: int64(i + 1), Title: "Doc", PageCount: 3, FileSize: 2048}
	}
	return out
}

func TestRenderDocuments(t *testing.T) {
	t.Run("item count matches input test", func(t *testing.T) {
		for _, n := range []int{0, 1, 2, 7} {
			out, err := listing.RenderDocuments(docs(n), nil)
			require.NoError(t, err)

			assert.Len(t, nodesWithClass(t, string(out), "document-card"), n)
			empty := nodesWithClass(t, string(out), "empty-state")
			if n == 0 {
				assert.Len(t, empty, 1)
			} else {
				assert.Empty(t, empty)
			}
		}
	})

	t.Run("escapes user strings test", func(t *testing.T) {
		out, err := listing.RenderDocuments([]api.Document{{
			ID: 9, Title: hostile, Notes: hostile, ProductCode: hostile,
		}}, nil)
		require.NoError(t, err)

		assert.NotContains(t, string(out), hostile)
		assert.NotContains(t, string(out), "<script>")
		titles := nodesWithClass(t, string(out), "document-title")
		require.Len(t, titles, 1)
		assert.Equal(t, hostile, text(titles[0]))
	})

	t.Run("actions embed the record id test", func(t *testing.T) {
		out, err := listing.RenderDocuments([]api.Document{{ID: 42, Title: "A"}}, func(id int64) bool { return id == 42 })
		require.NoError(t, err)

		s := string(out)
		assert.Contains(t, s, `href="/viewer?id=42"`)
		assert.Contains(t, s, `href="/download/42"`)
		assert.Contains(t, s, `action="/document/42/delete"`)
		assert.Contains(t, s, `action="/document/42/bookmark"`)
		assert.Len(t, nodesWithClass(t, s, "bookmark-indicator"), 1)
		assert.Contains(t, s, "Remove bookmark")
	})
}

func TestRenderBookmarks(t *testing.T) {
	t.Run("empty state test", func(t *testing.T) {
		out, err := listing.RenderBookmarks(nil)
		require.NoError(t, err)
		assert.Len(t, nodesWithClass(t, string(out), "empty-state"), 1)
		assert.Empty(t, nodesWithClass(t, string(out), "bookmark-item"))
	})

	t.Run("items and escaping test", func(t *testing.T) {
		bms := []api.Bookmark{
			{ID: 1, Document: api.Document{ID: 3, Title: "Manual"}, PageNumber: 12, BookmarkName: hostile},
			{ID: 2, Document: api.Document{ID: 4, Title: "Guide"}, PageNumber: 1},
		}
		out, err := listing.RenderBookmarks(bms)
		require.NoError(t, err)

		s := string(out)
		assert.Len(t, nodesWithClass(t, s, "bookmark-item"), 2)
		assert.NotContains(t, s, hostile)
		names := nodesWithClass(t, s, "bookmark-name")
		require.Len(t, names, 1)
		assert.Equal(t, hostile, text(names[0]))
		assert.Contains(t, s, "Page 12")
	})
}

func TestFormatFileSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1048576, "1 MB"},
		{1234567, "1.18 MB"},
		{5 << 30, "5 GB"},
		{3 << 40, "3072 GB"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, listing.FormatFileSize(c.in), c.in)
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "", listing.FormatDate(api.Time{}))
	ts := api.NewTime(time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC))
	assert.Equal(t, "Mar 1, 2024 09:05", listing.FormatDate(ts))
}
