package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/demo"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/notify"
	"github.com/drummonds/pdfshelf/internal/samplepdf"
	"github.com/drummonds/pdfshelf/internal/viewer"
)

// newDemoAPI serves a seeded demo store and returns its URL.
func newDemoAPI(t *testing.T) string {
	t.Helper()
	store, err := demo.NewStore()
	require.NoError(t, err)
	require.NoError(t, seedDemo(store, "alice"))
	srv := httptest.NewServer(demo.NewServer(store, logging.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

// runCLI executes the root command against apiURL as alice.
func runCLI(t *testing.T, apiURL string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append(args,
		"--config", filepath.Join(t.TempDir(), "none.yaml"),
		"--api", apiURL,
		"--owner", "alice",
		"--log-level", "error",
	))
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	t.Run("ls test", func(t *testing.T) {
		url := newDemoAPI(t)
		out, _, err := runCLI(t, url, "ls", "--output", "json")
		require.NoError(t, err)
		var docs []api.Document
		require.NoError(t, json.Unmarshal([]byte(out), &docs))
		assert.Len(t, docs, 4)

		out, _, err = runCLI(t, url, "ls", "--output", "table")
		require.NoError(t, err)
		assert.Contains(t, out, "Installation Guide")
		assert.Contains(t, out, "PX-100")
		assert.Contains(t, out, "*")
	})

	t.Run("search test", func(t *testing.T) {
		url := newDemoAPI(t)
		out, _, err := runCLI(t, url, "search", "safety", "--output", "yaml")
		require.NoError(t, err)
		var docs []api.Document
		require.NoError(t, yaml.Unmarshal([]byte(out), &docs))
		require.Len(t, docs, 1)
		assert.Equal(t, "Safety Data Sheet", docs[0].Title)
	})

	t.Run("show test", func(t *testing.T) {
		url := newDemoAPI(t)
		out, _, err := runCLI(t, url, "show", "1", "--output", "json")
		require.NoError(t, err)
		var detail struct {
			Title    string       `json:"title"`
			Bookmark *api.Bookmark `json:"bookmark"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &detail))
		assert.Equal(t, "Installation Guide", detail.Title)
		require.NotNil(t, detail.Bookmark)
		assert.Equal(t, 5, detail.Bookmark.PageNumber)

		_, _, err = runCLI(t, url, "show", "zero", "--output", "json")
		assert.ErrorContains(t, err, "invalid document id")
	})

	t.Run("bookmark lifecycle test", func(t *testing.T) {
		url := newDemoAPI(t)
		_, stderr, err := runCLI(t, url, "bookmark", "4", "--page", "2", "--name", "Intro", "--output", "table")
		require.NoError(t, err)
		assert.Contains(t, stderr, "Bookmarked page 2")

		out, _, err := runCLI(t, url, "bookmarks", "--filter", "intro", "--output", "json")
		require.NoError(t, err)
		var bms []api.Bookmark
		require.NoError(t, json.Unmarshal([]byte(out), &bms))
		require.Len(t, bms, 1)
		assert.Equal(t, 2, bms[0].PageNumber)
		assert.Equal(t, int64(4), bms[0].Document.ID)

		_, stderr, err = runCLI(t, url, "unbookmark", "4", "--output", "table")
		require.NoError(t, err)
		assert.Contains(t, stderr, "Bookmark removed successfully")

		_, _, err = runCLI(t, url, "unbookmark", "4", "--output", "table")
		assert.ErrorContains(t, err, "not bookmarked")

		_, _, err = runCLI(t, url, "bookmark", "4", "--page", "0", "--name", "", "--output", "table")
		assert.ErrorContains(t, err, "page must be at least 1")
	})

	t.Run("rm test", func(t *testing.T) {
		url := newDemoAPI(t)
		_, stderr, err := runCLI(t, url, "rm", "2", "--output", "table")
		require.NoError(t, err)
		assert.Contains(t, stderr, "Document deleted successfully")

		out, _, err := runCLI(t, url, "ls", "--output", "json")
		require.NoError(t, err)
		var docs []api.Document
		require.NoError(t, json.Unmarshal([]byte(out), &docs))
		assert.Len(t, docs, 3)

		_, _, err = runCLI(t, url, "rm", "2", "--output", "table")
		assert.Error(t, err)
	})

	t.Run("upload and download test", func(t *testing.T) {
		url := newDemoAPI(t)
		dir := t.TempDir()
		in := filepath.Join(dir, "wiring.pdf")
		require.NoError(t, os.WriteFile(in, samplepdf.New("Wiring", 3), 0644))

		out, stderr, err := runCLI(t, url, "upload", in, "--title", "Wiring Diagram", "--output", "table")
		require.NoError(t, err)
		assert.Contains(t, out, "wiring.pdf")
		assert.Contains(t, out, "3 pages")
		assert.Contains(t, stderr, "Document uploaded successfully!")

		dst := filepath.Join(dir, "copy.pdf")
		out, _, err = runCLI(t, url, "download", "1", "-o", dst, "--output", "table")
		require.NoError(t, err)
		assert.Contains(t, out, "Wrote "+dst)
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	})

	t.Run("upload rejects non pdf test", func(t *testing.T) {
		url := newDemoAPI(t)
		in := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(in, []byte("just text"), 0644))

		_, stderr, err := runCLI(t, url, "upload", in, "--title", "Notes", "--output", "table")
		assert.Error(t, err)
		assert.Contains(t, stderr, "Please select a PDF file")
	})
}

func TestRenderPage(t *testing.T) {
	data := samplepdf.New("Render", 3)

	t.Run("numeric zoom test", func(t *testing.T) {
		frame, err := renderPage(context.Background(), stubEngine{}, data, 2, viewer.Scale(0.5), image.Point{}, viewer.DefaultWatermark())
		require.NoError(t, err)
		assert.Equal(t, 2, frame.Page)
		assert.Equal(t, 3, frame.Total)
		assert.Equal(t, 306, frame.Image.Bounds().Dx())
		assert.True(t, frame.PrevEnabled)
		assert.True(t, frame.NextEnabled)
	})

	t.Run("fit zoom uses the viewport test", func(t *testing.T) {
		frame, err := renderPage(context.Background(), stubEngine{}, data, 1, viewer.Zoom{Mode: viewer.Fit}, image.Pt(652, 900), viewer.DefaultWatermark())
		require.NoError(t, err)
		assert.InDelta(t, 1.0, frame.Scale, 1e-9)
	})

	t.Run("page out of range test", func(t *testing.T) {
		_, err := renderPage(context.Background(), stubEngine{}, data, 4, viewer.Scale(1), image.Point{}, viewer.DefaultWatermark())
		assert.ErrorIs(t, err, viewer.ErrPageOutOfRange)
	})

	t.Run("not a pdf test", func(t *testing.T) {
		_, err := renderPage(context.Background(), stubEngine{}, []byte("hello"), 1, viewer.Scale(1), image.Point{}, viewer.DefaultWatermark())
		assert.Error(t, err)
	})

	t.Run("write png test", func(t *testing.T) {
		frame, err := renderPage(context.Background(), stubEngine{}, data, 1, viewer.Scale(0.25), image.Point{}, viewer.DefaultWatermark())
		require.NoError(t, err)
		out := filepath.Join(t.TempDir(), "page.png")
		require.NoError(t, writePNG(out, frame.Image))
		f, err := os.Open(out)
		require.NoError(t, err)
		defer f.Close()
		cfg, format, err := image.DecodeConfig(f)
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 153, cfg.Width)
	})
}

func TestOutput(t *testing.T) {
	docs := []api.Document{
		{ID: 7, Title: "Service Manual", PageCount: 40, FileSize: 2048, ProductCode: "SM-1"},
		{ID: 8, Title: "Parts List", PageCount: 3, FileSize: 512},
	}

	t.Run("documents table test", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printDocuments(&buf, "table", docs, func(id int64) bool { return id == 8 }))
		out := buf.String()
		assert.Contains(t, out, "TITLE")
		assert.Contains(t, out, "Service Manual")
		assert.Contains(t, out, "SM-1")
		assert.Contains(t, out, "2 KB")
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), "*"))
	})

	t.Run("empty lists test", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printDocuments(&buf, "", nil, nil))
		require.NoError(t, printBookmarks(&buf, "", nil))
		assert.Equal(t, "No documents found\nNo bookmarks yet\n", buf.String())
	})

	t.Run("structured formats test", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printDocuments(&buf, "yaml", docs[:1], nil))
		assert.Contains(t, buf.String(), "title: Service Manual")
		assert.Contains(t, buf.String(), "product_code: SM-1")

		buf.Reset()
		bms := []api.Bookmark{{ID: 1, Document: docs[0], PageNumber: 12, BookmarkName: "Torque specs"}}
		require.NoError(t, printBookmarks(&buf, "json", bms))
		assert.Contains(t, buf.String(), `"bookmarkName": "Torque specs"`)

		assert.ErrorContains(t, printBookmarks(&buf, "xml", bms), "unknown output format")
	})

	t.Run("document detail test", func(t *testing.T) {
		var buf bytes.Buffer
		bm := &api.Bookmark{PageNumber: 3, BookmarkName: "Exploded view"}
		require.NoError(t, printDocument(&buf, "table", documentDetail{Document: docs[0], Bookmark: bm}))
		assert.Contains(t, buf.String(), "page 3 Exploded view")

		buf.Reset()
		require.NoError(t, printDocument(&buf, "yaml", documentDetail{Document: docs[1]}))
		assert.Contains(t, buf.String(), "title: Parts List")
		assert.NotContains(t, buf.String(), "bookmark")
	})

	t.Run("console notifier test", func(t *testing.T) {
		var buf bytes.Buffer
		n := consoleNotifier{w: &buf}.Notify("Document deleted successfully", notify.Success)
		assert.Equal(t, notify.Success, n.Severity)
		assert.Contains(t, buf.String(), "success")
		assert.Contains(t, buf.String(), ": Document deleted successfully\n")
	})
}
