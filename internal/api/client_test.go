package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/logging"
)

func newClient(t *testing.T, h http.HandlerFunc, opts ...api.Option) *api.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]api.Option{api.WithLogger(logging.Nop())}, opts...)
	cli, err := api.New(srv.URL, opts...)
	require.NoError(t, err)
	return cli
}

func TestNew(t *testing.T) {
	t.Run("default base path test", func(t *testing.T) {
		cli, err := api.New("http://localhost:8080")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/api/pdf", cli.BaseURL())
	})

	t.Run("explicit base path test", func(t *testing.T) {
		cli, err := api.New("http://localhost:8080/pdf/")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/pdf", cli.BaseURL())
	})

	t.Run("relative url test", func(t *testing.T) {
		_, err := api.New("localhost:8080")
		assert.Error(t, err)
	})
}

func TestEnvelope(t *testing.T) {
	t.Run("success data test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/pdf/documents", r.URL.Path)
			fmt.Fprint(w, `{"success":true,"data":[{"id":7,"title":"Manual","pageCount":10,"fileSize":2048,"uploadDate":"2024-03-01 10:11:12"}]}`)
		})

		docs, err := cli.ListDocuments(context.Background())
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, int64(7), docs[0].ID)
		assert.Equal(t, 10, docs[0].PageCount)
		assert.Equal(t, 2024, docs[0].UploadDate.Year())
	})

	t.Run("success false test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success":false,"message":"Search failed"}`)
		})

		_, err := cli.SearchDocuments(context.Background(), "x")
		var se *api.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "Search failed", api.Message(err))
	})

	t.Run("not found test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"success":false,"message":"Document not found"}`)
		})

		_, err := cli.GetDocument(context.Background(), 3)
		assert.ErrorIs(t, err, api.ErrNotFound)
		assert.Equal(t, "Document not found", api.Message(err))
	})

	t.Run("long plain error body test", func(t *testing.T) {
		body := "a" + strings.Repeat("é", 150)
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, body)
		})

		_, err := cli.ListDocuments(context.Background())
		msg := api.Message(err)
		assert.True(t, utf8.ValidString(msg))
		assert.True(t, strings.HasSuffix(msg, "..."))
		assert.True(t, strings.HasPrefix(body, strings.TrimSuffix(msg, "...")))
		assert.Equal(t, 199, len(msg)-len("..."))
	})

	t.Run("malformed body test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>oops</html>`)
		})

		_, err := cli.ListBookmarks(context.Background())
		assert.ErrorIs(t, err, api.ErrPayload)
	})

	t.Run("empty body test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
		})

		assert.NoError(t, cli.DeleteDocument(context.Background(), 1))
	})
}

func TestTransport(t *testing.T) {
	t.Run("unreachable server test", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		cli, err := api.New(url, api.WithLogger(logging.Nop()))
		require.NoError(t, err)
		err = cli.Ping(context.Background())
		assert.ErrorIs(t, err, api.ErrTransport)
	})

	t.Run("timeout test", func(t *testing.T) {
		release := make(chan struct{})
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}, api.WithTimeout(50*time.Millisecond))
		defer close(release)

		_, err := cli.ListDocuments(context.Background())
		assert.ErrorIs(t, err, api.ErrTransport)
	})
}

func TestBinary(t *testing.T) {
	t.Run("content disposition test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", `attachment; filename="watermarked_manual.pdf"`)
			fmt.Fprint(w, "%PDF-1.4")
		})

		dl, err := cli.DownloadDocument(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "watermarked_manual.pdf", dl.Filename)
		assert.Equal(t, "%PDF-1.4", string(dl.Data))
	})

	t.Run("default filename test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "%PDF-1.4")
		})

		dl, err := cli.DownloadDocument(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "watermarked_document.pdf", dl.Filename)
	})

	t.Run("empty body test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {})

		_, err := cli.ViewDocument(context.Background(), 1)
		assert.ErrorIs(t, err, api.ErrPayload)
	})
}

func TestBookmark(t *testing.T) {
	t.Run("missing bookmark test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		bm, ok, err := cli.GetBookmark(context.Background(), 4)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, bm)
	})

	t.Run("owner header and query test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "alice", r.Header.Get(api.OwnerHeader))
			assert.Equal(t, "/api/pdf/bookmark/4", r.URL.Path)
			assert.Equal(t, "12", r.URL.Query().Get("page"))
			assert.Equal(t, "Intro", r.URL.Query().Get("name"))
			fmt.Fprint(w, `{"success":true,"data":{"id":1,"pageNumber":12,"bookmarkName":"Intro","pdfDocument":{"id":4}}}`)
		}, api.WithOwner("alice"))

		bm, err := cli.CreateBookmark(context.Background(), 4, 12, "Intro")
		require.NoError(t, err)
		assert.Equal(t, 12, bm.PageNumber)
		assert.Equal(t, int64(4), bm.Document.ID)
	})

	t.Run("server error is not absence test", func(t *testing.T) {
		cli := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, _, err := cli.GetBookmark(context.Background(), 4)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, api.ErrNotFound))
	})
}
