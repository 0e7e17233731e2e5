package library_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/demo"
	"github.com/drummonds/pdfshelf/internal/library"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/notify"
	"github.com/drummonds/pdfshelf/internal/samplepdf"
	"github.com/drummonds/pdfshelf/internal/upload"
)

func newDemoClient(t *testing.T) *api.Client {
	t.Helper()
	store, err := demo.NewStore()
	require.NoError(t, err)
	srv := httptest.NewServer(demo.NewServer(store, logging.Nop()).Handler())
	t.Cleanup(srv.Close)

	cli, err := api.New(srv.URL, api.WithOwner("tester"), api.WithLogger(logging.Nop()))
	require.NoError(t, err)
	return cli
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	cli := newDemoClient(t)
	center := notify.NewCenter(time.Minute, logging.Nop(), nil)
	lib := library.New(cli, center, logging.Nop())
	up := upload.NewController(cli, lib, center, logging.Nop())

	require.NoError(t, lib.Load(ctx))
	assert.Empty(t, lib.Documents())

	file := &upload.File{Name: "manual.pdf", ContentType: "application/pdf", Data: samplepdf.New("Manual", 10)}
	res, err := up.Submit(ctx, file, upload.Metadata{Title: "Manual"})
	require.NoError(t, err)

	docs := lib.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, 10, docs[0].PageCount)
	assert.Equal(t, "Manual", docs[0].Title)
	assert.Equal(t, res.DocumentID, docs[0].ID)

	require.NoError(t, lib.Search(ctx, "Manual"))
	assert.Len(t, lib.Documents(), 1)
	require.NoError(t, lib.Search(ctx, "Other"))
	assert.Empty(t, lib.Documents())
	require.NoError(t, lib.Search(ctx, ""))

	require.NoError(t, lib.Delete(ctx, res.DocumentID))
	assert.Empty(t, lib.Documents())
	n, _ := center.Current()
	assert.Equal(t, "Document deleted successfully", n.Message)

	_, err = cli.GetDocument(ctx, res.DocumentID)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestToggleBookmark(t *testing.T) {
	ctx := context.Background()
	cli := newDemoClient(t)
	center := notify.NewCenter(time.Minute, logging.Nop(), nil)
	lib := library.New(cli, center, logging.Nop())
	up := upload.NewController(cli, lib, center, logging.Nop())

	res, err := up.Submit(ctx, &upload.File{Name: "d.pdf", Data: samplepdf.New("D", 6)}, upload.Metadata{})
	require.NoError(t, err)
	id := res.DocumentID

	on, err := lib.ToggleBookmark(ctx, id, 4, "")
	require.NoError(t, err)
	assert.True(t, on)
	bm, ok, err := lib.BookmarkStatus(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, bm.PageNumber)
	assert.True(t, lib.IsBookmarked(id))

	on, err = lib.ToggleBookmark(ctx, id, 4, "")
	require.NoError(t, err)
	assert.False(t, on)
	_, ok, err = lib.BookmarkStatus(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, lib.IsBookmarked(id))
}

// flakyClient serves fixed lists and fails on demand.
type flakyClient struct {
	mu        sync.Mutex
	docs      []api.Document
	bms       []api.Bookmark
	failList  bool
	searches  []string
	deleteErr error
}

func (f *flakyClient) ListDocuments(context.Context) ([]api.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, api.ErrTransport
	}
	return f.docs, nil
}

func (f *flakyClient) SearchDocuments(_ context.Context, q string) ([]api.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)
	return f.docs[:1], nil
}

func (f *flakyClient) DeleteDocument(context.Context, int64) error { return f.deleteErr }

func (f *flakyClient) ListBookmarks(context.Context) ([]api.Bookmark, error) { return f.bms, nil }

func (f *flakyClient) GetBookmark(context.Context, int64) (*api.Bookmark, bool, error) {
	return nil, false, nil
}

func (f *flakyClient) CreateBookmark(context.Context, int64, int, string) (*api.Bookmark, error) {
	return &api.Bookmark{}, nil
}

func (f *flakyClient) DeleteBookmark(context.Context, int64) error { return nil }

func (f *flakyClient) searched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

func TestPartialFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("failed refresh keeps stale lists test", func(t *testing.T) {
		fc := &flakyClient{docs: []api.Document{{ID: 1}, {ID: 2}}}
		center := notify.NewCenter(time.Minute, logging.Nop(), nil)
		lib := library.New(fc, center, logging.Nop())
		require.NoError(t, lib.Refresh(ctx))

		fc.mu.Lock()
		fc.failList = true
		fc.mu.Unlock()

		require.NoError(t, lib.Delete(ctx, 2))
		assert.Len(t, lib.Documents(), 2)
		n, _ := center.Current()
		assert.Equal(t, notify.Success, n.Severity)
	})

	t.Run("failed delete reports server text test", func(t *testing.T) {
		fc := &flakyClient{deleteErr: &api.StatusError{Code: 500, Message: "disk full"}}
		center := notify.NewCenter(time.Minute, logging.Nop(), nil)
		lib := library.New(fc, center, logging.Nop())

		err := lib.Delete(ctx, 1)
		assert.Error(t, err)
		n, _ := center.Current()
		assert.Equal(t, notify.Error, n.Severity)
		assert.Contains(t, n.Message, "disk full")
	})

	t.Run("load failure notifies test", func(t *testing.T) {
		fc := &flakyClient{failList: true}
		center := notify.NewCenter(time.Minute, logging.Nop(), nil)
		lib := library.New(fc, center, logging.Nop())

		assert.True(t, errors.Is(lib.Load(ctx), api.ErrTransport))
		_, ok := center.Current()
		assert.True(t, ok)
	})
}

func TestFind(t *testing.T) {
	ctx := context.Background()

	t.Run("leaves the cached list alone test", func(t *testing.T) {
		fc := &flakyClient{docs: []api.Document{{ID: 1, Title: "Manual"}, {ID: 2}}}
		lib := library.New(fc, notify.NewCenter(time.Minute, logging.Nop(), nil), logging.Nop())
		require.NoError(t, lib.Refresh(ctx))

		docs, err := lib.Find(ctx, "  manual ")
		require.NoError(t, err)
		assert.Len(t, docs, 1)
		assert.Equal(t, []string{"manual"}, fc.searched())
		assert.Len(t, lib.Documents(), 2)
		assert.Equal(t, "", lib.Query())

		docs, err = lib.Find(ctx, "")
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("concurrent queries test", func(t *testing.T) {
		fc := &flakyClient{docs: []api.Document{{ID: 1, Title: "Manual"}, {ID: 2}}}
		lib := library.New(fc, notify.NewCenter(time.Minute, logging.Nop(), nil), logging.Nop())

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				docs, err := lib.Find(ctx, "manual")
				assert.NoError(t, err)
				assert.Len(t, docs, 1)
			}()
			go func() {
				defer wg.Done()
				docs, err := lib.Find(ctx, "")
				assert.NoError(t, err)
				assert.Len(t, docs, 2)
			}()
		}
		wg.Wait()
		assert.Len(t, fc.searched(), 20)
	})

	t.Run("failure notifies test", func(t *testing.T) {
		fc := &flakyClient{failList: true}
		center := notify.NewCenter(time.Minute, logging.Nop(), nil)
		lib := library.New(fc, center, logging.Nop())

		_, err := lib.Find(ctx, "")
		assert.ErrorIs(t, err, api.ErrTransport)
		n, ok := center.Current()
		require.True(t, ok)
		assert.Contains(t, n.Message, "Error loading documents")
	})
}

func TestFilterBookmarks(t *testing.T) {
	fc := &flakyClient{bms: []api.Bookmark{
		{Document: api.Document{ID: 1, Title: "Engine Manual"}, BookmarkName: "Torque"},
		{Document: api.Document{ID: 2, Title: "Wiring"}, BookmarkName: "Fuses"},
	}}
	lib := library.New(fc, notify.NewCenter(time.Minute, logging.Nop(), nil), logging.Nop())
	require.NoError(t, lib.Refresh(context.Background()))

	assert.Len(t, lib.FilterBookmarks(""), 2)
	assert.Len(t, lib.FilterBookmarks("manual"), 1)
	assert.Len(t, lib.FilterBookmarks("FUSES"), 1)
	assert.Empty(t, lib.FilterBookmarks("gearbox"))
}
