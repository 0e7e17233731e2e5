// Package library owns the cached document and bookmark lists and the
// actions that mutate them: search, delete and bookmark toggling.
package library

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/drummonds/pdfshelf/internal/api"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/notify"
)

// Client is the subset of *api.Client the controller needs.
type Client interface {
	ListDocuments(ctx context.Context) ([]api.Document, error)
	SearchDocuments(ctx context.Context, query string) ([]api.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	ListBookmarks(ctx context.Context) ([]api.Bookmark, error)
	GetBookmark(ctx context.Context, documentID int64) (*api.Bookmark, bool, error)
	CreateBookmark(ctx context.Context, documentID int64, page int, name string) (*api.Bookmark, error)
	DeleteBookmark(ctx context.Context, documentID int64) error
}

// Notifier reports outcomes to the user.
type Notifier interface {
	Notify(message string, severity notify.Severity) notify.Notification
}

// Controller keeps the lists shown to the user. Lists are replaced as a
// whole; a failed refresh leaves the previous lists in place.
type Controller struct {
	client   Client
	notifier Notifier
	logger   logging.Logger

	// mutation serializes delete and bookmark actions with their refresh.
	mutation sync.Mutex

	mu        sync.RWMutex
	docs      []api.Document
	bookmarks []api.Bookmark
	query     string
}

// New creates a Controller. Call Refresh to load the lists.
func New(client Client, notifier Notifier, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.New("library")
	}
	return &Controller{client: client, notifier: notifier, logger: logger}
}

// Documents returns the cached documents for the current query.
func (c *Controller) Documents() []api.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]api.Document(nil), c.docs...)
}

// Bookmarks returns the cached bookmarks.
func (c *Controller) Bookmarks() []api.Bookmark {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]api.Bookmark(nil), c.bookmarks...)
}

// Query returns the current search query.
func (c *Controller) Query() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.query
}

// IsBookmarked reports whether the cached bookmarks include documentID.
func (c *Controller) IsBookmarked(documentID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, bm := range c.bookmarks {
		if bm.Document.ID == documentID {
			return true
		}
	}
	return false
}

// FilterBookmarks matches query against the cached bookmarks' document
// title and name, case-insensitively, without a network call.
func (c *Controller) FilterBookmarks(query string) []api.Bookmark {
	q := strings.ToLower(strings.TrimSpace(query))
	bms := c.Bookmarks()
	if q == "" {
		return bms
	}
	out := []api.Bookmark{}
	for _, bm := range bms {
		if strings.Contains(strings.ToLower(bm.Document.Title), q) ||
			strings.Contains(strings.ToLower(bm.BookmarkName), q) {
			out = append(out, bm)
		}
	}
	return out
}

// Refresh reloads documents and bookmarks concurrently.
func (c *Controller) Refresh(ctx context.Context) error {
	query := c.Query()

	var docs []api.Document
	var bms []api.Bookmark
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = c.fetchDocuments(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		bms, err = c.client.ListBookmarks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh library: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.query == query {
		c.docs = docs
	}
	c.bookmarks = bms
	return nil
}

// RefreshBookmarks reloads only the bookmarks.
func (c *Controller) RefreshBookmarks(ctx context.Context) error {
	bms, err := c.client.ListBookmarks(ctx)
	if err != nil {
		return fmt.Errorf("refresh bookmarks: %w", err)
	}
	c.mu.Lock()
	c.bookmarks = bms
	c.mu.Unlock()
	return nil
}

// Load is Refresh reporting a failure to the user.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		c.notifier.Notify("Error loading documents: "+api.Message(err), notify.Error)
		return err
	}
	return nil
}

// Search runs query now. An empty query lists every document.
func (c *Controller) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	docs, err := c.fetchDocuments(ctx, query)
	if err != nil {
		c.notifier.Notify("Search failed. Please try again.", notify.Error)
		return fmt.Errorf("search %q: %w", query, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = query
	c.docs = docs
	return nil
}

// Find returns the documents matching query without touching the cached
// list, so concurrent callers with different queries do not see each
// other's results.
func (c *Controller) Find(ctx context.Context, query string) ([]api.Document, error) {
	query = strings.TrimSpace(query)
	docs, err := c.fetchDocuments(ctx, query)
	if err != nil {
		if query == "" {
			c.notifier.Notify("Error loading documents: "+api.Message(err), notify.Error)
		} else {
			c.notifier.Notify("Search failed. Please try again.", notify.Error)
		}
		return nil, fmt.Errorf("find %q: %w", query, err)
	}
	return docs, nil
}

func (c *Controller) fetchDocuments(ctx context.Context, query string) ([]api.Document, error) {
	if query == "" {
		return c.client.ListDocuments(ctx)
	}
	return c.client.SearchDocuments(ctx, query)
}

// Delete removes a document and then reloads both lists, since its
// bookmarks go with it.
func (c *Controller) Delete(ctx context.Context, documentID int64) error {
	c.mutation.Lock()
	defer c.mutation.Unlock()

	if err := c.client.DeleteDocument(ctx, documentID); err != nil {
		c.notifier.Notify("Failed to delete document: "+api.Message(err), notify.Error)
		return fmt.Errorf("delete %d: %w", documentID, err)
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warnf("refresh after delete of %d: %v", documentID, err)
	}
	c.notifier.Notify("Document deleted successfully", notify.Success)
	return nil
}

// ToggleBookmark removes the caller's bookmark on documentID if there is
// one, otherwise bookmarks page. It returns whether the document is
// bookmarked afterwards.
func (c *Controller) ToggleBookmark(ctx context.Context, documentID int64, page int, name string) (bool, error) {
	c.mutation.Lock()
	defer c.mutation.Unlock()

	_, exists, err := c.client.GetBookmark(ctx, documentID)
	if err != nil {
		c.notifier.Notify("Failed to check bookmark: "+api.Message(err), notify.Error)
		return false, fmt.Errorf("bookmark status of %d: %w", documentID, err)
	}
	if exists {
		if err := c.client.DeleteBookmark(ctx, documentID); err != nil {
			c.notifier.Notify("Failed to remove bookmark. Please try again.", notify.Error)
			return true, fmt.Errorf("remove bookmark of %d: %w", documentID, err)
		}
		c.afterBookmarkChange(ctx, documentID)
		c.notifier.Notify("Bookmark removed successfully", notify.Success)
		return false, nil
	}

	if page < 1 {
		page = 1
	}
	if _, err := c.client.CreateBookmark(ctx, documentID, page, name); err != nil {
		c.notifier.Notify("Failed to save bookmark: "+api.Message(err), notify.Error)
		return false, fmt.Errorf("bookmark %d: %w", documentID, err)
	}
	c.afterBookmarkChange(ctx, documentID)
	c.notifier.Notify(fmt.Sprintf("Bookmarked page %d", page), notify.Success)
	return true, nil
}

// SetBookmark bookmarks page, replacing an existing bookmark on the
// document.
func (c *Controller) SetBookmark(ctx context.Context, documentID int64, page int, name string) (*api.Bookmark, error) {
	c.mutation.Lock()
	defer c.mutation.Unlock()

	bm, err := c.client.CreateBookmark(ctx, documentID, page, name)
	if err != nil {
		c.notifier.Notify("Failed to save bookmark: "+api.Message(err), notify.Error)
		return nil, fmt.Errorf("bookmark %d: %w", documentID, err)
	}
	c.afterBookmarkChange(ctx, documentID)
	c.notifier.Notify(fmt.Sprintf("Bookmarked page %d", page), notify.Success)
	return bm, nil
}

// BookmarkStatus asks the server whether documentID is bookmarked.
func (c *Controller) BookmarkStatus(ctx context.Context, documentID int64) (*api.Bookmark, bool, error) {
	return c.client.GetBookmark(ctx, documentID)
}

func (c *Controller) afterBookmarkChange(ctx context.Context, documentID int64) {
	if err := c.RefreshBookmarks(ctx); err != nil {
		c.logger.Warnf("refresh after bookmark change on %d: %v", documentID, err)
	}
}
