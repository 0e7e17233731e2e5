// Package thumbs keeps a disk cache of document card thumbnails.
package thumbs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	thumbnails "github.com/drummonds/go-thumbnails"

	"github.com/drummonds/pdfshelf/internal/logging"
)

// DefaultSize is the longest edge of a generated thumbnail in pixels.
const DefaultSize = 600

var (
	// ErrInProgress is returned by Ensure while another caller generates
	// the same thumbnail.
	ErrInProgress = errors.New("thumbnail generation in progress")
	// ErrNotCached is returned by Wait when nothing is generating a
	// missing thumbnail.
	ErrNotCached = errors.New("thumbnail not cached")
)

// FetchFunc returns the PDF bytes of a document.
type FetchFunc func(ctx context.Context) ([]byte, error)

// GenerateFunc renders the first page of the PDF at in as a PNG at out.
type GenerateFunc func(in, out string, size int) error

// Cache stores one PNG per document id under dir.
type Cache struct {
	dir      string
	size     int
	generate GenerateFunc
	logger   logging.Logger

	mu      sync.Mutex
	pending map[int64]chan struct{}
	running sync.WaitGroup
}

// New creates the cache directory if needed.
func New(dir string, logger logging.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating thumbnail dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = logging.New("thumbs")
	}
	return &Cache{
		dir:      dir,
		size:     DefaultSize,
		generate: styled,
		logger:   logger,
		pending:  make(map[int64]chan struct{}),
	}, nil
}

// WithGenerator replaces the renderer. Used by tests.
func (c *Cache) WithGenerator(fn GenerateFunc) *Cache {
	c.generate = fn
	return c
}

func styled(in, out string, size int) error {
	return thumbnails.GenerateStyledAndSave(in, out, uint(size), thumbnails.StyleUniform)
}

// Path returns where the thumbnail of id lives.
func (c *Cache) Path(id int64) string {
	return filepath.Join(c.dir, strconv.FormatInt(id, 10)+".png")
}

// Exists reports whether the thumbnail of id has been generated.
func (c *Cache) Exists(id int64) bool {
	_, err := os.Stat(c.Path(id))
	return err == nil
}

// Ensure generates the thumbnail of id unless it is cached and returns its
// path.
func (c *Cache) Ensure(ctx context.Context, id int64, fetch FetchFunc) (string, error) {
	out := c.Path(id)
	if c.Exists(id) {
		return out, nil
	}

	done, ok := c.claim(id)
	if !ok {
		return "", ErrInProgress
	}
	defer c.release(id, done)
	return c.build(ctx, id, fetch)
}

// claim marks id as being generated. It fails when another caller holds it.
func (c *Cache) claim(id int64) (chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.pending[id]; busy {
		return nil, false
	}
	done := make(chan struct{})
	c.pending[id] = done
	return done, true
}

func (c *Cache) release(id int64, done chan struct{}) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
	close(done)
}

func (c *Cache) build(ctx context.Context, id int64, fetch FetchFunc) (string, error) {
	out := c.Path(id)
	data, err := fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching document %d: %w", id, err)
	}

	tmp, err := os.CreateTemp("", "pdfshelf-thumb-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := c.generate(tmpPath, out, c.size); err != nil {
		return "", fmt.Errorf("generating thumbnail of %d: %w", id, err)
	}
	c.logger.Debugf("generated thumbnail of %d", id)
	return out, nil
}

// Generate builds the thumbnail of id in the background and only logs
// failures. The generation is registered before Generate returns, so a
// following Wait sees it.
func (c *Cache) Generate(id int64, fetch FetchFunc) {
	if c.Exists(id) {
		return
	}
	done, ok := c.claim(id)
	if !ok {
		return
	}
	c.running.Add(1)
	go func() {
		defer c.running.Done()
		defer c.release(id, done)
		if _, err := c.build(context.Background(), id, fetch); err != nil {
			c.logger.Warnf("thumbnail of %d: %v", id, err)
		}
	}()
}

// Wait blocks until a running generation of id finishes or ctx is done and
// returns the thumbnail path.
func (c *Cache) Wait(ctx context.Context, id int64) (string, error) {
	for {
		c.mu.Lock()
		done, busy := c.pending[id]
		c.mu.Unlock()
		if !busy {
			if c.Exists(id) {
				return c.Path(id), nil
			}
			return "", ErrNotCached
		}
		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close waits for background generations to finish.
func (c *Cache) Close() {
	c.running.Wait()
}
