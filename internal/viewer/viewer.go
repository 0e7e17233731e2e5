// Package viewer renders one page of a document at a time.
//
// A Viewer runs at most one render at a time. A page requested while a
// render is in flight goes into a single pending slot, overwriting any
// earlier pending page; when the render finishes only the pending page is
// rendered next. Intermediate requests are never rendered.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/drummonds/pdfshelf/internal/debounce"
	"github.com/drummonds/pdfshelf/internal/logging"
	"github.com/drummonds/pdfshelf/internal/metrics"
)

// DefaultResizeDelay is the quiet period before a resize re-renders.
const DefaultResizeDelay = 150 * time.Millisecond

var (
	// ErrPageOutOfRange is returned for a page outside [1, total].
	ErrPageOutOfRange = errors.New("page out of range")

	// ErrRender is reported when the renderer rejects a page.
	ErrRender = errors.New("render failed")

	// ErrClosed is returned by a closed Viewer.
	ErrClosed = errors.New("viewer closed")
)

// Engine opens documents for rendering.
type Engine interface {
	Open(data []byte) (Document, error)
}

// Document is an open document. Pages are 1-based.
type Document interface {
	PageCount() int
	// PageSize returns the page size in points.
	PageSize(page int) (width, height float64, err error)
	// Render draws the page at scale, where 1 is 72 DPI.
	Render(page int, scale float64) (*image.RGBA, error)
	Close() error
}

// State of the render loop.
type State string

const (
	Idle                 State = "idle"
	Rendering            State = "rendering"
	RenderingWithPending State = "rendering-with-pending"
)

// Frame is one rendered and watermarked page.
type Frame struct {
	Page        int
	Total       int
	Zoom        Zoom
	Scale       float64
	Image       *image.RGBA
	PrevEnabled bool
	NextEnabled bool
	RenderedAt  time.Time
}

// Sink receives render outcomes in completion order.
type Sink interface {
	PageRendered(f *Frame)
	RenderFailed(page int, err error)
}

// Options configures a Viewer.
type Options struct {
	// Watermark is stamped on every frame. DefaultWatermark when nil.
	Watermark *Watermark
	Zoom      Zoom
	Viewport  image.Point

	ResizeDelay time.Duration
	Logger      logging.Logger
	Metrics     *metrics.Metrics
}

// Viewer is the page render state machine of one open document.
type Viewer struct {
	doc       Document
	sink      Sink
	watermark *Watermark
	logger    logging.Logger
	metrics   *metrics.Metrics
	resize    *debounce.Debouncer[image.Point]

	mu       sync.Mutex
	total    int
	page     int
	zoom     Zoom
	viewport image.Point
	busy     bool
	pending  int
	idle     chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Viewer on page 1. Nothing is rendered until a page is
// requested.
func New(doc Document, sink Sink, opts Options) *Viewer {
	if opts.Watermark == nil {
		opts.Watermark = DefaultWatermark()
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("viewer")
	}
	if opts.Zoom.Mode == "" {
		opts.Zoom = Scale(1)
	}
	if opts.ResizeDelay <= 0 {
		opts.ResizeDelay = DefaultResizeDelay
	}
	v := &Viewer{
		doc:       doc,
		sink:      sink,
		watermark: opts.Watermark,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		total:     doc.PageCount(),
		page:      1,
		zoom:      opts.Zoom,
		viewport:  opts.Viewport,
	}
	v.resize = debounce.New(v.resized, opts.ResizeDelay)
	return v
}

// Page returns the most recently requested valid page.
func (v *Viewer) Page() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

// Total returns the page count.
func (v *Viewer) Total() int {
	return v.total
}

// Zoom returns the current zoom.
func (v *Viewer) Zoom() Zoom {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

// State returns the render loop state.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case !v.busy:
		return Idle
	case v.pending == 0:
		return Rendering
	default:
		return RenderingWithPending
	}
}

// RequestPage renders page n, or queues it if a render is in flight.
func (v *Viewer) RequestPage(n int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.requestLocked(n)
}

func (v *Viewer) requestLocked(n int) error {
	if v.closed {
		return ErrClosed
	}
	if n < 1 || n > v.total {
		return fmt.Errorf("page %d of %d: %w", n, v.total, ErrPageOutOfRange)
	}
	v.page = n
	if v.busy {
		if v.pending != 0 {
			v.metrics.AddCoalesced()
		}
		v.pending = n
		return nil
	}
	v.busy = true
	v.idle = make(chan struct{})
	v.wg.Add(1)
	go v.run(n)
	return nil
}

// run renders n and then whatever is pending until nothing is.
func (v *Viewer) run(n int) {
	defer v.wg.Done()
	for {
		v.renderOne(n)

		v.mu.Lock()
		if v.pending == 0 || v.closed {
			v.pending = 0
			v.busy = false
			close(v.idle)
			v.mu.Unlock()
			return
		}
		n = v.pending
		v.pending = 0
		v.mu.Unlock()
	}
}

func (v *Viewer) renderOne(n int) {
	v.mu.Lock()
	zoom, viewport := v.zoom, v.viewport
	v.mu.Unlock()

	start := time.Now()
	frame, err := v.render(n, zoom, viewport)
	v.metrics.ObserveRender(err, time.Since(start))
	if err != nil {
		v.logger.Warnf("render page %d: %v", n, err)
		v.sink.RenderFailed(n, err)
		return
	}
	v.sink.PageRendered(frame)
}

func (v *Viewer) render(n int, zoom Zoom, viewport image.Point) (*Frame, error) {
	scale := zoom.Scale
	if zoom.Symbolic() {
		w, h, err := v.doc.PageSize(n)
		if err != nil {
			return nil, fmt.Errorf("%w: size of page %d: %v", ErrRender, n, err)
		}
		scale = zoom.resolve(w, h, viewport.X, viewport.Y)
	}
	img, err := v.doc.Render(n, scale)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRender, n, err)
	}
	v.watermark.Apply(img)
	return &Frame{
		Page:        n,
		Total:       v.total,
		Zoom:        zoom,
		Scale:       scale,
		Image:       img,
		PrevEnabled: n > 1,
		NextEnabled: n < v.total,
		RenderedAt:  time.Now(),
	}, nil
}

// Next moves one page forward. On the last page it does nothing. It
// returns the current page.
func (v *Viewer) Next() int {
	return v.step(1)
}

// Prev moves one page back. On the first page it does nothing.
func (v *Viewer) Prev() int {
	return v.step(-1)
}

func (v *Viewer) step(delta int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = v.requestLocked(v.page + delta)
	return v.page
}

// First moves to page 1.
func (v *Viewer) First() int {
	p, _ := v.GoTo(1)
	return p
}

// Last moves to the last page.
func (v *Viewer) Last() int {
	p, _ := v.GoTo(v.total)
	return p
}

// GoTo moves to page n. An out of range n leaves the viewer on its current
// page, which is returned together with ErrPageOutOfRange.
func (v *Viewer) GoTo(n int) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.requestLocked(n)
	return v.page, err
}

// SetZoom changes the zoom and re-renders the current page.
func (v *Viewer) SetZoom(z Zoom) error {
	if !z.Symbolic() {
		z = Scale(z.Scale)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = z
	return v.requestLocked(v.page)
}

// ZoomIn raises a numeric zoom by ZoomStep. Symbolic zooms are unchanged.
func (v *Viewer) ZoomIn() Zoom {
	return v.stepZoom(ZoomStep)
}

// ZoomOut lowers a numeric zoom by ZoomStep.
func (v *Viewer) ZoomOut() Zoom {
	return v.stepZoom(-ZoomStep)
}

func (v *Viewer) stepZoom(delta float64) Zoom {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.zoom.Symbolic() {
		return v.zoom
	}
	next := clampScale(v.zoom.Scale + delta)
	if next == v.zoom.Scale {
		return v.zoom
	}
	v.zoom = Zoom{Mode: Numeric, Scale: next}
	_ = v.requestLocked(v.page)
	return v.zoom
}

// Resize records the viewport size. In fit and auto modes the current page
// is re-rendered once resizing has paused.
func (v *Viewer) Resize(width, height int) {
	size := image.Pt(width, height)
	v.mu.Lock()
	changed := v.viewport != size
	v.viewport = size
	symbolic := v.zoom.Symbolic()
	v.mu.Unlock()

	if changed && symbolic {
		v.resize.Call(size)
	}
}

// FlushResize applies a resize still waiting for its quiet period, so the
// next frame reflects the latest viewport.
func (v *Viewer) FlushResize() {
	v.resize.Flush()
}

func (v *Viewer) resized(image.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.zoom.Symbolic() {
		_ = v.requestLocked(v.page)
	}
}

// WaitIdle blocks until no render is in flight.
func (v *Viewer) WaitIdle(ctx context.Context) error {
	v.mu.Lock()
	if !v.busy {
		v.mu.Unlock()
		return nil
	}
	idle := v.idle
	v.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops pending work, waits for the render in flight and closes the
// document.
func (v *Viewer) Close() error {
	v.resize.Stop()
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	v.wg.Wait()
	if err := v.doc.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	return nil
}
