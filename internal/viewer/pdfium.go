package viewer

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
	"golang.org/x/image/draw"
)

const (
	pointsPerInch       = 72
	defaultPoolSize     = 2
	defaultFetchTimeout = 30 * time.Second
)

// PDFium renders with the WebAssembly build of pdfium.
type PDFium struct {
	pool    pdfium.Pool
	timeout time.Duration
}

// NewPDFium starts a pool of size pdfium instances. size <= 0 means a
// small default pool.
func NewPDFium(size int) (*PDFium, error) {
	if size <= 0 {
		size = defaultPoolSize
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  size,
		MaxTotal: size,
	})
	if err != nil {
		return nil, fmt.Errorf("init pdfium: %w", err)
	}
	return &PDFium{pool: pool, timeout: defaultFetchTimeout}, nil
}

// Close stops the pool.
func (e *PDFium) Close() error {
	return e.pool.Close()
}

// Open reads the page count and page sizes of data. Every render reopens
// the document on whichever pool instance is free, so an open document
// does not pin an instance.
func (e *PDFium) Open(data []byte) (Document, error) {
	doc := &pdfiumDocument{engine: e, data: data}
	err := e.with(data, func(inst pdfium.Pdfium, ref *requests.Page) error {
		count, err := inst.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: ref.ByIndex.Document})
		if err != nil {
			return fmt.Errorf("page count: %w", err)
		}
		doc.sizes = make([][2]float64, count.PageCount)
		for i := range doc.sizes {
			ref.ByIndex.Index = i
			size, err := inst.GetPageSize(&requests.GetPageSize{Page: *ref})
			if err != nil {
				return fmt.Errorf("size of page %d: %w", i+1, err)
			}
			doc.sizes[i] = [2]float64{size.Width, size.Height}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(doc.sizes) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	return doc, nil
}

// with opens data on a pool instance and calls fn with a page reference
// whose index fn may change.
func (e *PDFium) with(data []byte, fn func(pdfium.Pdfium, *requests.Page) error) error {
	inst, err := e.pool.GetInstance(e.timeout)
	if err != nil {
		return fmt.Errorf("get pdfium instance: %w", err)
	}
	defer inst.Close()

	opened, err := inst.OpenDocument(&requests.OpenDocument{File: &data})
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer inst.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: opened.Document})

	return fn(inst, &requests.Page{ByIndex: &requests.PageByIndex{Document: opened.Document}})
}

type pdfiumDocument struct {
	engine *PDFium
	data   []byte
	sizes  [][2]float64
}

func (d *pdfiumDocument) PageCount() int {
	return len(d.sizes)
}

func (d *pdfiumDocument) PageSize(page int) (float64, float64, error) {
	if page < 1 || page > len(d.sizes) {
		return 0, 0, fmt.Errorf("page %d of %d: %w", page, len(d.sizes), ErrPageOutOfRange)
	}
	s := d.sizes[page-1]
	return s[0], s[1], nil
}

func (d *pdfiumDocument) Render(page int, scale float64) (*image.RGBA, error) {
	if page < 1 || page > len(d.sizes) {
		return nil, fmt.Errorf("page %d of %d: %w", page, len(d.sizes), ErrPageOutOfRange)
	}
	var out *image.RGBA
	err := d.engine.with(d.data, func(inst pdfium.Pdfium, ref *requests.Page) error {
		ref.ByIndex.Index = page - 1
		rendered, err := inst.RenderPageInDPI(&requests.RenderPageInDPI{
			DPI:  max(int(math.Round(scale*pointsPerInch)), 1),
			Page: *ref,
		})
		if err != nil {
			return fmt.Errorf("render page %d: %w", page, err)
		}
		defer rendered.Cleanup()

		// The result buffer is released by Cleanup.
		src := rendered.Result.Image
		out = image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
		draw.Copy(out, image.Point{}, src, src.Bounds(), draw.Src, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *pdfiumDocument) Close() error {
	d.data = nil
	return nil
}
