package pdfrenderer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PoolConfig sizes the PDFium WebAssembly worker pool the shared instance is taken from
type PoolConfig struct {
	MinIdle  int
	MaxIdle  int
	MaxTotal int
	// Acquire bounds how long startup waits for the instance
	Acquire time.Duration
}

// DefaultPoolConfig is a single worker, matching single-threaded usage
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MinIdle: 1, MaxIdle: 1, MaxTotal: 1, Acquire: 30 * time.Second}
}

// PDFiumBackend implements decoding and rendering using go-pdfium with WebAssembly (pure Go, no CGo).
// Every document is opened on one shared instance, so open documents never compete for pool workers.
type PDFiumBackend struct {
	// a PDFium instance is not safe for concurrent use
	mu       sync.Mutex
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

// NewPDFiumBackend creates a new PDFium-based backend using WebAssembly
func NewPDFiumBackend(cfg PoolConfig) (*PDFiumBackend, error) {
	if cfg.MaxTotal < 1 {
		cfg = DefaultPoolConfig()
	}
	if cfg.Acquire <= 0 {
		cfg.Acquire = 30 * time.Second
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  cfg.MinIdle,
		MaxIdle:  cfg.MaxIdle,
		MaxTotal: cfg.MaxTotal,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	instance, err := pool.GetInstance(cfg.Acquire)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	return &PDFiumBackend{pool: pool, instance: instance}, nil
}

// Decode opens the document on the shared instance; it stays open until the Document is closed
func (b *PDFiumBackend) Decode(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.instance == nil {
		return nil, fmt.Errorf("PDFium backend closed")
	}

	// PDFium reads from the buffer for the lifetime of the document
	owned := append([]byte(nil), data...)
	doc, err := b.instance.OpenDocument(&requests.OpenDocument{
		File: &owned,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	pageCountResp, err := b.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		b.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	return &pdfiumDocument{
		backend: b,
		handle:  doc.Document,
		data:    owned,
		pages:   pageCountResp.PageCount,
	}, nil
}

// Close releases the shared instance and the pool; documents still open become unusable
func (b *PDFiumBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.instance != nil {
		err = b.instance.Close()
		b.instance = nil
	}
	if b.pool != nil {
		if cerr := b.pool.Close(); err == nil {
			err = cerr
		}
		b.pool = nil
	}
	return err
}

// pdfiumDocument is a document reference on the backend's instance; every call takes the backend lock
type pdfiumDocument struct {
	backend *PDFiumBackend
	handle  references.FPDF_DOCUMENT
	data    []byte
	pages   int
	closed  bool
}

func (d *pdfiumDocument) PageCount() int {
	return d.pages
}

// usable reports whether the document may call into PDFium; the backend lock must be held
func (d *pdfiumDocument) usable() error {
	if d.closed {
		return fmt.Errorf("document closed")
	}
	if d.backend.instance == nil {
		return fmt.Errorf("PDFium backend closed")
	}
	return nil
}

func (d *pdfiumDocument) Page(ctx context.Context, n int) (Page, error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d out of range 1..%d", n, d.pages)
	}
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	if err := d.usable(); err != nil {
		return nil, err
	}
	size, err := d.backend.instance.FPDF_GetPageSizeByIndex(&requests.FPDF_GetPageSizeByIndex{
		Document: d.handle,
		Index:    n - 1,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to size page %d: %w", n, err)
	}
	return &pdfiumPage{
		parent: d,
		number: n,
		size:   Viewport{Width: size.Width, Height: size.Height},
	}, nil
}

func (d *pdfiumDocument) Close() error {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.data = nil
	if d.backend.instance == nil {
		return nil
	}
	_, err := d.backend.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.handle,
	})
	return err
}

type pdfiumPage struct {
	parent *pdfiumDocument
	number int
	size   Viewport
}

func (p *pdfiumPage) Viewport(scale float64, rotation int) Viewport {
	vp := Viewport{Width: p.size.Width * scale, Height: p.size.Height * scale}
	if rotation%180 != 0 {
		vp.Width, vp.Height = vp.Height, vp.Width
	}
	return vp
}

func (p *pdfiumPage) Render(ctx context.Context, req RenderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := p.parent.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := p.parent.usable(); err != nil {
		return err
	}

	pageRender, err := b.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: dpiFor(req),
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: p.parent.handle,
				Index:    p.number - 1,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("unable to render page %d: %w", p.number, err)
	}
	// Clean up WebAssembly resources once the pixels are copied out
	defer pageRender.Cleanup()

	fitInto(req.Target, pageRender.Result.Image)
	return nil
}
