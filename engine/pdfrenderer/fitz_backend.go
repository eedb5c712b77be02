package pdfrenderer

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// FitzBackend implements document decoding and rendering using go-fitz (requires CGo and MuPDF)
type FitzBackend struct {
}

// NewFitzBackend creates a new Fitz-based backend
func NewFitzBackend() (*FitzBackend, error) {
	return &FitzBackend{}, nil
}

// Decode opens the document from memory
func (b *FitzBackend) Decode(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	return &fitzDocument{doc: doc, pages: doc.NumPage()}, nil
}

// Close cleans up resources (no-op for Fitz backend as each document is closed by its owner)
func (b *FitzBackend) Close() error {
	return nil
}

type fitzDocument struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func (d *fitzDocument) PageCount() int {
	return d.pages
}

func (d *fitzDocument) Page(ctx context.Context, n int) (Page, error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d out of range 1..%d", n, d.pages)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("document closed")
	}
	bound, err := d.doc.Bound(n - 1)
	if err != nil {
		return nil, fmt.Errorf("unable to size page %d: %w", n, err)
	}
	return &fitzPage{
		parent: d,
		number: n,
		size:   Viewport{Width: float64(bound.Dx()), Height: float64(bound.Dy())},
	}, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

type fitzPage struct {
	parent *fitzDocument
	number int
	size   Viewport
}

func (p *fitzPage) Viewport(scale float64, rotation int) Viewport {
	vp := Viewport{Width: p.size.Width * scale, Height: p.size.Height * scale}
	if rotation%180 != 0 {
		vp.Width, vp.Height = vp.Height, vp.Width
	}
	return vp
}

func (p *fitzPage) Render(ctx context.Context, req RenderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.parent.mu.Lock()
	if p.parent.closed {
		p.parent.mu.Unlock()
		return fmt.Errorf("document closed")
	}
	img, err := p.parent.doc.ImageDPI(p.number-1, req.DPI())
	p.parent.mu.Unlock()
	if err != nil {
		return fmt.Errorf("unable to render page %d: %w", p.number, err)
	}

	fitInto(req.Target, img)
	return nil
}
