package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// Intent tells the backend what the raster is for
type Intent string

const (
	IntentDisplay Intent = "display"
	IntentPrint   Intent = "print"
)

// PointsPerInch is the PDF user-space unit density
const PointsPerInch = 72.0

// Backend decodes raw document bytes into a Document
type Backend interface {
	// Decode parses the bytes; the returned Document owns a copy of whatever it needs
	Decode(ctx context.Context, data []byte) (Document, error)

	// Close cleans up any resources used by the backend
	Close() error
}

// Document is a decoded document handle
type Document interface {
	PageCount() int
	// Page returns the 1-based page n
	Page(ctx context.Context, n int) (Page, error)
	Close() error
}

// Page is one page of a decoded Document
type Page interface {
	Viewport(scale float64, rotation int) Viewport
	Render(ctx context.Context, req RenderRequest) error
}

// Viewport is a page size in PDF points
type Viewport struct {
	Width  float64
	Height float64
}

// Transform is an affine matrix [a b c d e f] applied to page space
type Transform [6]float64

// Scale returns the uniform scale factor of the transform
func (t Transform) Scale() float64 {
	return t[0]
}

// RenderRequest is everything a Page needs to rasterize itself onto a target
type RenderRequest struct {
	PageNumber int
	Transform  Transform
	Target     draw.Image
	Intent     Intent
}

var (
	ErrNoTarget          = errors.New("render request has no target surface")
	ErrBadTransform      = errors.New("render request transform must be a positive uniform scale")
	ErrBadPageNumber     = errors.New("render request page number must be positive")
	ErrUnsupportedIntent = errors.New("render request intent not supported")
)

// Validate checks the request before it reaches a backend
func (r RenderRequest) Validate() error {
	if r.PageNumber < 1 {
		return fmt.Errorf("%w: %d", ErrBadPageNumber, r.PageNumber)
	}
	if r.Target == nil || r.Target.Bounds().Empty() {
		return ErrNoTarget
	}
	t := r.Transform
	if t[0] <= 0 || t[0] != t[3] || t[1] != 0 || t[2] != 0 {
		return fmt.Errorf("%w: %v", ErrBadTransform, t)
	}
	switch r.Intent {
	case IntentDisplay, IntentPrint:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedIntent, r.Intent)
	}
	return nil
}

// DPI is the output resolution implied by the transform
func (r RenderRequest) DPI() float64 {
	return r.Transform.Scale() * PointsPerInch
}

// fitInto copies src onto dst, resampling when the backend rounded the raster to a different size
func fitInto(dst draw.Image, src image.Image) {
	want := dst.Bounds()
	if src.Bounds().Dx() != want.Dx() || src.Bounds().Dy() != want.Dy() {
		src = imaging.Resize(src, want.Dx(), want.Dy(), imaging.Lanczos)
	}
	xdraw.Copy(dst, want.Min, src, src.Bounds(), xdraw.Src, nil)
}

// dpiFor rounds a request to the nearest whole DPI, never below one
func dpiFor(req RenderRequest) int {
	return int(math.Max(1, math.Round(req.DPI())))
}

// NewBackend creates the backend selected by name
func NewBackend(name string, pool PoolConfig) (Backend, error) {
	switch name {
	case "", "pdfium":
		return NewPDFiumBackend(pool)
	case "fitz":
		return NewFitzBackend()
	default:
		return nil, fmt.Errorf("unknown render backend %q", name)
	}
}
