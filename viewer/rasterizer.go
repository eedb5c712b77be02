package viewer

import (
	"context"
	"image"
	"log/slog"
	"math"

	"github.com/drummonds/pdfview/engine/pdfrenderer"
)

// StyleUnits is CSS pixels per point
const StyleUnits = 96.0 / 72.0

// PrintGeometry is the raster and physical size of one page at a DPI
type PrintGeometry struct {
	DPI         int     `json:"dpi"`
	PrintUnits  float64 `json:"printUnits"`
	PixelWidth  int     `json:"pixelWidth"`
	PixelHeight int     `json:"pixelHeight"`
	WidthPt     float64 `json:"widthPt"`
	HeightPt    float64 `json:"heightPt"`
}

// ComputeGeometry derives the print transform for a default (scale 1, rotation 0) viewport
func ComputeGeometry(vp pdfrenderer.Viewport, dpi int) PrintGeometry {
	printUnits := float64(dpi) / pdfrenderer.PointsPerInch
	return PrintGeometry{
		DPI:         dpi,
		PrintUnits:  printUnits,
		PixelWidth:  int(math.Floor(vp.Width * printUnits)),
		PixelHeight: int(math.Floor(vp.Height * printUnits)),
		WidthPt:     vp.Width * printUnits / StyleUnits,
		HeightPt:    vp.Height * printUnits / StyleUnits,
	}
}

// Transform is the raster transform matching the geometry
func (g PrintGeometry) Transform() pdfrenderer.Transform {
	return pdfrenderer.Transform{g.PrintUnits, 0, 0, g.PrintUnits, 0, 0}
}

// PageSink receives a page's visible element before rendering and its pixels after
type PageSink interface {
	Insert(n int, geom PrintGeometry) (*PageElement, error)
	Commit(el *PageElement, offscreen *image.RGBA) error
}

// Rasterizer renders single pages through the backend with double buffering
type Rasterizer struct {
	logger *slog.Logger
}

// NewRasterizer creates a rasterizer logging to logger
func NewRasterizer(logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{logger: logger}
}

// Rasterize renders page n of doc at dpi offscreen, then hands the finished bitmap to sink
func (r *Rasterizer) Rasterize(ctx context.Context, doc pdfrenderer.Document, n, dpi int, sink PageSink) error {
	pageCount := doc.PageCount()
	if n < 1 || n > pageCount {
		return pageRangeError(n, pageCount)
	}

	page, err := doc.Page(ctx, n)
	if err != nil {
		return &Error{Kind: KindRender, Page: n, Err: err}
	}

	geom := ComputeGeometry(page.Viewport(1, 0), dpi)
	el, err := sink.Insert(n, geom)
	if err != nil {
		return err
	}

	offscreen := image.NewRGBA(image.Rect(0, 0, geom.PixelWidth, geom.PixelHeight))
	req := pdfrenderer.RenderRequest{
		PageNumber: n,
		Transform:  geom.Transform(),
		Target:     offscreen,
		Intent:     pdfrenderer.IntentPrint,
	}
	if err := req.Validate(); err != nil {
		return &Error{Kind: KindRender, Page: n, Err: err}
	}

	r.logger.Debug("Rendering page", "page", n, "dpi", dpi, "width", geom.PixelWidth, "height", geom.PixelHeight)
	if err := page.Render(ctx, req); err != nil {
		// the partial offscreen bitmap is dropped here and never reaches the sink
		return &Error{Kind: KindRender, Page: n, Err: err}
	}

	return sink.Commit(el, offscreen)
}
