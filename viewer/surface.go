package viewer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	xdraw "golang.org/x/image/draw"
)

// PageElement is the visible bitmap for one page of a surface
type PageElement struct {
	Number   int
	Geometry PrintGeometry
	bitmap   *image.RGBA
	// committed is set once the offscreen raster has been copied in
	committed bool
}

// Surface is one isolated, print-capable output built by a single render pass
type Surface struct {
	ID        ulid.ULID
	container *Container
	ready     chan struct{}
	baseCSS   string
	pageBox   *PrintGeometry
	pages     []*PageElement
}

// Ready blocks until the surface has finished its internal load
func (s *Surface) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPrintStyles sizes the printed page box to widthPt x heightPt with no margin; it fails once the
// surface is no longer attached
func (s *Surface) InjectPrintStyles(widthPt, heightPt float64) error {
	c := s.container
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.surface != s {
		return errStale
	}
	s.pageBox = &PrintGeometry{WidthPt: widthPt, HeightPt: heightPt}
	c.version++
	return nil
}

// PrintCSS returns the surface stylesheet including the page box once one is set
func (s *Surface) PrintCSS() string {
	if s.pageBox == nil {
		return s.baseCSS
	}
	return fmt.Sprintf("@page {\n  margin: 0;\n  size: %.2fpt %.2fpt;\n}\n", s.pageBox.WidthPt, s.pageBox.HeightPt) + s.baseCSS
}

const baseCSS = `body {
  margin: 0;
  width: 100%;
}
img {
  width: 100%;
  page-break-after: always;
  page-break-before: avoid;
  page-break-inside: avoid;
}
`

// Container is the host element surfaces are attached to, alongside the loading indicator
type Container struct {
	mu          sync.RWMutex
	loadingText string
	loading     bool
	surface     *Surface
	version     uint64
}

// NewContainer starts with only the loading indicator visible
func NewContainer(loadingText string) *Container {
	return &Container{loadingText: loadingText, loading: true}
}

// PageView describes one visible page element
type PageView struct {
	Number      int     `json:"number"`
	PixelWidth  int     `json:"pixelWidth"`
	PixelHeight int     `json:"pixelHeight"`
	WidthPt     float64 `json:"widthPt"`
	HeightPt    float64 `json:"heightPt"`
	Committed   bool    `json:"committed"`
}

// ContainerSnapshot is a consistent copy of what the container shows
type ContainerSnapshot struct {
	Version     uint64     `json:"version"`
	Loading     bool       `json:"loading"`
	LoadingText string     `json:"loadingText"`
	SurfaceID   string     `json:"surfaceId,omitempty"`
	PrintCSS    string     `json:"printCss,omitempty"`
	Pages       []PageView `json:"pages"`
}

// Snapshot copies the current container state
func (c *Container) Snapshot() ContainerSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := ContainerSnapshot{
		Version:     c.version,
		Loading:     c.loading,
		LoadingText: c.loadingText,
		Pages:       []PageView{},
	}
	if c.surface == nil {
		return snap
	}
	snap.SurfaceID = c.surface.ID.String()
	snap.PrintCSS = c.surface.PrintCSS()
	for _, el := range c.surface.pages {
		snap.Pages = append(snap.Pages, PageView{
			Number:      el.Number,
			PixelWidth:  el.Geometry.PixelWidth,
			PixelHeight: el.Geometry.PixelHeight,
			WidthPt:     el.Geometry.WidthPt,
			HeightPt:    el.Geometry.HeightPt,
			Committed:   el.committed,
		})
	}
	return snap
}

// PageImage returns the committed bitmap for page n on the current surface
func (c *Container) PageImage(n int) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.surface == nil {
		return nil, false
	}
	for _, el := range c.surface.pages {
		if el.Number == n && el.committed {
			return el.bitmap, true
		}
	}
	return nil, false
}

// Loading reports whether the loading indicator is shown
func (c *Container) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Container) setLoading(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading != on {
		c.loading = on
		c.version++
	}
}

func (c *Container) appendPage(s *Surface, n int, geom PrintGeometry) (*PageElement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.surface != s {
		return nil, errStale
	}
	el := &PageElement{
		Number:   n,
		Geometry: geom,
		bitmap:   image.NewRGBA(image.Rect(0, 0, geom.PixelWidth, geom.PixelHeight)),
	}
	s.pages = append(s.pages, el)
	// concurrent all-pages rasterization inserts out of order; keep pages stacked by number
	sort.SliceStable(s.pages, func(i, j int) bool { return s.pages[i].Number < s.pages[j].Number })
	c.version++
	return el, nil
}

func (c *Container) paint(s *Surface, el *PageElement, src *image.RGBA) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.surface != s {
		return errStale
	}
	xdraw.Copy(el.bitmap, image.Point{}, src, src.Bounds(), xdraw.Src, nil)
	el.committed = true
	c.version++
	return nil
}

// SurfaceManager builds and tears down the surfaces inside a container
type SurfaceManager struct {
	logger *slog.Logger
}

// NewSurfaceManager creates a manager logging to logger
func NewSurfaceManager(logger *slog.Logger) *SurfaceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurfaceManager{logger: logger}
}

// Attach appends a new surface to c, detaching any previous one; callers serialize Attach and Clear
func (m *SurfaceManager) Attach(c *Container) *Surface {
	s := &Surface{ID: ulid.Make(), container: c, ready: make(chan struct{}), baseCSS: baseCSS}

	c.mu.Lock()
	if c.surface != nil {
		m.logger.Debug("Detaching previous surface", "surface", c.surface.ID.String())
	}
	c.surface = s
	c.version++
	c.mu.Unlock()

	// ready asynchronously, like a frame finishing its own load
	go close(s.ready)

	m.logger.Debug("Surface attached", "surface", s.ID.String())
	return s
}

// CreateSurface attaches a surface and waits until it is ready
func (m *SurfaceManager) CreateSurface(ctx context.Context, c *Container) (*Surface, error) {
	s := m.Attach(c)
	if err := s.Ready(ctx); err != nil {
		c.mu.Lock()
		if c.surface == s {
			c.surface = nil
			c.version++
		}
		c.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// Clear removes all surface content and shows only the loading indicator
func (m *SurfaceManager) Clear(c *Container) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.surface != nil {
		m.logger.Debug("Clearing surface", "surface", c.surface.ID.String())
	}
	c.surface = nil
	c.loading = true
	c.version++
}
