package viewer

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drummonds/pdfview/engine/pdfrenderer"
)

// Options configures a Viewer
type Options struct {
	Backend pdfrenderer.Backend
	// Fetcher defaults to an HTTPFetcher
	Fetcher Fetcher
	Logger  *slog.Logger
	// Debug enables diagnostic (debug level) logging for this viewer
	Debug       bool
	LoadingText string
	State       ViewState

	LoadDebounce      time.Duration
	NavDebounce       time.Duration
	ResizeDebounce    time.Duration
	RenderConcurrency int

	OnError   func(error)
	OnSuccess func(Success)
}

// Default debounce periods
const (
	DefaultLoadDebounce   = 200 * time.Millisecond
	DefaultNavDebounce    = 200 * time.Millisecond
	DefaultResizeDebounce = 100 * time.Millisecond
)

// Viewer is the typed command interface a host view drives
type Viewer struct {
	session   *Session
	scheduler *Scheduler
	container *Container
	logger    *slog.Logger

	navSlot    *Slot
	resizeSlot *Slot
	frame      atomic.Int64

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Snapshot is everything a view needs to draw the viewer
type Snapshot struct {
	ContainerSnapshot
	ViewState
	Status    string `json:"status"`
	URL       string `json:"url"`
	PageCount int    `json:"pageCount"`
	Stats     Stats  `json:"stats"`
}

// New wires a session, scheduler, surface manager and rasterizer around one container
func New(opts Options) (*Viewer, error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPFetcher()
	}
	if opts.LoadDebounce <= 0 {
		opts.LoadDebounce = DefaultLoadDebounce
	}
	if opts.NavDebounce <= 0 {
		opts.NavDebounce = DefaultNavDebounce
	}
	if opts.ResizeDebounce <= 0 {
		opts.ResizeDebounce = DefaultResizeDebounce
	}
	if opts.RenderConcurrency <= 0 {
		opts.RenderConcurrency = 4
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	if opts.OnSuccess == nil {
		opts.OnSuccess = func(Success) {}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Debug {
		logger = slog.New(quietHandler{logger.Handler()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	container := NewContainer(opts.LoadingText)

	scheduler := &Scheduler{
		ctx:         ctx,
		logger:      logger,
		container:   container,
		surfaces:    NewSurfaceManager(logger),
		rasterizer:  NewRasterizer(logger),
		concurrency: opts.RenderConcurrency,
		onError:     opts.OnError,
		state:       opts.State.normalized(),
	}
	session := &Session{
		ctx:       ctx,
		backend:   opts.Backend,
		fetcher:   opts.Fetcher,
		slot:      NewSlot("load", opts.LoadDebounce),
		logger:    logger,
		listener:  scheduler,
		onError:   opts.OnError,
		onSuccess: opts.OnSuccess,
	}
	scheduler.session = session
	scheduler.idle = sync.NewCond(&scheduler.mu)

	v := &Viewer{
		session:    session,
		scheduler:  scheduler,
		container:  container,
		logger:     logger,
		navSlot:    NewSlot("pageNavigation", opts.NavDebounce),
		resizeSlot: NewSlot("resizeSchedule", opts.ResizeDebounce),
		cancel:     cancel,
	}
	scheduler.track(v.navSlot)
	scheduler.track(v.resizeSlot)
	return v, nil
}

// Scheduler exposes the render scheduler for hosts that drive it directly
func (v *Viewer) Scheduler() *Scheduler {
	return v.scheduler
}

// Session exposes the document session
func (v *Viewer) Session() *Session {
	return v.session
}

// SetURL loads a new source document
func (v *Viewer) SetURL(url string) error {
	return v.session.Load(url)
}

// SetMode switches between single-page and all-pages display
func (v *Viewer) SetMode(mode Mode) error {
	return v.scheduler.ChangeMode(mode, -1)
}

// SetPage navigates after the navigation quiet period; only the last page of a burst is shown
func (v *Viewer) SetPage(page int) {
	v.navSlot.Trigger(func() {
		v.scheduler.GoToPage(page)
	})
}

// SetDPI changes the output resolution and re-renders
func (v *Viewer) SetDPI(dpi int) error {
	if err := v.scheduler.SetDPI(dpi); err != nil {
		return err
	}
	return v.scheduler.Rerender(0)
}

// SetScale changes the display scale in percent and re-renders
func (v *Viewer) SetScale(percent float64) error {
	return v.scheduler.ChangeScale(percent, -1)
}

// Resize records a host resize; a burst collapses into one scheduled render
func (v *Viewer) Resize() {
	frame := v.frame.Add(1)
	v.resizeSlot.Trigger(func() {
		v.scheduler.Schedule(frame)
	})
}

// Download returns the original fetched bytes
func (v *Viewer) Download() ([]byte, bool) {
	return v.session.Data()
}

// PageImage returns the visible bitmap for page n
func (v *Viewer) PageImage(n int) (image.Image, bool) {
	return v.container.PageImage(n)
}

// Snapshot describes the viewer for a host view
func (v *Viewer) Snapshot() Snapshot {
	return Snapshot{
		ContainerSnapshot: v.container.Snapshot(),
		ViewState:         v.scheduler.State(),
		Status:            v.scheduler.Status().String(),
		URL:               v.session.URL(),
		PageCount:         v.session.PageCount(),
		Stats:             v.scheduler.Stats(),
	}
}

// Wait blocks until no render pass is in flight
func (v *Viewer) Wait() {
	v.scheduler.Wait()
}

// Close tears the viewer down: pending actions are cancelled and the document released
func (v *Viewer) Close() {
	v.closeOnce.Do(func() {
		v.scheduler.Abort()
		v.cancel()
		v.session.Dispose()
		v.logger.Debug("Viewer closed")
	})
}

// quietHandler drops debug records unless the viewer runs with Debug
type quietHandler struct {
	slog.Handler
}

func (h quietHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level > slog.LevelDebug && h.Handler.Enabled(ctx, level)
}

func (h quietHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return quietHandler{h.Handler.WithAttrs(attrs)}
}

func (h quietHandler) WithGroup(name string) slog.Handler {
	return quietHandler{h.Handler.WithGroup(name)}
}
