package viewer

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// passRequest is the ViewState captured when a pass is minted
type passRequest struct {
	mode Mode
	page int
	dpi  int
}

// errSkipped marks a pass that found no document to render
var errSkipped = errors.New("no document loaded")

// Scheduler serializes render requests against the visible container
type Scheduler struct {
	mu          sync.Mutex
	ctx         context.Context
	logger      *slog.Logger
	session     *Session
	container   *Container
	surfaces    *SurfaceManager
	rasterizer  *Rasterizer
	concurrency int
	onError     func(error)
	slots       []*Slot

	state  ViewState
	status Status
	// pageCount mirrors the live document so page checks never take the session lock
	pageCount int
	// loading is set while a document load is outstanding; passes settle back to Loading until it clears
	loading bool
	// epoch is the current render token; a pass may touch the container only while it holds it
	epoch uint64
	// inflight counts running passes, idle is signalled on s.mu when it drops to zero
	inflight int
	idle     *sync.Cond
	stats    Stats

	scheduling     bool
	pendingTrigger bool
	latestTrigger  int64
}

// State returns a copy of the view state
func (s *Scheduler) State() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the state machine position
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats returns pass counters
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Wait blocks until no render pass is in flight. Debounced actions still pending may start
// passes afterwards; call Abort first to wait for a quiet scheduler.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
}

// Schedule coalesces resize-style triggers: while a scheduled pass is outstanding only the
// latest trigger is kept, and exactly one more pass runs for it once the scheduler is free
func (s *Scheduler) Schedule(trigger int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduling {
		s.stats.Coalesced++
		s.pendingTrigger = true
		s.latestTrigger = trigger
		return
	}
	s.scheduling = true
	s.latestTrigger = trigger
	s.startScheduledLocked()
}

func (s *Scheduler) startScheduledLocked() {
	s.logger.Debug("Scheduled render", "trigger", s.latestTrigger)
	s.startLocked(s.requestLocked(), s.scheduledDone)
}

func (s *Scheduler) scheduledDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingTrigger {
		s.pendingTrigger = false
		s.startScheduledLocked()
		return
	}
	s.scheduling = false
}

// ChangeMode switches display mode; asking for the current mode does nothing
func (s *Scheduler) ChangeMode(mode Mode, page int) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}

	s.mu.Lock()
	if mode == s.state.Mode {
		s.mu.Unlock()
		return nil
	}

	switch mode {
	case SinglePage:
		target := s.state.CurrentPage
		if page > 0 {
			if err := s.checkPageLocked(page); err != nil {
				s.mu.Unlock()
				s.onError(err)
				return err
			}
			target = page
		}
		s.state.Mode = SinglePage
		s.state.CurrentPage = target
	case AllPages:
		s.state.Mode = AllPages
	}
	s.logger.Debug("Mode changed", "mode", s.state.Mode.String(), "page", s.state.CurrentPage)
	s.startLocked(s.requestLocked(), nil)
	s.mu.Unlock()
	return nil
}

// ChangeScale sets scale to percent/100 and re-renders in the current mode
func (s *Scheduler) ChangeScale(percent float64, page int) error {
	if percent <= 0 {
		return ErrInvalidScale
	}

	s.mu.Lock()
	if page > 0 {
		if err := s.checkPageLocked(page); err != nil {
			s.mu.Unlock()
			s.onError(err)
			return err
		}
		s.state.CurrentPage = page
	}
	s.state.Scale = percent / 100
	s.startLocked(s.requestLocked(), nil)
	s.mu.Unlock()
	return nil
}

// SetDPI changes the output resolution; it does not render, call Rerender
func (s *Scheduler) SetDPI(dpi int) error {
	if dpi <= 0 {
		return ErrInvalidDPI
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DPI = dpi
	return nil
}

// Rerender forces a fresh pass in the current mode; page <= 0 keeps the current page
func (s *Scheduler) Rerender(page int) error {
	s.mu.Lock()
	if page > 0 {
		if err := s.checkPageLocked(page); err != nil {
			s.mu.Unlock()
			s.onError(err)
			return err
		}
		s.state.CurrentPage = page
	}
	s.startLocked(s.requestLocked(), nil)
	s.mu.Unlock()
	return nil
}

// GoToPage navigates to page n; in all-pages mode every page is already shown so only the
// current page is recorded
func (s *Scheduler) GoToPage(n int) error {
	s.mu.Lock()
	if err := s.checkPageLocked(n); err != nil {
		s.mu.Unlock()
		s.onError(err)
		return err
	}
	s.state.CurrentPage = n
	if s.state.Mode == SinglePage {
		s.startLocked(s.requestLocked(), nil)
	}
	s.mu.Unlock()
	return nil
}

// Abort cancels pending debounced actions; in-flight passes and fetches run to completion.
// A cancelled load is forgotten, so the same URL may be requested again.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	slots := append([]*Slot(nil), s.slots...)
	s.mu.Unlock()

	s.session.cancelLoad()
	for _, slot := range slots {
		if slot.Cancel() {
			s.logger.Debug("Cancelled pending action", "slot", slot.Name())
		}
	}
}

func (s *Scheduler) track(slot *Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, slot)
}

// checkPageLocked rejects pages outside the loaded document; without a document nothing can be checked
func (s *Scheduler) checkPageLocked(page int) error {
	if page < 1 || (s.pageCount > 0 && page > s.pageCount) {
		return pageRangeError(page, s.pageCount)
	}
	return nil
}

func (s *Scheduler) requestLocked() passRequest {
	req := passRequest{mode: s.state.Mode, page: s.state.CurrentPage, dpi: s.state.DPI}
	if req.mode == AllPages {
		req.page = 1
	}
	return req
}

func (s *Scheduler) sessionLoading(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("Status loading", "url", url, "previous", s.status.String())
	s.loading = true
	s.status = StatusLoading
}

func (s *Scheduler) sessionFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("Status error", "error", err, "previous", s.status.String())
	s.loading = false
	s.status = StatusError
}

// sessionAborted drops the outstanding load; a pass still running settles to Idle on its own
func (s *Scheduler) sessionAborted(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("Load aborted", "url", url, "previous", s.status.String())
	s.loading = false
	if s.status == StatusLoading {
		s.status = StatusIdle
	}
}

// sessionReady clears the container and issues the first pass for a new document
func (s *Scheduler) sessionReady(pageCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false
	s.pageCount = pageCount
	if s.state.CurrentPage > pageCount {
		s.state.CurrentPage = 1
	}
	s.surfaces.Clear(s.container)
	s.startLocked(s.requestLocked(), nil)
}

// startLocked mints a new token, superseding every pass in flight
func (s *Scheduler) startLocked(req passRequest, done func()) {
	s.epoch++
	token := s.epoch
	s.status = StatusRendering
	s.stats.Started++
	s.inflight++
	go s.run(token, req, done)
}

func (s *Scheduler) run(token uint64, req passRequest, done func()) {
	defer s.passDone()

	var err error
	if ref := s.session.acquire(); ref == nil {
		err = errSkipped
	} else {
		err = s.renderPass(token, ref, req)
		ref.release()
	}
	s.finish(token, req, err)

	if done != nil {
		done()
	}
}

func (s *Scheduler) renderPass(token uint64, ref *docRef, req passRequest) error {
	doc := ref.doc
	pageCount := doc.PageCount()

	// validate before clearing so a rejected page leaves the previous surface visible
	if req.mode == SinglePage && (req.page < 1 || req.page > pageCount) {
		return pageRangeError(req.page, pageCount)
	}

	s.mu.Lock()
	if token != s.epoch {
		s.mu.Unlock()
		return errStale
	}
	s.surfaces.Clear(s.container)
	// attach under the lock so a newer pass cannot be displaced by this one
	surface, err := s.surfaces.CreateSurface(s.ctx, s.container)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	p := &pass{scheduler: s, token: token, surface: surface, leadPage: req.page}
	s.logger.Debug("Render pass started", "token", token, "mode", req.mode.String(), "page", req.page, "dpi", req.dpi)

	if req.mode == SinglePage {
		return s.rasterizer.Rasterize(s.ctx, doc, req.page, req.dpi, p)
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for n := 1; n <= pageCount; n++ {
		g.Go(func() error {
			if !s.holds(token) {
				return errStale
			}
			return s.rasterizer.Rasterize(s.ctx, doc, n, req.dpi, p)
		})
	}
	return g.Wait()
}

func (s *Scheduler) passDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
}

func (s *Scheduler) holds(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token == s.epoch
}

// finish records the pass outcome; only the current pass may report or change status
func (s *Scheduler) finish(token uint64, req passRequest, err error) {
	s.mu.Lock()
	current := token == s.epoch
	var report error

	switch {
	case errors.Is(err, errSkipped):
		s.stats.Skipped++
		s.logger.Debug("Render skipped, no document loaded", "token", token)
		if current {
			s.settleLocked()
		}
	case !current || errors.Is(err, errStale) || errors.Is(err, context.Canceled):
		s.stats.Discarded++
		s.logger.Debug("Render pass superseded, output discarded", "token", token, "error", err)
	case err != nil:
		s.stats.Failed++
		s.settleLocked()
		report = err
	default:
		s.stats.Committed++
		s.settleLocked()
		s.container.setLoading(false)
		s.logger.Debug("Render pass committed", "token", token, "mode", req.mode.String(), "page", req.page)
	}
	s.mu.Unlock()

	if report != nil {
		s.logger.Warn("Render pass failed", "token", token, "error", report)
		s.onError(report)
	}
}

// settleLocked ends a pass: back to Loading while a load is outstanding, otherwise Idle
func (s *Scheduler) settleLocked() {
	if s.status != StatusRendering {
		return
	}
	if s.loading {
		s.status = StatusLoading
		return
	}
	s.status = StatusIdle
}

// pass is the PageSink for one render pass; every mutation re-checks the token under the scheduler lock
type pass struct {
	scheduler *Scheduler
	token     uint64
	surface   *Surface
	// leadPage styles the page box and un-hides the view when committed
	leadPage int
}

func (p *pass) Insert(n int, geom PrintGeometry) (*PageElement, error) {
	s := p.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.token != s.epoch {
		return nil, errStale
	}
	if n == p.leadPage {
		if err := p.surface.InjectPrintStyles(geom.WidthPt, geom.HeightPt); err != nil {
			return nil, err
		}
	}
	return s.container.appendPage(p.surface, n, geom)
}

func (p *pass) Commit(el *PageElement, offscreen *image.RGBA) error {
	s := p.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.token != s.epoch {
		return errStale
	}
	if err := s.container.paint(p.surface, el, offscreen); err != nil {
		return err
	}
	if el.Number == p.leadPage {
		s.container.setLoading(false)
	}
	return nil
}
