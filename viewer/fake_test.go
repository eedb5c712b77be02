package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drummonds/pdfview/engine/pdfrenderer"
)

// fakeFetcher serves "fake:N" payloads; URLs listed in fail return a network error
type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]bool
	gate    chan struct{}
}

// stall makes every Fetch block until unstall is called
func (f *fakeFetcher) stall() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

func (f *fakeFetcher) unstall() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	gate := f.gate
	fail := f.fail[url]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("connection refused")
	}
	// the payload is the URL itself, e.g. "fake:3" decodes to a 3 page document
	return []byte(url), nil
}

func (f *fakeFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type renderCall struct {
	doc  string
	page int
	dpi  float64
}

// fakeBackend decodes "fake:N" into N pages of 72x36 points
type fakeBackend struct {
	mu       sync.Mutex
	calls    []renderCall
	gate     chan struct{}
	entered  chan int
	failPage int
	closed   []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entered: make(chan int, 256)}
}

// hold makes every Render block until release is called; earlier entries are drained
func (b *fakeBackend) hold() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
	for {
		select {
		case <-b.entered:
		default:
			return
		}
	}
}

func (b *fakeBackend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

func (b *fakeBackend) Calls() []renderCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]renderCall(nil), b.calls...)
}

func (b *fakeBackend) Closed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closed...)
}

func (b *fakeBackend) Decode(ctx context.Context, data []byte) (pdfrenderer.Document, error) {
	name := string(data)
	if !strings.HasPrefix(name, "fake:") {
		return nil, fmt.Errorf("not a document: %q", name)
	}
	pages, err := strconv.Atoi(strings.TrimPrefix(name, "fake:"))
	if err != nil {
		return nil, fmt.Errorf("bad page count: %w", err)
	}
	return &fakeDocument{backend: b, name: name, pages: pages}, nil
}

func (b *fakeBackend) Close() error {
	return nil
}

type fakeDocument struct {
	backend *fakeBackend
	name    string
	pages   int
}

func (d *fakeDocument) PageCount() int {
	return d.pages
}

func (d *fakeDocument) Page(ctx context.Context, n int) (pdfrenderer.Page, error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("no page %d", n)
	}
	return &fakePage{doc: d, number: n}, nil
}

func (d *fakeDocument) Close() error {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	d.backend.closed = append(d.backend.closed, d.name)
	return nil
}

type fakePage struct {
	doc    *fakeDocument
	number int
}

func (p *fakePage) Viewport(scale float64, rotation int) pdfrenderer.Viewport {
	return pdfrenderer.Viewport{Width: 72 * scale, Height: 36 * scale}
}

func (p *fakePage) Render(ctx context.Context, req pdfrenderer.RenderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	b := p.doc.backend

	b.mu.Lock()
	gate := b.gate
	fail := b.failPage == p.number
	b.calls = append(b.calls, renderCall{doc: p.doc.name, page: p.number, dpi: req.DPI()})
	b.mu.Unlock()

	select {
	case b.entered <- p.number:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errors.New("backend exploded")
	}
	// page n paints gray level n so tests can tell pages apart
	draw.Draw(req.Target, req.Target.Bounds(), image.NewUniform(color.Gray{Y: uint8(p.number)}), image.Point{}, draw.Src)
	return nil
}

// recorder collects callback events
type recorder struct {
	mu        sync.Mutex
	errs      []error
	successes []Success
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) onSuccess(s Success) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, s)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) Successes() []Success {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Success(nil), r.successes...)
}

type harness struct {
	viewer  *Viewer
	backend *fakeBackend
	fetcher *fakeFetcher
	events  *recorder
}

func newHarness(t *testing.T, state ViewState) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(),
		fetcher: &fakeFetcher{fail: map[string]bool{}},
		events:  &recorder{},
	}
	v, err := New(Options{
		Backend:        h.backend,
		Fetcher:        h.fetcher,
		LoadingText:    "Loading...",
		State:          state,
		LoadDebounce:   20 * time.Millisecond,
		NavDebounce:    20 * time.Millisecond,
		ResizeDebounce: 30 * time.Millisecond,
		OnError:        h.events.onError,
		OnSuccess:      h.events.onSuccess,
	})
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	h.viewer = v
	t.Cleanup(func() {
		h.fetcher.unstall()
		h.backend.release()
		v.Close()
		v.Wait()
	})
	return h
}

// load requests url and waits until the initial pass has settled
func (h *harness) load(t *testing.T, url string) {
	t.Helper()
	before := len(h.events.Successes()) + len(h.events.Errors())
	if err := h.viewer.SetURL(url); err != nil {
		t.Fatalf("SetURL(%q) failed: %v", url, err)
	}
	waitFor(t, "load outcome", func() bool {
		if len(h.events.Successes())+len(h.events.Errors()) == before {
			return false
		}
		status := h.viewer.Scheduler().Status()
		return status == StatusIdle || status == StatusError
	})
	h.viewer.Wait()
}

// waitFor polls cond until it holds or two seconds pass
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// awaitEntered waits until the backend has started rendering some page
func (h *harness) awaitEntered(t *testing.T) int {
	t.Helper()
	select {
	case n := <-h.backend.entered:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a render to start")
		return 0
	}
}
