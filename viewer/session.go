package viewer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/drummonds/pdfview/engine/pdfrenderer"
)

// docRef keeps a decoded handle alive while render passes still use it
type docRef struct {
	mu        sync.Mutex
	doc       pdfrenderer.Document
	url       string
	pageCount int
	refs      int
	retired   bool
	closed    bool
	logger    *slog.Logger
}

func (d *docRef) acquire() {
	d.mu.Lock()
	d.refs++
	d.mu.Unlock()
}

func (d *docRef) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs--
	d.closeIfUnused()
}

// retire marks the handle superseded; it closes as soon as no pass holds it
func (d *docRef) retire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retired = true
	d.closeIfUnused()
}

func (d *docRef) closeIfUnused() {
	if !d.retired || d.refs > 0 || d.closed {
		return
	}
	d.closed = true
	if err := d.doc.Close(); err != nil {
		d.logger.Warn("Failed to close document", "url", d.url, "error", err)
	}
	d.logger.Debug("Document released", "url", d.url)
}

// sessionListener is told about load state transitions
type sessionListener interface {
	sessionLoading(url string)
	sessionFailed(err error)
	sessionReady(pageCount int)
	sessionAborted(url string)
}

// Session owns the fetched bytes and decoded document for one source URL
type Session struct {
	// mu may be held while calling the listener, never the other way round
	mu        sync.Mutex
	ctx       context.Context
	backend   pdfrenderer.Backend
	fetcher   Fetcher
	slot      *Slot
	logger    *slog.Logger
	listener  sessionListener
	onError   func(error)
	onSuccess func(Success)

	// requested is the URL of the latest accepted Load, generation counts them
	requested  string
	generation uint64
	current    *docRef
	data       []byte
	closed     bool
}

// Load requests the document at url; bursts collapse into the last URL after the load slot's quiet period
func (s *Session) Load(url string) error {
	if url == "" {
		return &Error{Kind: KindLoad, Err: ErrURLEmpty}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &Error{Kind: KindLoad, URL: url, Err: ErrClosed}
	}
	if url == s.requested {
		s.mu.Unlock()
		return &Error{Kind: KindLoad, URL: url, Err: ErrURLUnchanged}
	}
	s.requested = url
	s.generation++
	gen := s.generation
	s.listener.sessionLoading(url)
	// trigger under the lock so cancelLoad never sees the slot and generation disagree
	s.slot.Trigger(func() { s.fetchAndDecode(gen, url) })
	s.mu.Unlock()

	s.logger.Debug("Load requested", "url", url, "generation", gen)
	return nil
}

// cancelLoad drops a load still waiting out its quiet period and forgets its URL. A load whose
// fetch has already started is left to finish.
func (s *Session) cancelLoad() bool {
	s.mu.Lock()
	if s.closed || !s.slot.Cancel() {
		s.mu.Unlock()
		return false
	}
	url := s.requested
	s.generation++
	s.requested = ""
	if s.current != nil {
		s.requested = s.current.url
	}
	s.listener.sessionAborted(url)
	s.mu.Unlock()

	s.logger.Debug("Cancelled pending load", "url", url)
	return true
}

func (s *Session) latest(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && gen == s.generation
}

func (s *Session) fetchAndDecode(gen uint64, url string) {
	if !s.latest(gen) {
		return
	}

	s.logger.Debug("Fetching document", "url", url)
	data, err := s.fetcher.Fetch(s.ctx, url)
	if err != nil {
		s.fail(gen, &Error{Kind: KindNetwork, URL: url, Err: err})
		return
	}
	if !s.latest(gen) {
		s.logger.Debug("Discarding superseded fetch", "url", url)
		return
	}

	doc, err := s.backend.Decode(s.ctx, data)
	if err != nil {
		s.fail(gen, &Error{Kind: KindDecode, URL: url, Err: err})
		return
	}

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("Discarding superseded document", "url", url)
		doc.Close()
		return
	}
	old := s.current
	ref := &docRef{doc: doc, url: url, pageCount: doc.PageCount(), logger: s.logger}
	s.current = ref
	s.data = data
	s.listener.sessionReady(ref.pageCount)
	s.mu.Unlock()

	if old != nil {
		old.retire()
	}

	s.logger.Info("Document loaded", "url", url, "pages", ref.pageCount)
	s.onSuccess(Success{URL: url, PageCount: ref.pageCount})
}

// fail reports err for the latest load and leaves the previous document in place
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	// let the same URL be requested again after a failure
	s.requested = ""
	if s.current != nil {
		s.requested = s.current.url
	}
	s.listener.sessionFailed(err)
	s.mu.Unlock()

	s.logger.Warn("Document load failed", "error", err)
	s.onError(err)
}

// acquire returns the live document with a reference held, or nil when none is loaded
func (s *Session) acquire() *docRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	s.current.acquire()
	return s.current
}

// PageCount is the live document's page count, zero when none is loaded
func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.pageCount
}

// URL is the live document's source
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.url
}

// Data returns the original fetched bytes of the live document
func (s *Session) Data() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.data, true
}

// Dispose releases the live document and refuses further loads
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.slot.Cancel()
	old := s.current
	s.current = nil
	s.data = nil
	s.mu.Unlock()

	if old != nil {
		old.retire()
	}
}
