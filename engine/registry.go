package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/drummonds/pdfview/viewer"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrViewerNotFound is returned for ids that were never issued or have been reaped
	ErrViewerNotFound = errors.New("viewer not found")
	ErrBadViewerID    = errors.New("invalid viewer id")
)

// maxEvents bounds the per-viewer event log; older events are dropped first
const maxEvents = 256

// Event is one onError/onSuccess notification, kept so polling clients can pick it up
type Event struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	Kind      string    `json:"kind,omitempty"`
	URL       string    `json:"url,omitempty"`
	Page      int       `json:"page,omitempty"`
	PageCount int       `json:"pageCount,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// ViewerEntry is a registered viewer plus its event log
type ViewerEntry struct {
	ID      ulid.ULID
	Viewer  *viewer.Viewer
	Created time.Time

	mu         sync.Mutex
	events     []Event
	seq        int64
	lastAccess time.Time
	observe    func(*ViewerEntry, Event)
}

// Events returns the logged events with Seq greater than after
func (e *ViewerEntry) Events(after int64) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := []Event{}
	for _, ev := range e.events {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out
}

// LastAccess is the time the entry was last looked up
func (e *ViewerEntry) LastAccess() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAccess
}

func (e *ViewerEntry) touch(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = now
}

func (e *ViewerEntry) record(ev Event) {
	e.mu.Lock()
	e.seq++
	ev.Seq = e.seq
	e.events = append(e.events, ev)
	if len(e.events) > maxEvents {
		e.events = e.events[len(e.events)-maxEvents:]
	}
	observe := e.observe
	e.mu.Unlock()

	// observers run outside the lock so they may read the entry
	if observe != nil {
		observe(e, ev)
	}
}

func (e *ViewerEntry) onError(now func() time.Time) func(error) {
	return func(err error) {
		ev := Event{Type: "error", Message: err.Error(), Time: now()}
		var verr *viewer.Error
		if errors.As(err, &verr) {
			ev.Kind = string(verr.Kind)
			ev.URL = verr.URL
			ev.Page = verr.Page
		}
		Logger.Debug("Viewer error", "viewer", e.ID.String(), "kind", ev.Kind, "error", err)
		e.record(ev)
	}
}

func (e *ViewerEntry) onSuccess(now func() time.Time) func(viewer.Success) {
	return func(s viewer.Success) {
		Logger.Debug("Viewer document loaded", "viewer", e.ID.String(), "url", s.URL, "pages", s.PageCount)
		e.record(Event{Type: "success", URL: s.URL, PageCount: s.PageCount, Time: now()})
	}
}

// Registry owns every viewer created through the API
type Registry struct {
	mu      sync.RWMutex
	viewers map[ulid.ULID]*ViewerEntry
	now     func() time.Time

	// OnEvent sees every event recorded by viewers created after it is set
	OnEvent func(*ViewerEntry, Event)
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{viewers: make(map[ulid.ULID]*ViewerEntry), now: time.Now}
}

// Create builds a viewer from opts, recording its callbacks in the entry's event log
func (r *Registry) Create(opts viewer.Options) (*ViewerEntry, error) {
	now := r.now()
	entry := &ViewerEntry{ID: ulid.Make(), Created: now, lastAccess: now, observe: r.OnEvent}

	onError, onSuccess := opts.OnError, opts.OnSuccess
	recordError, recordSuccess := entry.onError(r.now), entry.onSuccess(r.now)
	opts.OnError = func(err error) {
		recordError(err)
		if onError != nil {
			onError(err)
		}
	}
	opts.OnSuccess = func(s viewer.Success) {
		recordSuccess(s)
		if onSuccess != nil {
			onSuccess(s)
		}
	}

	v, err := viewer.New(opts)
	if err != nil {
		return nil, err
	}
	entry.Viewer = v

	r.mu.Lock()
	r.viewers[entry.ID] = entry
	r.mu.Unlock()
	return entry, nil
}

// Get looks a viewer up by its string id and marks it as accessed
func (r *Registry) Get(id string) (*ViewerEntry, error) {
	key, err := ulid.Parse(id)
	if err != nil {
		return nil, ErrBadViewerID
	}
	r.mu.RLock()
	entry, ok := r.viewers[key]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrViewerNotFound
	}
	entry.touch(r.now())
	return entry, nil
}

// Remove closes and unregisters a viewer
func (r *Registry) Remove(id string) error {
	key, err := ulid.Parse(id)
	if err != nil {
		return ErrBadViewerID
	}
	r.mu.Lock()
	entry, ok := r.viewers[key]
	delete(r.viewers, key)
	r.mu.Unlock()
	if !ok {
		return ErrViewerNotFound
	}
	entry.Viewer.Close()
	return nil
}

// ReapIdle closes viewers not accessed within maxIdle and returns how many were removed
func (r *Registry) ReapIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*ViewerEntry
	for id, entry := range r.viewers {
		if entry.LastAccess().Before(cutoff) {
			idle = append(idle, entry)
			delete(r.viewers, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range idle {
		Logger.Info("Reaping idle viewer", "viewer", entry.ID.String(), "lastAccess", entry.LastAccess())
		entry.Viewer.Close()
	}
	return len(idle)
}

// Len is the number of live viewers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// CloseAll closes every viewer, used on shutdown
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.viewers
	r.viewers = make(map[ulid.ULID]*ViewerEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.Viewer.Close()
	}
}
