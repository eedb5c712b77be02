package viewer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported through the error callback
type ErrorKind string

const (
	KindLoad      ErrorKind = "load"
	KindNetwork   ErrorKind = "network"
	KindDecode    ErrorKind = "decode"
	KindPageRange ErrorKind = "page_range"
	KindRender    ErrorKind = "render"
)

// Error is the error type surfaced by the viewer
type Error struct {
	Kind ErrorKind
	URL  string
	Page int
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.URL != "" {
		msg += fmt.Sprintf(" (url %s)", e.URL)
	}
	if e.Page != 0 {
		msg += fmt.Sprintf(" (page %d)", e.Page)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrNetwork) works on any network failure
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil || t.URL != "" || t.Page != 0 {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrLoad      = &Error{Kind: KindLoad}
	ErrNetwork   = &Error{Kind: KindNetwork}
	ErrDecode    = &Error{Kind: KindDecode}
	ErrPageRange = &Error{Kind: KindPageRange}
	ErrRender    = &Error{Kind: KindRender}
)

var (
	ErrURLEmpty     = errors.New("url is empty")
	ErrURLUnchanged = errors.New("url unchanged")
	ErrInvalidMode  = errors.New("invalid display mode")
	ErrInvalidDPI   = errors.New("dpi must be positive")
	ErrInvalidScale = errors.New("scale percent must be positive")
	ErrClosed       = errors.New("viewer closed")
	ErrNoBackend    = errors.New("document backend is required")
)

// errStale marks work whose render token was superseded; it is never reported
var errStale = errors.New("render pass superseded")

func pageRangeError(page, pageCount int) *Error {
	return &Error{
		Kind: KindPageRange,
		Page: page,
		Err:  fmt.Errorf("page %d outside 1..%d", page, pageCount),
	}
}
