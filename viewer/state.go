package viewer

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is the display mode
type Mode int

const (
	SinglePage Mode = 1
	AllPages   Mode = 2
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == SinglePage || m == AllPages
}

func (m Mode) String() string {
	switch m {
	case SinglePage:
		return "single"
	case AllPages:
		return "all"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseMode accepts the numeric attribute form ("1", "2") and the names
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "single", "page":
		return SinglePage, nil
	case "2", "all":
		return AllPages, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// ViewState is what the next render pass will show
type ViewState struct {
	Mode        Mode    `json:"mode"`
	CurrentPage int     `json:"currentPage"`
	DPI         int     `json:"dpi"`
	Scale       float64 `json:"scale"`
}

// DefaultViewState is single page mode on page 1 at 300 DPI
func DefaultViewState() ViewState {
	return ViewState{Mode: SinglePage, CurrentPage: 1, DPI: 300, Scale: 1}
}

func (s ViewState) normalized() ViewState {
	def := DefaultViewState()
	if !s.Mode.Valid() {
		s.Mode = def.Mode
	}
	if s.CurrentPage < 1 {
		s.CurrentPage = def.CurrentPage
	}
	if s.DPI <= 0 {
		s.DPI = def.DPI
	}
	if s.Scale <= 0 {
		s.Scale = def.Scale
	}
	return s
}

// Status is the scheduler's position in its load/render state machine
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusRendering
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusRendering:
		return "rendering"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Success is delivered once per successfully decoded document
type Success struct {
	URL       string `json:"url"`
	PageCount int    `json:"pageCount"`
}

// Stats counts render passes by outcome
type Stats struct {
	Started   uint64 `json:"started"`
	Committed uint64 `json:"committed"`
	Discarded uint64 `json:"discarded"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
	Coalesced uint64 `json:"coalesced"`
}
