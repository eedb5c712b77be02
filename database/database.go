package database

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/drummonds/pdfview/config"
	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// ErrDisabled is returned when history is switched off (DATABASE_TYPE=none)
var ErrDisabled = errors.New("document history disabled")

// View statuses
const (
	StatusLoaded = "loaded"
	StatusFailed = "failed"
)

// View is one attempt by a viewer to open a document
type View struct {
	ID        ulid.ULID `json:"id"`
	ViewerID  string    `json:"viewerId"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	PageCount int       `json:"pageCount,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Message   string    `json:"message,omitempty"`
	ViewedAt  time.Time `json:"viewedAt"`
}

// DocumentSummary aggregates the views of one url
type DocumentSummary struct {
	URL        string    `json:"url" bun:"url"`
	Views      int       `json:"views" bun:"views"`
	Failures   int       `json:"failures" bun:"failures"`
	PageCount  int       `json:"pageCount" bun:"page_count"`
	LastViewed time.Time `json:"lastViewed" bun:"last_viewed"`
}

// Repository defines the document history operations
type Repository interface {
	Close() error
	RecordView(ctx context.Context, view *View) error
	RecentDocuments(ctx context.Context, limit int) ([]DocumentSummary, error)
	History(ctx context.Context, url string, limit int) ([]View, error)
	DeleteViewsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Open returns the configured history, or nil when history is switched off
func Open(cfg config.ServerConfig) (Repository, error) {
	db, err := NewRepository(cfg)
	if errors.Is(err, ErrDisabled) {
		Logger.Info("Document history disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

// NewView stamps a view with a fresh ULID and the current time
func NewView(viewerID, url, status string) *View {
	now := time.Now().UTC()
	return &View{
		ID:       ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		ViewerID: viewerID,
		URL:      url,
		Status:   status,
		ViewedAt: now,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}
