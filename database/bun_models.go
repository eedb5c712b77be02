package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunView represents the document_views table for Bun ORM
type BunView struct {
	bun.BaseModel `bun:"table:document_views,alias:v"`

	ID        string    `bun:"id,pk"` // ULID, sortable by time
	ViewerID  string    `bun:"viewer_id,notnull"`
	URL       string    `bun:"url,notnull"`
	Status    string    `bun:"status,notnull"`
	PageCount int       `bun:"page_count,notnull"`
	ErrorKind string    `bun:"error_kind,nullzero"`
	Message   string    `bun:"message,nullzero"`
	ViewedAt  time.Time `bun:"viewed_at,notnull"`
}

// ToView converts BunView to View
func (bv *BunView) ToView() (View, error) {
	id, err := ulid.Parse(bv.ID)
	if err != nil {
		return View{}, err
	}
	return View{
		ID:        id,
		ViewerID:  bv.ViewerID,
		URL:       bv.URL,
		Status:    bv.Status,
		PageCount: bv.PageCount,
		ErrorKind: bv.ErrorKind,
		Message:   bv.Message,
		ViewedAt:  bv.ViewedAt,
	}, nil
}

// FromView converts View to BunView
func FromView(view *View) *BunView {
	return &BunView{
		ID:        view.ID.String(),
		ViewerID:  view.ViewerID,
		URL:       view.URL,
		Status:    view.Status,
		PageCount: view.PageCount,
		ErrorKind: view.ErrorKind,
		Message:   view.Message,
		ViewedAt:  view.ViewedAt.UTC(),
	}
}
