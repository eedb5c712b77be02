package webapp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// RecentDocuments lists the documents viewed most recently on this server
type RecentDocuments struct {
	app.Compo

	// OnOpen is called with the url of the document the user picked
	OnOpen func(ctx app.Context, url string)

	documents []RecentDocument
	loaded    bool
	disabled  bool
}

func (r *RecentDocuments) OnMount(ctx app.Context) {
	callAPI(ctx, "GET", BuildAPIURL("/api/history?limit=10"), nil, func(ctx app.Context, status int, jsonStr string) {
		r.loaded = true
		if status != 200 {
			// 503 when the server keeps no history
			r.disabled = true
			return
		}
		var documents []RecentDocument
		if err := json.Unmarshal([]byte(jsonStr), &documents); err != nil {
			app.Log("Failed to parse history:", err)
			return
		}
		r.documents = documents
	}, func(ctx app.Context) {
		r.loaded = true
		r.disabled = true
	})
}

// documentName is the last path segment of a document url
func documentName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return raw
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil {
		return path.Base(u.Path)
	}
	return name
}

// viewSummary reads like "3 pages, viewed 4 times (1 failed)"
func viewSummary(doc RecentDocument) string {
	var parts []string
	if doc.PageCount == 1 {
		parts = append(parts, "1 page")
	} else if doc.PageCount > 1 {
		parts = append(parts, fmt.Sprintf("%d pages", doc.PageCount))
	}
	views := "viewed once"
	if doc.Views != 1 {
		views = fmt.Sprintf("viewed %d times", doc.Views)
	}
	if doc.Failures > 0 {
		views += fmt.Sprintf(" (%d failed)", doc.Failures)
	}
	parts = append(parts, views)
	return strings.Join(parts, ", ")
}

func (r *RecentDocuments) Render() app.UI {
	if !r.loaded || r.disabled || len(r.documents) == 0 {
		return app.Div().Class("recent-documents")
	}
	return app.Div().Class("recent-documents").Body(
		app.H3().Text("Recent documents"),
		app.Ul().Body(
			app.Range(r.documents).Slice(func(i int) app.UI {
				doc := r.documents[i]
				return app.Li().Body(
					app.A().
						Href("#").
						Title(doc.URL).
						Text(documentName(doc.URL)).
						OnClick(func(ctx app.Context, e app.Event) {
							e.PreventDefault()
							if r.OnOpen != nil {
								r.OnOpen(ctx, doc.URL)
							}
						}),
					app.Span().Class("recent-summary").Text(" "+viewSummary(doc)),
					app.Span().Class("recent-time").Text(" "+doc.LastViewed.Local().Format(time.DateTime)),
				)
			}),
		),
	)
}
