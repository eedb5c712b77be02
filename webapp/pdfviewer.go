package webapp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// pollInterval is how often a mounted viewer refreshes its snapshot
const pollInterval = 250 * time.Millisecond

// viewerAttrs are the host attributes a viewer element carries
type viewerAttrs struct {
	URL   string
	Mode  string
	Page  int
	DPI   int
	Scale float64 // percent
}

// attrChange is one PUT against the viewer API
type attrChange struct {
	path string
	body interface{}
}

// changedAttrs lists the commands needed to move the server viewer from sent to cur.
// Mode goes before page so a mode switch can carry its page in one request.
func changedAttrs(sent, cur viewerAttrs) []attrChange {
	var changes []attrChange
	modeChanged := cur.Mode != "" && cur.Mode != sent.Mode
	if modeChanged {
		changes = append(changes, attrChange{"mode", map[string]interface{}{"mode": cur.Mode, "page": cur.Page}})
	}
	if cur.Page > 0 && cur.Page != sent.Page && !modeChanged {
		changes = append(changes, attrChange{"page", map[string]interface{}{"page": cur.Page}})
	}
	if cur.DPI > 0 && cur.DPI != sent.DPI {
		changes = append(changes, attrChange{"dpi", map[string]interface{}{"dpi": cur.DPI}})
	}
	if cur.Scale > 0 && cur.Scale != sent.Scale {
		changes = append(changes, attrChange{"scale", map[string]interface{}{"scale": cur.Scale}})
	}
	if cur.URL != "" && cur.URL != sent.URL {
		changes = append(changes, attrChange{"url", map[string]interface{}{"url": cur.URL}})
	}
	return changes
}

// pageImageURL versions the image url with the surface so a re-render busts the browser cache
func pageImageURL(id string, page int, version uint64) string {
	return BuildAPIURL(fmt.Sprintf("/api/viewers/%s/pages/%d?v=%d", url.PathEscape(id), page, version))
}

// mergeEvents appends new events, keeping the newest max
func mergeEvents(have, fresh []ViewerEvent, max int) []ViewerEvent {
	have = append(have, fresh...)
	if len(have) > max {
		have = have[len(have)-max:]
	}
	return have
}

// PDFViewer is the embeddable viewer element. Its exported fields are the host attributes.
type PDFViewer struct {
	app.Compo

	URL         string
	Mode        string
	Page        int
	DPI         int
	Scale       float64
	LoadingText string
	Debug       bool
	// OnLoaded is called with the page count after each successful load
	OnLoaded func(ctx app.Context, pageCount int)

	id       string
	sent     viewerAttrs
	snapshot ViewerSnapshot
	events   []ViewerEvent
	lastSeq  int64
	loaded   string
	err      string
	ticker   *time.Ticker
}

func (v *PDFViewer) attrs() viewerAttrs {
	return viewerAttrs{URL: v.URL, Mode: v.Mode, Page: v.Page, DPI: v.DPI, Scale: v.Scale}
}

// OnMount creates the server side viewer and starts polling it
func (v *PDFViewer) OnMount(ctx app.Context) {
	body := map[string]interface{}{
		"url":         v.URL,
		"mode":        v.Mode,
		"page":        v.Page,
		"dpi":         v.DPI,
		"scale":       v.Scale,
		"loadingText": v.LoadingText,
		"debug":       v.Debug,
	}
	sent := v.attrs()
	callAPI(ctx, "POST", BuildAPIURL("/api/viewers"), body, func(ctx app.Context, status int, jsonStr string) {
		if status != 201 {
			v.err = apiError(jsonStr)
			return
		}
		if err := json.Unmarshal([]byte(jsonStr), &v.snapshot); err != nil {
			v.err = fmt.Sprintf("Failed to parse response: %v", err)
			return
		}
		v.id = v.snapshot.ID
		v.sent = sent
		v.startPolling(ctx)
		// attributes may have moved while the create was in flight
		v.pushChanges(ctx)
	}, func(ctx app.Context) {
		v.err = "Network error"
	})
}

// OnUpdate forwards changed host attributes to the viewer
func (v *PDFViewer) OnUpdate(ctx app.Context) {
	v.pushChanges(ctx)
}

// OnResize lets the server coalesce a burst of window resizes into one render
func (v *PDFViewer) OnResize(ctx app.Context) {
	if v.id == "" {
		return
	}
	callAPI(ctx, "POST", BuildAPIURL("/api/viewers/"+url.PathEscape(v.id)+"/resize"), nil,
		func(ctx app.Context, status int, jsonStr string) {},
		func(ctx app.Context) {})
}

// OnDismount stops polling and closes the server side viewer
func (v *PDFViewer) OnDismount() {
	if v.ticker != nil {
		v.ticker.Stop()
	}
	if v.id != "" && app.IsClient {
		app.Window().Call("fetch", BuildAPIURL("/api/viewers/"+url.PathEscape(v.id)), map[string]interface{}{"method": "DELETE"})
	}
}

func (v *PDFViewer) pushChanges(ctx app.Context) {
	if v.id == "" {
		return
	}
	cur := v.attrs()
	for _, change := range changedAttrs(v.sent, cur) {
		callAPI(ctx, "PUT", BuildAPIURL("/api/viewers/"+url.PathEscape(v.id)+"/"+change.path), change.body,
			func(ctx app.Context, status int, jsonStr string) {
				if status >= 400 {
					v.err = apiError(jsonStr)
				}
			},
			func(ctx app.Context) {
				v.err = "Network error"
			})
	}
	v.sent = cur
}

func (v *PDFViewer) startPolling(ctx app.Context) {
	ctx.Async(func() {
		v.ticker = time.NewTicker(pollInterval)
		for range v.ticker.C {
			v.refresh(ctx)
		}
	})
}

// refresh pulls the snapshot and any events newer than the last one seen
func (v *PDFViewer) refresh(ctx app.Context) {
	base := "/api/viewers/" + url.PathEscape(v.id)
	callAPI(ctx, "GET", BuildAPIURL(base), nil, func(ctx app.Context, status int, jsonStr string) {
		if status != 200 {
			return
		}
		var snap ViewerSnapshot
		if err := json.Unmarshal([]byte(jsonStr), &snap); err != nil {
			return
		}
		v.snapshot = snap
		if snap.Status == "idle" && snap.URL != "" && snap.URL != v.loaded && v.OnLoaded != nil {
			v.loaded = snap.URL
			v.OnLoaded(ctx, snap.PageCount)
		}
	}, func(ctx app.Context) {})

	callAPI(ctx, "GET", BuildAPIURL(fmt.Sprintf("%s/events?after=%d", base, v.lastSeq)), nil, func(ctx app.Context, status int, jsonStr string) {
		if status != 200 {
			return
		}
		var fresh []ViewerEvent
		if err := json.Unmarshal([]byte(jsonStr), &fresh); err != nil || len(fresh) == 0 {
			return
		}
		v.lastSeq = fresh[len(fresh)-1].Seq
		v.events = mergeEvents(v.events, fresh, 20)
	}, func(ctx app.Context) {})
}

// Render renders the loading indicator, the visible surface and the print stylesheet
func (v *PDFViewer) Render() app.UI {
	base := "/api/viewers/" + url.PathEscape(v.id)
	loadingText := v.snapshot.LoadingText
	if loadingText == "" {
		loadingText = v.LoadingText
	}

	return app.Div().Class("pdf-viewer").Body(
		app.If(v.id != "", func() app.UI {
			return app.Link().
				Rel("stylesheet").
				Href(BuildAPIURL(fmt.Sprintf("%s/print.css?v=%d", base, v.snapshot.Version))).
				Attr("media", "print")
		}),
		app.If(v.snapshot.Loading || v.id == "", func() app.UI {
			return app.Div().Class("pdf-loading").Text(loadingText)
		}),
		app.Div().Class("pdf-pages").ID(v.snapshot.SurfaceID).Body(
			app.Range(v.snapshot.Pages).Slice(func(i int) app.UI {
				p := v.snapshot.Pages[i]
				return app.Img().
					Class("pdf-page").
					Src(pageImageURL(v.id, p.Number, v.snapshot.Version)).
					Alt(fmt.Sprintf("Page %d", p.Number)).
					Style("width", fmt.Sprintf("%.2fpt", p.WidthPt)).
					Style("height", fmt.Sprintf("%.2fpt", p.HeightPt))
			}),
		),
		app.If(v.snapshot.PageCount > 0, func() app.UI {
			return app.Div().Class("pdf-footer").Body(
				app.Span().Class("pdf-status").Text(fmt.Sprintf("Page %d of %d (%s)", v.snapshot.CurrentPage, v.snapshot.PageCount, v.snapshot.Status)),
				app.A().Class("pdf-download").Href(BuildAPIURL(base+"/download")).Text("Download"),
			)
		}),
		app.If(v.err != "", func() app.UI {
			return app.Div().Class("error").Text("Error: " + v.err)
		}),
		app.If(v.Debug && len(v.events) > 0, func() app.UI {
			return app.Ul().Class("pdf-events").Body(
				app.Range(v.events).Slice(func(i int) app.UI {
					ev := v.events[i]
					if ev.Type == "success" {
						return app.Li().Class("event-success").Text(fmt.Sprintf("loaded %d pages", ev.PageCount))
					}
					return app.Li().Class("event-error").Text(fmt.Sprintf("[%s] %s", ev.Kind, ev.Message))
				}),
			)
		}),
	)
}
