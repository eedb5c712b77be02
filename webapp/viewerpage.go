package webapp

import (
	"strconv"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// dpiChoices are the resolutions offered in the toolbar
var dpiChoices = []int{72, 96, 150, 300, 600}

// ViewerPage hosts one PDFViewer and the controls that drive its attributes
type ViewerPage struct {
	app.Compo
	url       string
	urlInput  string
	mode      string
	page      int
	dpi       int
	scale     float64
	pageCount int
}

// OnMount picks up ?url=, ?mode=, ?page= and ?dpi= so viewer links can be shared
func (p *ViewerPage) OnMount(ctx app.Context) {
	p.mode = "1"
	p.page = 1
	p.dpi = 150
	p.scale = 100
	query := app.Window().URL().Query()
	p.url = query.Get("url")
	p.urlInput = p.url
	if mode := query.Get("mode"); mode == "1" || mode == "2" {
		p.mode = mode
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil && page > 0 {
		p.page = page
	}
	if dpi, err := strconv.Atoi(query.Get("dpi")); err == nil && dpi > 0 {
		p.dpi = dpi
	}
}

// clampPage keeps page navigation inside the loaded document
func clampPage(page, pageCount int) int {
	if page < 1 {
		return 1
	}
	if pageCount > 0 && page > pageCount {
		return pageCount
	}
	return page
}

func (p *ViewerPage) onURLInput(ctx app.Context, e app.Event) {
	p.urlInput = ctx.JSSrc().Get("value").String()
}

func (p *ViewerPage) onOpen(ctx app.Context, e app.Event) {
	e.PreventDefault()
	if p.urlInput == "" || p.urlInput == p.url {
		return
	}
	p.url = p.urlInput
	p.page = 1
	p.pageCount = 0
}

func (p *ViewerPage) openRecent(ctx app.Context, url string) {
	p.url = url
	p.urlInput = url
	p.page = 1
	p.pageCount = 0
}

func (p *ViewerPage) onModeChange(ctx app.Context, e app.Event) {
	p.mode = ctx.JSSrc().Get("value").String()
}

func (p *ViewerPage) onDPIChange(ctx app.Context, e app.Event) {
	if dpi, err := strconv.Atoi(ctx.JSSrc().Get("value").String()); err == nil {
		p.dpi = dpi
	}
}

func (p *ViewerPage) onScaleChange(ctx app.Context, e app.Event) {
	if scale, err := strconv.ParseFloat(ctx.JSSrc().Get("value").String(), 64); err == nil && scale > 0 {
		p.scale = scale
	}
}

func (p *ViewerPage) onPrevious(ctx app.Context, e app.Event) {
	p.page = clampPage(p.page-1, p.pageCount)
}

func (p *ViewerPage) onNext(ctx app.Context, e app.Event) {
	p.page = clampPage(p.page+1, p.pageCount)
}

func (p *ViewerPage) onLoaded(ctx app.Context, pageCount int) {
	p.pageCount = pageCount
	p.page = clampPage(p.page, pageCount)
}

// Render renders the toolbar and the viewer
func (p *ViewerPage) Render() app.UI {
	return app.Div().Class("viewer-page").Body(
		app.Form().Class("viewer-toolbar").OnSubmit(p.onOpen).Body(
			app.Input().
				Type("text").
				Class("url-input").
				Placeholder("/documents/example.pdf").
				Value(p.urlInput).
				OnInput(p.onURLInput),
			app.Button().Type("submit").Text("Open"),
			app.Select().Class("mode-select").OnChange(p.onModeChange).Body(
				app.Option().Value("1").Selected(p.mode == "1").Text("Single page"),
				app.Option().Value("2").Selected(p.mode == "2").Text("All pages"),
			),
			app.Button().
				Type("button").
				Disabled(p.mode != "1" || p.page <= 1).
				OnClick(p.onPrevious).
				Text("Previous"),
			app.Span().Class("page-indicator").Text(p.pageLabel()),
			app.Button().
				Type("button").
				Disabled(p.mode != "1" || (p.pageCount > 0 && p.page >= p.pageCount)).
				OnClick(p.onNext).
				Text("Next"),
			app.Select().Class("dpi-select").OnChange(p.onDPIChange).Body(
				app.Range(dpiChoices).Slice(func(i int) app.UI {
					dpi := dpiChoices[i]
					return app.Option().
						Value(strconv.Itoa(dpi)).
						Selected(dpi == p.dpi).
						Text(strconv.Itoa(dpi) + " dpi")
				}),
			),
			app.Input().
				Type("number").
				Class("scale-input").
				Min(10).
				Max(400).
				Step(10).
				Value(strconv.FormatFloat(p.scale, 'f', -1, 64)).
				OnChange(p.onScaleChange),
		),
		app.If(p.url == "", func() app.UI {
			return app.Div().Body(
				app.P().Class("viewer-empty").Text("Enter the url of a PDF document to view it."),
				&RecentDocuments{OnOpen: p.openRecent},
			)
		}).Else(func() app.UI {
			return &PDFViewer{
				URL:         p.url,
				Mode:        p.mode,
				Page:        p.page,
				DPI:         p.dpi,
				Scale:       p.scale,
				LoadingText: "Loading...",
				Debug:       true,
				OnLoaded:    p.onLoaded,
			}
		}),
	)
}

func (p *ViewerPage) pageLabel() string {
	if p.pageCount == 0 {
		return strconv.Itoa(p.page)
	}
	return strconv.Itoa(p.page) + " / " + strconv.Itoa(p.pageCount)
}
