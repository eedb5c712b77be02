package webapp

import (
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// route is one client side page
type route struct {
	path  string
	title string
	page  func() app.UI
}

// routes drives go-app registration, page selection, titles and the navbar links
var routes = []route{
	{path: "/", title: "Viewer", page: func() app.UI { return &ViewerPage{} }},
	{path: "/about", title: "About", page: func() app.UI { return &AboutPage{} }},
}

// RegisterRoutes points every page path at the App shell; the wasm entry and the server handler both call it
func RegisterRoutes() {
	for _, r := range routes {
		app.Route(r.path, func() app.Composer { return &App{} })
	}
}

func findRoute(path string) (route, bool) {
	for _, r := range routes {
		if r.path == path {
			return r, true
		}
	}
	return route{}, false
}

func pageFor(path string) app.UI {
	if r, ok := findRoute(path); ok {
		return r.page()
	}
	return &NotFoundPage{path: path}
}

// titleFor is the browser tab title of a path
func titleFor(path string) string {
	if r, ok := findRoute(path); ok && r.path != "/" {
		return r.title + " - pdfview"
	}
	if path == "/" {
		return "pdfview"
	}
	return "Not found - pdfview"
}

// App is the shell around every page: navbar on top, the routed page below
type App struct {
	app.Compo
	path string
}

// OnNav keeps the tab title in step with client side navigation
func (a *App) OnNav(ctx app.Context) {
	a.path = ctx.Page().URL().Path
	ctx.Page().SetTitle(titleFor(a.path))
}

func (a *App) Render() app.UI {
	path := a.path
	if path == "" {
		path = app.Window().URL().Path
	}
	return app.Div().
		Class("app-container").
		Body(
			app.Header().Body(
				&NavBar{},
			),
			app.Main().Class("main-content").Body(
				pageFor(path),
			),
		)
}
