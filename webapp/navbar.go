package webapp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// Version info - can be set at build time with -ldflags
var (
	Version   = "dev"
	BuildDate = ""
)

// NavBar is the navigation bar component
type NavBar struct {
	app.Compo
	activeViewers int
	path          string
	refreshTicker *time.Ticker
}

// Render renders the navigation bar
func (n *NavBar) Render() app.UI {
	return app.Nav().
		Class("navbar").
		Body(
			app.Div().Class("navbar-brand").Body(
				app.H1().Text("pdfview"),
				app.Span().Class("version-info").Body(
					app.Text(n.getVersionInfo()),
				),
			),
			app.Div().Class("navbar-menu").Body(
				app.Range(routes).Slice(func(i int) app.UI {
					r := routes[i]
					return app.A().
						Href(r.path).
						Class(navItemClass(r.path, n.path)).
						Text(r.title)
				}),
			),
		)
}

// OnNav tracks the current path so its link can be highlighted
func (n *NavBar) OnNav(ctx app.Context) {
	n.path = ctx.Page().URL().Path
}

func navItemClass(itemPath, currentPath string) string {
	if itemPath == currentPath {
		return "navbar-item active"
	}
	return "navbar-item"
}

// OnMount is called when the component is mounted
func (n *NavBar) OnMount(ctx app.Context) {
	n.loadActiveViewers(ctx)

	// Start auto-refresh every 5 seconds
	ctx.Async(func() {
		n.refreshTicker = time.NewTicker(5 * time.Second)
		for range n.refreshTicker.C {
			n.loadActiveViewers(ctx)
		}
	})
}

// OnDismount is called when the component is unmounted
func (n *NavBar) OnDismount() {
	if n.refreshTicker != nil {
		n.refreshTicker.Stop()
	}
}

// getVersionInfo returns formatted version and date information with the open viewer count
func (n *NavBar) getVersionInfo() string {
	date := BuildDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	viewerInfo := ""
	if n.activeViewers > 0 {
		viewerInfo = fmt.Sprintf(" | %d open viewer", n.activeViewers)
		if n.activeViewers > 1 {
			viewerInfo += "s"
		}
	}

	return fmt.Sprintf("%s | %s%s", Version, date, viewerInfo)
}

// loadActiveViewers fetches the open viewer count from the API
func (n *NavBar) loadActiveViewers(ctx app.Context) {
	callAPI(ctx, "GET", BuildAPIURL("/api/about"), nil, func(ctx app.Context, status int, jsonStr string) {
		var info AboutInfo
		if status >= 200 && status < 300 && json.Unmarshal([]byte(jsonStr), &info) == nil {
			n.activeViewers = info.ActiveViewers
		} else {
			n.activeViewers = 0
		}
	}, func(ctx app.Context) {
		// Silently fail - keep the last count on network error
	})
}
