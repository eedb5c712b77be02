package webapp

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// AboutPage displays information about the render server
type AboutPage struct {
	app.Compo
	aboutInfo AboutInfo
	loading   bool
	error     string
}

// OnMount is called when the component is mounted
func (a *AboutPage) OnMount(ctx app.Context) {
	a.loading = true
	a.fetchAboutInfo(ctx)
}

// fetchAboutInfo fetches the about information from the API
func (a *AboutPage) fetchAboutInfo(ctx app.Context) {
	callAPI(ctx, "GET", BuildAPIURL("/api/about"), nil, func(ctx app.Context, status int, jsonStr string) {
		if status != 200 {
			a.error = apiError(jsonStr)
		} else if err := json.Unmarshal([]byte(jsonStr), &a.aboutInfo); err != nil {
			a.error = fmt.Sprintf("Failed to parse response: %v", err)
		}
		a.loading = false
	}, func(ctx app.Context) {
		a.error = "Network error"
		a.loading = false
	})
}

// Render renders the about page
func (a *AboutPage) Render() app.UI {
	if a.loading {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About pdfview"),
			app.Div().Class("loading").Body(app.Text("Loading...")),
		)
	}

	if a.error != "" {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About pdfview"),
			app.Div().Class("error").Body(app.Text("Error: "+a.error)),
		)
	}

	return app.Div().Class("about-page").Body(
		app.H2().Text("About pdfview"),
		app.Div().Class("about-content").Body(
			app.Div().Class("about-section").Body(
				app.H3().Text("Server Information"),
				app.Div().Class("info-grid").Body(
					a.renderInfoItem("Version", a.aboutInfo.Version),
					a.renderInfoItem("Renderer", a.getBackendDisplay()),
					a.renderInfoItem("Open Viewers", strconv.Itoa(a.aboutInfo.ActiveViewers)),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Viewer Defaults"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Resolution: "),
						app.Text(fmt.Sprintf("%d dpi", a.aboutInfo.DefaultDPI)),
					),
					app.P().Body(
						app.Strong().Text("Display Mode: "),
						app.Text(a.getModeDisplay()),
					),
					app.P().Body(
						app.Strong().Text("Parallel Page Renders: "),
						app.Text(strconv.Itoa(a.aboutInfo.RenderConcurrency)),
					),
					app.P().Body(
						app.Strong().Text("Idle Viewer Timeout: "),
						app.Text(a.aboutInfo.IdleTimeout),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Document Storage"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Document Path: "),
						app.Text(a.aboutInfo.DocumentPath),
					),
					app.P().Body(
						app.Strong().Text("History Database: "),
						app.Text(a.getHistoryDisplay()),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("About pdfview"),
				app.P().Text("pdfview renders PDF documents on the server and streams page bitmaps to the browser."),
				app.P().Text("Documents can be shown one page at a time or all at once, at a chosen print resolution."),
			),
		),
	)
}

// renderInfoItem creates an info item display
func (a *AboutPage) renderInfoItem(label, value string) app.UI {
	return app.Div().Class("info-item").Body(
		app.Div().Class("info-label").Body(app.Text(label)),
		app.Div().Class("info-value").Body(app.Text(value)),
	)
}

// getBackendDisplay returns a user-friendly renderer name
func (a *AboutPage) getBackendDisplay() string {
	switch a.aboutInfo.RenderBackend {
	case "fitz":
		return "MuPDF"
	case "pdfium":
		return "PDFium (WebAssembly)"
	default:
		return a.aboutInfo.RenderBackend
	}
}

// getModeDisplay returns the default display mode as a user-friendly string
func (a *AboutPage) getModeDisplay() string {
	if a.aboutInfo.DefaultMode == 2 {
		return "All pages"
	}
	return "Single page"
}

// getHistoryDisplay names the database keeping document history
func (a *AboutPage) getHistoryDisplay() string {
	switch a.aboutInfo.HistoryDatabase {
	case "sqlite":
		return "SQLite"
	case "postgres":
		return "PostgreSQL"
	case "cockroachdb":
		return "CockroachDB"
	case "ephemeral":
		return "Ephemeral PostgreSQL (development)"
	case "", "none":
		return "Disabled"
	default:
		return a.aboutInfo.HistoryDatabase
	}
}
