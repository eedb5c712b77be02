package webapp

import (
	"net/url"
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// NotFoundPage is shown for paths no route claims
type NotFoundPage struct {
	app.Compo
	path string
}

// viewerLinkFor offers to open a mistyped document path in the viewer, or "" when the path is not a PDF
func viewerLinkFor(path string) string {
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return ""
	}
	return "/?url=" + url.QueryEscape(path)
}

func (p *NotFoundPage) Render() app.UI {
	path := p.path
	if path == "" && app.IsClient {
		path = app.Window().URL().Path
	}
	link := viewerLinkFor(path)

	return app.Div().
		Class("not-found-page").
		Body(
			app.H1().Class("not-found-title").Text("404"),
			app.P().Class("not-found-message").Body(
				app.Text("Nothing lives at "),
				app.Code().Text(path),
			),
			app.If(link != "", func() app.UI {
				return app.P().Body(
					app.A().Href(link).Text("Open "+path+" in the viewer"),
				)
			}),
			app.A().Href("/").Class("not-found-home-link").Text("Go to Viewer"),
		)
}
