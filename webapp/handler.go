package webapp

import (
	"net/http"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// Handler returns the go-app page handler; app.wasm itself is served from /web by the caller
func Handler() http.Handler {
	RegisterRoutes()
	app.RunWhenOnBrowser()

	return &app.Handler{
		Name:        "pdfview",
		Title:       titleFor("/"),
		Description: "PDF document viewer",
		Icon: app.Icon{
			Default: "/favicon.ico",
		},
		Styles:  []string{StylesheetPath},
		Scripts: []string{"/config.js"},
		RawHeaders: []string{
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
		},
	}
}
