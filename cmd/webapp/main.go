//go:build js && wasm
// +build js,wasm

// Command webapp is the browser side of pdfview, built with GOARCH=wasm GOOS=js into web/app.wasm
package main

import (
	"github.com/drummonds/pdfview/webapp"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

func main() {
	webapp.RegisterRoutes()
	app.RunWhenOnBrowser()
}
