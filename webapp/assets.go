package webapp

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed webapp.css
var stylesheet []byte

// StylesheetPath is where the servers mount Stylesheet
const StylesheetPath = "/webapp/webapp.css"

// Stylesheet is the web app's css, embedded so servers need no webapp directory at runtime
func Stylesheet() []byte {
	return stylesheet
}

// ConfigScript is the /config.js body that tells the wasm app where the API lives; "" keeps calls relative
func ConfigScript(apiURL string) string {
	quoted, _ := json.Marshal(apiURL)
	return fmt.Sprintf("window.pdfviewConfig = {apiURL: %s};\n", quoted)
}
