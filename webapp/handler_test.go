package webapp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesPages(t *testing.T) {
	handler := Handler()

	for _, r := range routes {
		t.Run(r.title, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, r.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code == http.StatusNotFound {
				t.Errorf("Route %s returned 404", r.path)
			}
			if rec.Code == http.StatusOK && !strings.Contains(rec.Body.String(), StylesheetPath) {
				t.Errorf("Page %s does not link the stylesheet", r.path)
			}
			t.Logf("Route %s returned status %d", r.path, rec.Code)
		})
	}
}

func TestPageFor(t *testing.T) {
	if _, ok := pageFor("/").(*ViewerPage); !ok {
		t.Error("Expected ViewerPage at /")
	}
	if _, ok := pageFor("/about").(*AboutPage); !ok {
		t.Error("Expected AboutPage at /about")
	}
}

func TestTitleFor(t *testing.T) {
	tests := map[string]string{
		"/":        "pdfview",
		"/about":   "About - pdfview",
		"/missing": "Not found - pdfview",
	}
	for path, want := range tests {
		if got := titleFor(path); got != want {
			t.Errorf("titleFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestStylesheetEmbedded(t *testing.T) {
	if !strings.Contains(string(Stylesheet()), ".recent-documents") {
		t.Error("Expected the embedded stylesheet to carry the recent documents rules")
	}
}

func TestConfigScript(t *testing.T) {
	tests := map[string]string{
		"":                      `window.pdfviewConfig = {apiURL: ""};`,
		"http://localhost:8000": `window.pdfviewConfig = {apiURL: "http://localhost:8000"};`,
		`http://x/"quoted"`:     `window.pdfviewConfig = {apiURL: "http://x/\"quoted\""};`,
	}
	for apiURL, want := range tests {
		if got := strings.TrimSpace(ConfigScript(apiURL)); got != want {
			t.Errorf("ConfigScript(%q) = %q, want %q", apiURL, got, want)
		}
	}
}
