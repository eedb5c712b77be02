package webapp

import (
	"testing"
)

func TestNotFoundPageRender(t *testing.T) {
	for _, path := range []string{"/nowhere", "/documents/report.PDF", ""} {
		page := &NotFoundPage{path: path}
		if ui := page.Render(); ui == nil {
			t.Errorf("Render returned nil for %q", path)
		}
	}
}

func TestViewerLinkFor(t *testing.T) {
	tests := map[string]string{
		"/documents/a b.pdf": "/?url=%2Fdocuments%2Fa+b.pdf",
		"/files/REPORT.PDF":  "/?url=%2Ffiles%2FREPORT.PDF",
		"/search":            "",
		"":                   "",
	}
	for path, want := range tests {
		if got := viewerLinkFor(path); got != want {
			t.Errorf("viewerLinkFor(%q) = %q, want %q", path, got, want)
		}
	}
}

// TestAppRendersNotFoundPage tests that unknown routes display NotFoundPage instead of the viewer
func TestAppRendersNotFoundPage(t *testing.T) {
	for _, path := range []string{"/search", "/viewer/extra", "/about/"} {
		page, ok := pageFor(path).(*NotFoundPage)
		if !ok {
			t.Errorf("Expected NotFoundPage for %s", path)
			continue
		}
		if page.path != path {
			t.Errorf("Expected the missing path %s to be kept, got %s", path, page.path)
		}
	}
}

func TestNavItemClass(t *testing.T) {
	if got := navItemClass("/about", "/about"); got != "navbar-item active" {
		t.Errorf("Expected the current page to be active, got %q", got)
	}
	if got := navItemClass("/", "/about"); got != "navbar-item" {
		t.Errorf("Expected other pages to be plain, got %q", got)
	}
}
