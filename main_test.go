package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	engine "github.com/drummonds/pdfview/engine"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
)

// getBrowser finds an available Chrome or Chromium for testing
func getBrowser() (string, error) {
	browsers := []string{"chromium", "chromium-browser", "google-chrome", "chrome"}
	for _, browser := range browsers {
		if path, err := exec.LookPath(browser); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no suitable browser found")
}

// TestWasmFileValid checks the built web app when it is present
func TestWasmFileValid(t *testing.T) {
	wasmPath := "web/app.wasm"

	info, err := os.Stat(wasmPath)
	if err != nil {
		t.Skipf("WASM file not found at %s: %v. Build it with GOARCH=wasm GOOS=js go build -o web/app.wasm ./cmd/webapp", wasmPath, err)
	}

	if info.Size() == 0 {
		t.Fatal("WASM file is empty")
	}

	file, err := os.Open(wasmPath)
	if err != nil {
		t.Fatalf("Failed to open WASM file: %v", err)
	}
	defer file.Close()

	magicNumber := make([]byte, 4)
	if _, err := file.Read(magicNumber); err != nil {
		t.Fatalf("Failed to read WASM magic number: %v", err)
	}

	// WASM magic number should be: 0x00 0x61 0x73 0x6d ("\0asm")
	expectedMagic := []byte{0x00, 0x61, 0x73, 0x6d}
	if !bytes.Equal(magicNumber, expectedMagic) {
		t.Errorf("Invalid WASM magic number. Got %v, expected %v", magicNumber, expectedMagic)
	}

	t.Logf("WASM file is valid: %s (%d bytes)", wasmPath, info.Size())
}

// TestRootEndpoint tests that the root endpoint returns the web app page
func TestRootEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	for _, path := range []string{"/", "/about", "/?url=/documents/a.pdf"} {
		req, _ := http.NewRequest(http.MethodGet, server.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status code 200 for %s, got %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
			t.Errorf("Expected HTML for %s, got %s", path, ct)
		}
	}
}

// TestViewerPageWithChromedp loads a document in the browser UI and waits for its page image
func TestViewerPageWithChromedp(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := os.Stat("web/app.wasm"); err != nil {
		t.Skip("web/app.wasm not built, skipping browser test")
	}
	browserPath, err := getBrowser()
	if err != nil {
		t.Skip("No Chrome/Chromium browser found, skipping chromedp test")
	}
	t.Logf("Using browser: %s", browserPath)

	server, _, docs := setupTestServer(t)
	sizes := []*pdfrenderer.Viewport{nil, nil}
	if err := os.WriteFile(filepath.Join(docs, "letter.pdf"), pdfrenderer.BlankPDF(sizes), 0644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browserPath),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pageTitle, status string
	var images int
	err = chromedp.Run(ctx,
		chromedp.Navigate(server.URL+"/?url=/documents/letter.pdf"),
		chromedp.WaitVisible("img.pdf-page", chromedp.ByQuery),
		chromedp.Title(&pageTitle),
		chromedp.Text(".pdf-status", &status, chromedp.ByQuery),
		chromedp.Evaluate(`document.querySelectorAll("img.pdf-page").length`, &images),
	)
	if err != nil {
		t.Fatalf("Failed to load viewer: %v", err)
	}

	if pageTitle == "" {
		t.Error("Page title is empty")
	}
	if images != 1 {
		t.Errorf("Expected one page in single page mode, got %d", images)
	}
	if !strings.Contains(status, "of 2") {
		t.Errorf("Expected page count in status, got %q", status)
	}
	t.Logf("Viewer test passed! Title: %s, status: %s", pageTitle, status)
}

// TestAboutPageWithChromedp tests the About page using a headless browser that can execute WASM
func TestAboutPageWithChromedp(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := os.Stat("web/app.wasm"); err != nil {
		t.Skip("web/app.wasm not built, skipping browser test")
	}
	browserPath, err := getBrowser()
	if err != nil {
		t.Skip("No Chrome/Chromium browser found, skipping chromedp test")
	}

	server, _, _ := setupTestServer(t)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browserPath),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var aboutHTML string
	err = chromedp.Run(ctx,
		chromedp.Navigate(server.URL+"/about"),
		chromedp.WaitVisible(".about-content", chromedp.ByQuery),
		chromedp.InnerHTML(".about-page", &aboutHTML, chromedp.ByQuery),
	)
	if err != nil {
		t.Fatalf("Failed to load about page: %v", err)
	}

	for _, want := range []string{"Server Information", "Viewer Defaults", "72 dpi"} {
		if !strings.Contains(aboutHTML, want) {
			t.Errorf("About page missing %q", want)
		}
	}
}

// TestNotFoundPage tests that unknown API paths answer with JSON instead of the web app
func TestNotFoundPage(t *testing.T) {
	injectGlobals(testLogger())
	e, _ := newServer(testConfig(t), &engine.Services{Backend: outlineBackend{}})

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "does not exist") {
		t.Errorf("Expected JSON 404, got %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/no/such/page", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), "The requested API endpoint does not exist") {
		t.Errorf("Page paths should not get the API 404 body")
	}
	t.Logf("Unknown page returned status %d", rec.Code)
}

func TestIsAddressInUse(t *testing.T) {
	if isAddressInUse(nil) {
		t.Error("nil is not an address error")
	}
	if !isAddressInUse(fmt.Errorf("listen tcp :8000: bind: address already in use")) {
		t.Error("Expected address in use to be detected")
	}
}
