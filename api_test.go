package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	config "github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/database"
	engine "github.com/drummonds/pdfview/engine"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/labstack/echo/v4"
)

// outlineBackend reads page sizes with Inspect and paints pages white, so API tests run without a native renderer
type outlineBackend struct{}

func (outlineBackend) Decode(ctx context.Context, data []byte) (pdfrenderer.Document, error) {
	info, err := pdfrenderer.Inspect(data)
	if err != nil {
		return nil, err
	}
	return outlineDocument{info: info}, nil
}

func (outlineBackend) Close() error { return nil }

type outlineDocument struct{ info pdfrenderer.Info }

func (d outlineDocument) PageCount() int { return d.info.PageCount }

func (d outlineDocument) Page(ctx context.Context, n int) (pdfrenderer.Page, error) {
	if n < 1 || n > d.info.PageCount {
		return nil, fmt.Errorf("no page %d", n)
	}
	return outlinePage(d.info.Pages[n-1]), nil
}

func (d outlineDocument) Close() error { return nil }

type outlinePage pdfrenderer.Viewport

func (p outlinePage) Viewport(scale float64, rotation int) pdfrenderer.Viewport {
	return pdfrenderer.Viewport{Width: p.Width * scale, Height: p.Height * scale}
}

func (p outlinePage) Render(ctx context.Context, req pdfrenderer.RenderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	draw.Draw(req.Target, req.Target.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig is a server config with short debounce periods and a temporary document directory
func testConfig(t *testing.T) config.ServerConfig {
	t.Helper()
	return config.ServerConfig{
		DocumentPath:      t.TempDir(),
		RenderBackend:     "outline",
		RenderConcurrency: 2,
		IdleTimeout:       time.Minute,
		JanitorSchedule:   "@every 1m",
		ViewerConfig: config.ViewerConfig{
			DefaultDPI:     72,
			DefaultMode:    1,
			LoadingText:    "Loading...",
			LoadDebounce:   10 * time.Millisecond,
			NavDebounce:    10 * time.Millisecond,
			ResizeDebounce: 10 * time.Millisecond,
		},
		DatabaseConfig: config.DatabaseConfig{
			DatabaseType:     "sqlite",
			DatabaseDbname:   filepath.Join(t.TempDir(), "history.sqlite"),
			HistoryRetention: time.Hour,
			HistorySchedule:  "@daily",
		},
		FrontEndConfig: config.FrontEndConfig{ServerAPIURL: "http://api.example.com"},
	}
}

// setupTestServer creates a test server with all routes configured and returns its document directory
func setupTestServer(t *testing.T) (*httptest.Server, *engine.ServerHandler, string) {
	t.Helper()
	injectGlobals(testLogger())

	serverConfig := testConfig(t)
	history, err := database.Open(serverConfig)
	if err != nil {
		t.Fatalf("Failed to open history: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	e, serverHandler := newServer(serverConfig, &engine.Services{Backend: outlineBackend{}, History: history})
	server := httptest.NewServer(e)
	t.Cleanup(func() {
		serverHandler.Registry.CloseAll()
		server.Close()
	})
	return server, serverHandler, serverConfig.DocumentPath
}

func request(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// TestViewDocument tests loading a document and fetching its first page through the combined server
func TestViewDocument(t *testing.T) {
	server, _, docs := setupTestServer(t)
	sizes := []*pdfrenderer.Viewport{{Width: 144, Height: 72}, {Width: 72, Height: 144}}
	if err := os.WriteFile(filepath.Join(docs, "two.pdf"), pdfrenderer.BlankPDF(sizes), 0644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}

	resp := request(t, http.MethodPost, server.URL+"/api/viewers", `{"url": "/documents/two.pdf", "mode": "2"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	var snap struct {
		Status    string `json:"status"`
		PageCount int    `json:"pageCount"`
		Pages     []struct {
			Number      int  `json:"number"`
			PixelWidth  int  `json:"pixelWidth"`
			PixelHeight int  `json:"pixelHeight"`
			Committed   bool `json:"committed"`
		} `json:"pages"`
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp = request(t, http.MethodGet, server.URL+"/api/viewers/"+created.ID, "")
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("Failed to parse snapshot: %v", err)
		}
		if snap.Status == "idle" && len(snap.Pages) == 2 && snap.Pages[0].Committed && snap.Pages[1].Committed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for render, last snapshot %+v", snap)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if snap.PageCount != 2 || snap.Pages[0].PixelWidth != 144 || snap.Pages[1].PixelHeight != 144 {
		t.Errorf("Unexpected pages %+v", snap)
	}

	resp = request(t, http.MethodGet, server.URL+"/api/viewers/"+created.ID+"/pages/2", "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("Expected png page, got %d %s", resp.StatusCode, resp.Header.Get(echo.HeaderContentType))
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		t.Fatalf("Failed to decode page: %v", err)
	}
	if img.Bounds().Dx() != 72 || img.Bounds().Dy() != 144 {
		t.Errorf("Expected 72x144 page, got %v", img.Bounds())
	}

	// the load lands in the document history
	var recent []database.DocumentSummary
	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		resp = request(t, http.MethodGet, server.URL+"/api/history", "")
		recent = nil
		if err := json.NewDecoder(resp.Body).Decode(&recent); err != nil {
			t.Fatalf("Failed to parse history: %v", err)
		}
		if len(recent) > 0 {
			break
		}
	}
	if len(recent) != 1 || recent[0].URL != server.URL+"/documents/two.pdf" || recent[0].PageCount != 2 {
		t.Errorf("Unexpected history %+v", recent)
	}
}

// TestGetAboutInfo tests the /api/about endpoint
func TestGetAboutInfo(t *testing.T) {
	server, _, docs := setupTestServer(t)

	resp := request(t, http.MethodGet, server.URL+"/api/about", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var aboutInfo map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&aboutInfo); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	expectedFields := []string{"version", "renderBackend", "defaultDPI", "defaultMode", "activeViewers", "documentPath", "historyDatabase"}
	for _, field := range expectedFields {
		if _, exists := aboutInfo[field]; !exists {
			t.Errorf("Expected field '%s' in response", field)
		}
	}
	if aboutInfo["historyDatabase"] != "sqlite" {
		t.Errorf("Expected sqlite history, got %v", aboutInfo["historyDatabase"])
	}
	if aboutInfo["documentPath"] != docs {
		t.Errorf("Expected documentPath %s, got %v", docs, aboutInfo["documentPath"])
	}
	t.Logf("About info: %+v", aboutInfo)
}

// TestContentTypes tests that endpoints return correct content types
func TestContentTypes(t *testing.T) {
	server, _, _ := setupTestServer(t)

	tests := []struct {
		name         string
		endpoint     string
		expectedType string
	}{
		{"About endpoint", "/api/about", "application/json"},
		{"Health endpoint", "/api/health", "application/json"},
		{"History endpoint", "/api/history", "application/json"},
		{"Unknown API endpoint", "/api/documents/latest", "application/json"},
		{"Config script", "/config.js", "application/javascript"},
		{"Stylesheet", "/webapp/webapp.css", "text/css"},
		{"Web app", "/", "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := request(t, http.MethodGet, server.URL+tt.endpoint, "")
			contentType := resp.Header.Get(echo.HeaderContentType)
			if !strings.HasPrefix(contentType, tt.expectedType) {
				t.Errorf("Expected Content-Type %s, got %s", tt.expectedType, contentType)
			}
		})
	}
}

// TestErrorHandling tests API error handling
func TestErrorHandling(t *testing.T) {
	server, _, _ := setupTestServer(t)

	t.Run("Unknown API endpoint returns JSON 404", func(t *testing.T) {
		resp := request(t, http.MethodGet, server.URL+"/api/documents/latest", "")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", resp.StatusCode)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Expected JSON body: %v", err)
		}
		if body["path"] != "/api/documents/latest" {
			t.Errorf("Expected path in body, got %+v", body)
		}
	})

	t.Run("Invalid JSON in request body", func(t *testing.T) {
		resp := request(t, http.MethodPost, server.URL+"/api/viewers", "invalid json")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Very long viewer ID", func(t *testing.T) {
		resp := request(t, http.MethodGet, server.URL+"/api/viewers/"+strings.Repeat("a", 1000), "")
		if resp.StatusCode == http.StatusOK {
			t.Error("Should not return OK for invalid long ID")
		}
		t.Logf("Long ID returned status %d", resp.StatusCode)
	})
}

// TestConfigScript tests that the API url reaches the browser config
func TestConfigScript(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp := request(t, http.MethodGet, server.URL+"/config.js", "")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read config.js: %v", err)
	}
	if !strings.Contains(string(body), `window.pdfviewConfig`) || !strings.Contains(string(body), `apiURL: "http://api.example.com"`) {
		t.Errorf("Unexpected config.js: %s", body)
	}
}

// TestConcurrentRequests tests creating and closing viewers under concurrent load
func TestConcurrentRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrent test in short mode")
	}

	server, serverHandler, _ := setupTestServer(t)

	concurrency := 10
	errs := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		go func(id int) {
			resp, err := http.Post(server.URL+"/api/viewers", echo.MIMEApplicationJSON, strings.NewReader(`{"dpi": 96}`))
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			var created struct {
				ID string `json:"id"`
			}
			if resp.StatusCode != http.StatusCreated || json.NewDecoder(resp.Body).Decode(&created) != nil {
				errs <- fmt.Errorf("concurrent create %d failed with status %d", id, resp.StatusCode)
				return
			}
			req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/viewers/"+created.ID, nil)
			del, err := http.DefaultClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			del.Body.Close()
			if del.StatusCode != http.StatusNoContent {
				errs <- fmt.Errorf("concurrent delete %d failed with status %d", id, del.StatusCode)
				return
			}
			errs <- nil
		}(i)
	}

	for i := 0; i < concurrency; i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
	if n := serverHandler.Registry.Len(); n != 0 {
		t.Errorf("Expected every viewer closed, %d left", n)
	}
}
