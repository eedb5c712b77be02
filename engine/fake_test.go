package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/database"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/labstack/echo/v4"
)

// outlineBackend reads page structure with Inspect and paints every page solid gray
type outlineBackend struct{}

func (outlineBackend) Decode(ctx context.Context, data []byte) (pdfrenderer.Document, error) {
	info, err := pdfrenderer.Inspect(data)
	if err != nil {
		return nil, err
	}
	return &outlineDocument{info: info}, nil
}

func (outlineBackend) Close() error { return nil }

type outlineDocument struct {
	info pdfrenderer.Info
}

func (d *outlineDocument) PageCount() int { return d.info.PageCount }

func (d *outlineDocument) Page(ctx context.Context, n int) (pdfrenderer.Page, error) {
	if n < 1 || n > d.info.PageCount {
		return nil, fmt.Errorf("no page %d", n)
	}
	return outlinePage(d.info.Pages[n-1]), nil
}

func (d *outlineDocument) Close() error { return nil }

type outlinePage pdfrenderer.Viewport

func (p outlinePage) Viewport(scale float64, rotation int) pdfrenderer.Viewport {
	return pdfrenderer.Viewport{Width: p.Width * scale, Height: p.Height * scale}
}

func (p outlinePage) Render(ctx context.Context, req pdfrenderer.RenderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	draw.Draw(req.Target, req.Target.Bounds(), image.NewUniform(color.Gray{Y: 0x80}), image.Point{}, draw.Src)
	return nil
}

// testServer serves the API and a document directory over a real listener so relative urls resolve
type testServer struct {
	handler *ServerHandler
	server  *httptest.Server
	docs    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithHistory(t, nil)
}

// newTestServerWithHistory is newTestServer with load outcomes recorded in history
func newTestServerWithHistory(t *testing.T, history database.Repository) *testServer {
	t.Helper()
	docs := t.TempDir()

	e := echo.New()
	handler := &ServerHandler{
		Echo:     e,
		Registry: NewRegistry(),
		Backend:  outlineBackend{},
		History:  history,
		ServerConfig: config.ServerConfig{
			DocumentPath:      docs,
			RenderConcurrency: 2,
			IdleTimeout:       time.Minute,
			JanitorSchedule:   "@every 1m",
			ViewerConfig: config.ViewerConfig{
				DefaultDPI:     72,
				DefaultMode:    1,
				LoadingText:    "Loading...",
				LoadDebounce:   10 * time.Millisecond,
				NavDebounce:    10 * time.Millisecond,
				ResizeDebounce: 60 * time.Millisecond,
			},
		},
	}
	handler.RegisterRoutes()

	ts := &testServer{handler: handler, server: httptest.NewServer(e), docs: docs}
	t.Cleanup(func() {
		handler.Registry.CloseAll()
		ts.server.Close()
	})
	return ts
}

// addDocument writes a blank PDF with the given page sizes into the document directory
func (ts *testServer) addDocument(t *testing.T, name string, sizes ...*pdfrenderer.Viewport) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(ts.docs, name), pdfrenderer.BlankPDF(sizes), 0644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

// waitForViewer polls the snapshot until cond holds
func (ts *testServer) waitForViewer(t *testing.T, id string, cond func(viewerResponse) bool) viewerResponse {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var snap viewerResponse
	for time.Now().Before(deadline) {
		resp := ts.do(t, http.MethodGet, "/api/viewers/"+id, "")
		snap = viewerResponse{}
		decodeJSON(t, resp, &snap)
		if cond(snap) {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for viewer %s, last snapshot %+v", id, snap)
	return snap
}

func rendered(pages int) func(viewerResponse) bool {
	return func(s viewerResponse) bool {
		if s.Status != "idle" || len(s.Pages) != pages {
			return false
		}
		for _, p := range s.Pages {
			if !p.Committed {
				return false
			}
		}
		return true
	}
}
