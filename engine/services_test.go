package engine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/drummonds/pdfview/config"
	"github.com/labstack/echo/v4"
)

func TestOpenServicesUnknownBackend(t *testing.T) {
	_, err := OpenServices(config.ServerConfig{RenderBackend: "ghostscript"})
	if err == nil {
		t.Fatal("Expected an error for an unknown render backend")
	}
	t.Logf("Got expected error: %v", err)
}

func TestServicesNewServerHandler(t *testing.T) {
	history := openHistory(t)
	cfg := config.ServerConfig{DocumentPath: t.TempDir(), FetchMaxBytes: 1 << 20}
	services := &Services{Backend: outlineBackend{}, History: history, Fetcher: NewFetcher(cfg)}
	handler := services.NewServerHandler(echo.New(), cfg)
	if handler.Registry == nil || handler.History != history || handler.Backend != services.Backend {
		t.Errorf("Handler not wired from services: %+v", handler)
	}
	if handler.Fetcher != services.Fetcher || services.Fetcher.MaxBytes != 1<<20 || services.Fetcher.AllowFile {
		t.Errorf("Expected the size capped http fetcher, got %+v", services.Fetcher)
	}

	bare := (&Services{Backend: outlineBackend{}}).NewServerHandler(echo.New(), cfg)
	if bare.Fetcher != nil {
		t.Errorf("Expected no fetcher when services carry none, got %#v", bare.Fetcher)
	}
}

func TestNotFoundJSON(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rec := httptest.NewRecorder()
	if err := NotFoundJSON(e.NewContext(req, rec)); err != nil {
		t.Fatalf("NotFoundJSON failed: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["path"] != "/api/nope" {
		t.Errorf("Unexpected body %s (%v)", rec.Body.String(), err)
	}
}
