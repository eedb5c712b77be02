package engine

import (
	"fmt"
	"net/http"
	"time"

	"github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/database"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/drummonds/pdfview/viewer"
	"github.com/labstack/echo/v4"
)

// Services holds what a server opens once at startup and releases on exit
type Services struct {
	Backend pdfrenderer.Backend
	History database.Repository // nil when history is off
	// Fetcher downloads documents for every server viewer: http(s) only, size capped
	Fetcher *viewer.HTTPFetcher
}

// NewFetcher is the server viewers' fetcher; file urls stay disabled so only /documents exposes local files
func NewFetcher(serverConfig config.ServerConfig) *viewer.HTTPFetcher {
	fetcher := viewer.NewHTTPFetcher()
	fetcher.MaxBytes = serverConfig.FetchMaxBytes
	fetcher.AllowedHosts = serverConfig.FetchAllowedHosts
	return fetcher
}

// OpenServices starts the configured render backend and history database
func OpenServices(serverConfig config.ServerConfig) (*Services, error) {
	backend, err := pdfrenderer.NewBackend(serverConfig.RenderBackend, pdfrenderer.PoolConfig{
		MinIdle:  serverConfig.PDFiumMinIdle,
		MaxIdle:  serverConfig.PDFiumMaxIdle,
		MaxTotal: serverConfig.PDFiumMaxTotal,
		Acquire:  30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("render backend %q: %w", serverConfig.RenderBackend, err)
	}
	Logger.Info("Render backend started", "backend", serverConfig.RenderBackend)

	history, err := database.Open(serverConfig)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("history database %q: %w", serverConfig.DatabaseType, err)
	}
	return &Services{Backend: backend, History: history, Fetcher: NewFetcher(serverConfig)}, nil
}

// NewServerHandler builds a handler over the services with a fresh viewer registry
func (s *Services) NewServerHandler(e *echo.Echo, serverConfig config.ServerConfig) *ServerHandler {
	handler := &ServerHandler{
		Echo:         e,
		ServerConfig: serverConfig,
		Registry:     NewRegistry(),
		Backend:      s.Backend,
		History:      s.History,
	}
	if s.Fetcher != nil {
		handler.Fetcher = s.Fetcher
	}
	return handler
}

func (s *Services) Close() {
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			Logger.Error("Failed to close history database", "error", err)
		}
	}
	if err := s.Backend.Close(); err != nil {
		Logger.Error("Failed to close render backend", "error", err)
	}
}

// NotFoundJSON is the 404 body for API paths
func NotFoundJSON(c echo.Context) error {
	return c.JSON(http.StatusNotFound, map[string]string{
		"error":   "Not Found",
		"message": "The requested API endpoint does not exist",
		"path":    c.Request().URL.Path,
	})
}
