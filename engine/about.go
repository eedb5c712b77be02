package engine

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Version can be set at build time with -ldflags
var Version = "dev"

// AboutInfo describes the running render server
type AboutInfo struct {
	Version           string `json:"version"`
	RenderBackend     string `json:"renderBackend"`
	DefaultDPI        int    `json:"defaultDPI"`
	DefaultMode       int    `json:"defaultMode"`
	RenderConcurrency int    `json:"renderConcurrency"`
	IdleTimeout       string `json:"idleTimeout"`
	ActiveViewers     int    `json:"activeViewers"`
	DocumentPath      string `json:"documentPath"`
	HistoryDatabase   string `json:"historyDatabase"`
}

// GetAboutInfo returns the server version, renderer and viewer defaults
// @Summary Get server information
// @Description Version, render backend, viewer defaults and the number of open viewers
// @Tags Admin
// @Produce json
// @Success 200 {object} AboutInfo "Server information"
// @Router /about [get]
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {
	cfg := serverHandler.ServerConfig
	backend := cfg.RenderBackend
	if backend == "" {
		backend = "pdfium"
	}
	historyDB := cfg.DatabaseType
	if serverHandler.History == nil {
		historyDB = "none"
	}
	return c.JSON(http.StatusOK, AboutInfo{
		Version:           Version,
		RenderBackend:     backend,
		DefaultDPI:        cfg.DefaultDPI,
		DefaultMode:       cfg.DefaultMode,
		RenderConcurrency: cfg.RenderConcurrency,
		IdleTimeout:       cfg.IdleTimeout.String(),
		ActiveViewers:     serverHandler.Registry.Len(),
		DocumentPath:      cfg.DocumentPath,
		HistoryDatabase:   historyDB,
	})
}

// HealthCheck reports the service as up
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Service healthy"
// @Router /health [get]
func (serverHandler *ServerHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pdfview Render API",
	})
}
