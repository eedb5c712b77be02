package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/database"
	engine "github.com/drummonds/pdfview/engine"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	engine.Logger = Logger
	database.Logger = Logger
}

// @title pdfview Render API
// @version 1.0
// @description PDF render server - server side viewers that load documents, rasterize pages and report errors
// @description A viewer is created per embedded element and driven by attribute commands

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /api
// @schemes http https

// @tag.name Viewers
// @tag.description Viewer lifecycle, attribute commands and rendered pages

// @tag.name History
// @tag.description Recently viewed documents and load outcomes

// @tag.name Admin
// @tag.description Server information

// @tag.name Health
// @tag.description Service health check

// newAPIServer serves only the viewer API and documents; the web app comes from cmd/frontend
func newAPIServer(serverConfig config.ServerConfig, services *engine.Services) (*echo.Echo, *engine.ServerHandler) {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if he, ok := err.(*echo.HTTPError); ok && he.Code == http.StatusNotFound {
			engine.NotFoundJSON(c)
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	// the frontend runs on another origin
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))

	serverHandler := services.NewServerHandler(e, serverConfig)
	serverHandler.RegisterRoutes()
	return e, serverHandler
}

func main() {
	port := flag.String("port", "", "Port to run backend server on (overrides config)")
	flag.Parse()

	serverConfig, logger := config.SetupServer()
	injectGlobals(logger)
	if *port != "" {
		serverConfig.ListenAddrPort = *port
	}

	services, err := engine.OpenServices(serverConfig)
	if err != nil {
		Logger.Error("Failed to open services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	e, serverHandler := newAPIServer(serverConfig, services)
	defer serverHandler.Registry.CloseAll()

	if err := serverHandler.StartupChecks(); err != nil {
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}
	scheduler := serverHandler.InitializeSchedules()
	defer scheduler.Stop()

	addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	Logger.Info("Starting render API server", "address", addr, "health", "/api/health")
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		Logger.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
