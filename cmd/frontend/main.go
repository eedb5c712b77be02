// Command frontend serves the wasm web app on its own and proxies the viewer API and documents to a backend
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/webapp"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// backendURL checks the API url is absolute, since the proxy needs somewhere to send requests
func backendURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute http or https", raw)
	}
	return u, nil
}

// newFrontend serves the web app and forwards /api and /documents to the backend
func newFrontend(cfg config.FrontEndConfig) (*echo.Echo, error) {
	target, err := backendURL(cfg.ServerAPIURL)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))

	appHandler := webapp.Handler()
	e.GET("/wasm_exec.js", func(c echo.Context) error {
		return c.File("web/wasm_exec.js")
	})
	e.Static("/web", "web")
	e.GET("/app.js", echo.WrapHandler(appHandler))
	e.GET("/app.css", echo.WrapHandler(appHandler))
	e.GET("/manifest.webmanifest", echo.WrapHandler(appHandler))

	e.GET(webapp.StylesheetPath, func(c echo.Context) error {
		return c.Blob(http.StatusOK, "text/css", webapp.Stylesheet())
	})
	// the page talks to this server and the proxy does the rest, so the API url stays relative
	e.GET("/config.js", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/javascript", []byte(webapp.ConfigScript("")))
	})

	// viewers resolve relative document urls against the backend, so documents come from there too
	proxy := middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: target}}),
	})
	e.Group("/api", proxy)
	e.Group("/documents", proxy)

	e.Any("/*", echo.WrapHandler(appHandler))
	return e, nil
}

func main() {
	port := flag.String("port", "3000", "Port to run frontend server on")
	apiURL := flag.String("api", "", "Backend API URL (overrides config)")
	flag.Parse()

	frontendConfig, logger := config.SetupFrontend()
	Logger = logger
	config.Logger = logger
	if *apiURL != "" {
		frontendConfig.ServerAPIURL = *apiURL
	}

	e, err := newFrontend(frontendConfig)
	if err != nil {
		Logger.Error("Bad frontend configuration", "error", err)
		os.Exit(1)
	}

	addr := ":" + *port
	Logger.Info("Starting frontend server", "address", addr, "backendAPI", frontendConfig.ServerAPIURL)
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		Logger.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
