package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/database"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/drummonds/pdfview/viewer"
	"github.com/labstack/echo/v4"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Registry     *Registry
	Backend      pdfrenderer.Backend
	// Fetcher is shared by every viewer; nil means a default http(s) fetcher per viewer
	Fetcher viewer.Fetcher
	// History records document loads; nil disables /api/history
	History database.Repository
}

// RegisterRoutes adds the viewer API and the document file server to the echo instance
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo

	e.POST("/api/viewers", serverHandler.CreateViewer)
	e.GET("/api/viewers/:id", serverHandler.GetViewer)
	e.DELETE("/api/viewers/:id", serverHandler.DeleteViewer)
	e.PUT("/api/viewers/:id/url", serverHandler.SetViewerURL)
	e.PUT("/api/viewers/:id/mode", serverHandler.SetViewerMode)
	e.PUT("/api/viewers/:id/page", serverHandler.SetViewerPage)
	e.PUT("/api/viewers/:id/dpi", serverHandler.SetViewerDPI)
	e.PUT("/api/viewers/:id/scale", serverHandler.SetViewerScale)
	e.POST("/api/viewers/:id/resize", serverHandler.ResizeViewer)
	e.POST("/api/viewers/:id/rerender", serverHandler.RerenderViewer)
	e.GET("/api/viewers/:id/pages/:page", serverHandler.GetViewerPage)
	e.GET("/api/viewers/:id/print.css", serverHandler.GetViewerPrintCSS)
	e.GET("/api/viewers/:id/download", serverHandler.DownloadDocument)
	e.GET("/api/viewers/:id/info", serverHandler.GetDocumentInfo)
	e.GET("/api/viewers/:id/events", serverHandler.GetViewerEvents)

	// Document history
	if serverHandler.History != nil {
		serverHandler.Registry.OnEvent = serverHandler.recordHistory
	}
	e.GET("/api/history", serverHandler.GetHistory)

	// Admin API routes
	e.GET("/api/about", serverHandler.GetAboutInfo)
	e.GET("/api/health", serverHandler.HealthCheck)

	// Document files (served as is - not JSON, so not under /api/*)
	if serverHandler.ServerConfig.DocumentPath != "" {
		e.Static("/documents", serverHandler.ServerConfig.DocumentPath)
	}
}

// createViewerRequest mirrors the attributes a host element would carry
type createViewerRequest struct {
	URL         string  `json:"url"`
	Mode        string  `json:"mode"`
	Page        int     `json:"page"`
	DPI         int     `json:"dpi"`
	Scale       float64 `json:"scale"` // percent
	LoadingText string  `json:"loadingText"`
	Debug       *bool   `json:"debug"`
}

type viewerResponse struct {
	ID string `json:"id"`
	viewer.Snapshot
}

type urlRequest struct {
	URL string `json:"url"`
}

type modeRequest struct {
	Mode string `json:"mode"`
	Page int    `json:"page"`
}

type pageRequest struct {
	Page int `json:"page"`
}

type dpiRequest struct {
	DPI int `json:"dpi"`
}

type scaleRequest struct {
	Scale float64 `json:"scale"` // percent
	Page  int     `json:"page"`
}

func errorJSON(c echo.Context, status int, err error) error {
	body := map[string]interface{}{"error": err.Error()}
	var verr *viewer.Error
	if errors.As(err, &verr) {
		body["kind"] = string(verr.Kind)
		if verr.Page != 0 {
			body["page"] = verr.Page
		}
	}
	return c.JSON(status, body)
}

// statusFor maps viewer and registry errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrViewerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadViewerID):
		return http.StatusBadRequest
	case errors.Is(err, viewer.ErrClosed):
		return http.StatusGone
	case errors.Is(err, viewer.ErrPageRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, viewer.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, viewer.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, viewer.ErrLoad),
		errors.Is(err, viewer.ErrInvalidMode),
		errors.Is(err, viewer.ErrInvalidDPI),
		errors.Is(err, viewer.ErrInvalidScale):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (serverHandler *ServerHandler) entry(c echo.Context) (*ViewerEntry, error) {
	entry, err := serverHandler.Registry.Get(c.Param("id"))
	if err != nil {
		return nil, errorJSON(c, statusFor(err), err)
	}
	return entry, nil
}

// resolveURL makes a document URL absolute; relative paths resolve against the request like a browser would
func resolveURL(c echo.Context, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() {
		return raw
	}
	base := &url.URL{Scheme: c.Scheme(), Host: c.Request().Host, Path: "/"}
	return base.ResolveReference(u).String()
}

// urlChecker is implemented by fetchers that can refuse a url up front
type urlChecker interface {
	CheckURL(rawURL string) error
}

// documentURL resolves raw and refuses urls the viewers' fetcher would refuse, so they fail the request
func (serverHandler *ServerHandler) documentURL(c echo.Context, raw string) (string, error) {
	resolved := resolveURL(c, raw)
	if resolved == "" {
		return resolved, nil
	}
	var checker urlChecker = viewer.NewHTTPFetcher()
	if serverHandler.Fetcher != nil {
		var ok bool
		if checker, ok = serverHandler.Fetcher.(urlChecker); !ok {
			return resolved, nil
		}
	}
	if err := checker.CheckURL(resolved); err != nil {
		return "", &viewer.Error{Kind: viewer.KindLoad, URL: resolved, Err: err}
	}
	return resolved, nil
}

func (serverHandler *ServerHandler) viewerOptions(req createViewerRequest) (viewer.Options, error) {
	vc := serverHandler.ServerConfig.ViewerConfig
	state := viewer.ViewState{
		Mode:        viewer.Mode(vc.DefaultMode),
		CurrentPage: 1,
		DPI:         vc.DefaultDPI,
		Scale:       1,
	}
	if req.Mode != "" {
		mode, err := viewer.ParseMode(req.Mode)
		if err != nil {
			return viewer.Options{}, err
		}
		state.Mode = mode
	}
	if req.Page < 0 {
		return viewer.Options{}, &viewer.Error{Kind: viewer.KindPageRange, Page: req.Page, Err: fmt.Errorf("page %d is not positive", req.Page)}
	}
	if req.Page > 0 {
		state.CurrentPage = req.Page
	}
	if req.DPI < 0 {
		return viewer.Options{}, viewer.ErrInvalidDPI
	}
	if req.DPI > 0 {
		state.DPI = req.DPI
	}
	if req.Scale < 0 {
		return viewer.Options{}, viewer.ErrInvalidScale
	}
	if req.Scale > 0 {
		state.Scale = req.Scale / 100
	}

	opts := viewer.Options{
		Backend:           serverHandler.Backend,
		Fetcher:           serverHandler.Fetcher,
		Logger:            Logger,
		Debug:             vc.Debug,
		LoadingText:       vc.LoadingText,
		State:             state,
		LoadDebounce:      vc.LoadDebounce,
		NavDebounce:       vc.NavDebounce,
		ResizeDebounce:    vc.ResizeDebounce,
		RenderConcurrency: serverHandler.ServerConfig.RenderConcurrency,
	}
	if req.LoadingText != "" {
		opts.LoadingText = req.LoadingText
	}
	if req.Debug != nil {
		opts.Debug = *req.Debug
	}
	return opts, nil
}

// CreateViewer creates a viewer and, when a url is given, starts loading it
// @Summary Create a viewer
// @Description Create a PDF viewer with optional initial url, mode, page, dpi and scale
// @Tags Viewers
// @Accept json
// @Produce json
// @Param request body createViewerRequest false "Initial viewer attributes"
// @Success 201 {object} viewerResponse "Created viewer"
// @Failure 400 {object} map[string]interface{} "Invalid attribute"
// @Router /viewers [post]
func (serverHandler *ServerHandler) CreateViewer(c echo.Context) error {
	var req createViewerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
	}
	opts, err := serverHandler.viewerOptions(req)
	if err != nil {
		return errorJSON(c, statusFor(err), err)
	}

	entry, err := serverHandler.Registry.Create(opts)
	if err != nil {
		Logger.Error("Failed to create viewer", "error", err)
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	Logger.Info("Viewer created", "viewer", entry.ID.String(), "mode", opts.State.Mode.String(), "dpi", opts.State.DPI)

	if req.URL != "" {
		docURL, err := serverHandler.documentURL(c, req.URL)
		if err == nil {
			err = entry.Viewer.SetURL(docURL)
		}
		if err != nil {
			serverHandler.Registry.Remove(entry.ID.String())
			return errorJSON(c, statusFor(err), err)
		}
	}
	return c.JSON(http.StatusCreated, viewerResponse{ID: entry.ID.String(), Snapshot: entry.Viewer.Snapshot()})
}

// GetViewer returns what the viewer currently shows
// @Summary Get viewer state
// @Description Snapshot of the viewer: view state, status, pages on the visible surface and counters
// @Tags Viewers
// @Produce json
// @Param id path string true "Viewer ID (ULID)"
// @Success 200 {object} viewerResponse "Viewer snapshot"
// @Failure 404 {object} map[string]interface{} "Viewer not found"
// @Router /viewers/{id} [get]
func (serverHandler *ServerHandler) GetViewer(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	return c.JSON(http.StatusOK, viewerResponse{ID: entry.ID.String(), Snapshot: entry.Viewer.Snapshot()})
}

// DeleteViewer closes a viewer and releases its document
// @Summary Delete a viewer
// @Tags Viewers
// @Param id path string true "Viewer ID (ULID)"
// @Success 204 "Viewer closed"
// @Failure 404 {object} map[string]interface{} "Viewer not found"
// @Router /viewers/{id} [delete]
func (serverHandler *ServerHandler) DeleteViewer(c echo.Context) error {
	if err := serverHandler.Registry.Remove(c.Param("id")); err != nil {
		return errorJSON(c, statusFor(err), err)
	}
	Logger.Info("Viewer closed", "viewer", c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// SetViewerURL loads a new document; repeated urls inside the debounce window collapse into the last one
// @Summary Load a document
// @Tags Viewers
// @Accept json
// @Produce json
// @Param id path string true "Viewer ID (ULID)"
// @Param request body urlRequest true "Document url"
// @Success 202 {object} map[string]interface{} "Load scheduled"
// @Success 200 {object} map[string]interface{} "Url unchanged"
// @Failure 400 {object} map[string]interface{} "Empty or disallowed url"
// @Router /viewers/{id}/url [put]
func (serverHandler *ServerHandler) SetViewerURL(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	var req urlRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
	}

	docURL, err := serverHandler.documentURL(c, req.URL)
	if err == nil {
		err = entry.Viewer.SetURL(docURL)
	}
	switch {
	case errors.Is(err, viewer.ErrURLUnchanged):
		return c.JSON(http.StatusOK, map[string]interface{}{"message": "Url unchanged"})
	case err != nil:
		return errorJSON(c, statusFor(err), err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"message": "Load scheduled"})
}

// SetViewerMode switches between single page (1) and all pages (2)
// @Summary Change display mode
// @Tags Viewers
// @Accept json
// @Produce json
// @Param id path string true "Viewer ID (ULID)"
// @Param request body modeRequest true "Mode and optional page for single page mode"
// @Success 202 {object} map[string]interface{} "Render scheduled"
// @Failure 400 {object} map[string]interface{} "Invalid mode"
// @Failure 422 {object} map[string]interface{} "Page out of range"
// @Router /viewers/{id}/mode [put]
func (serverHandler *ServerHandler) SetViewerMode(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
	}
	mode, err := viewer.ParseMode(req.Mode)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	page := req.Page
	if page == 0 {
		page = -1
	}
	if err := entry.Viewer.Scheduler().ChangeMode(mode, page); err != nil {
		return errorJSON(c, statusFor(err), err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"message": "Render scheduled", "mode": mode.String()})
}

// SetViewerPage navigates to a page after the navigation quiet period
// @Summary Navigate to a page
// @Description Debounced; out of range pages are reported through the event log. With immediate=true the page is validated and rendered now.
// @Tags Viewers
// @Accept json
// @Produce json
// @Param id path string true "Viewer ID (ULID)"
// @Param immediate query bool false "Skip the navigation debounce"
// @Param request body pageRequest true "Page number (1-based)"
// @Success 202 {object} map[string]interface{} "Navigation scheduled"
// @Failure 422 {object} map[string]interface{} "Page out of range"
// @Router /viewers/{id}/page [put]
func (serverHandler *ServerHandler) SetViewerPage(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	var req pageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
	}
	if immediate, _ := strconv.ParseBool(c.QueryParam("immediate")); immediate {
		if err := entry.Viewer.Scheduler().GoToPage(req.Page); err != nil {
			return errorJSON(c, statusFor(err), err)
		}
	} else {
		entry.Viewer.SetPage(req.Page)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"message": "Navigation scheduled", "page": req.Page})
}

// SetViewerDPI changes the output resolution and re-renders
// @Summary Change output resolution
// @Tags Viewers
// @Accept json
// @Produce json
// @Param id path string true "Viewer ID (ULID)"
// @Param request body dpiRequest true "Dots per inch"
// @Success 202 {object} map[string]interface{} "Render scheduled"
// @Failure 400 {object} map[string]interface{} "Invalid dpi"
// @Router /viewers/{id}/dpi [put]
func (serverHandler *ServerHandler) SetViewerDPI(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	var req dpiRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
	}
	if err := entry.Viewer.SetDPI(req.DPI); err != nil {
		return errorJSON(c, statusFor(err), err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"message": "Render scheduled", "dpi": req.DPI})
}

// SetViewerScale changes the display scale (percent) and re-renders
// @Summary Change display scale
// @Tags Viewers
// @Accept json
// @Produce json
// @Param id path string true "Viewer ID (ULID)"
// @Param request body scaleRequest true "Scale in percent and optional page"
// @Success 202 {object} map[string]interface{} "Render scheduled"
// @Failure 400 {object} map[string]interface{} "Invalid scale"
// @Router /viewers/{id}/scale [put]
func (serverHandler *ServerHandler) SetViewerScale(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	var req scaleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
	}
	page := req.Page
	if page == 0 {
		page = -1
	}
	if err := entry.Viewer.Scheduler().ChangeScale(req.Scale, page); err != nil {
		return errorJSON(c, statusFor(err), err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"message": "Render scheduled", "scale": req.Scale})
}

// ResizeViewer records a host resize; bursts collapse into one render
// @Summary Notify a resize
// @Tags Viewers
// @Param id path string true "Viewer ID (ULID)"
// @Success 202 {object} map[string]interface{} "Resize recorded"
// @Router /viewers/{id}/resize [post]
func (serverHandler *ServerHandler) ResizeViewer(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	entry.Viewer.Resize()
	return c.JSON(http.StatusAccepted, map[string]interface{}{"message": "Resize recorded"})
}

// RerenderViewer forces a fresh render of the current mode
// @Summary Force a re-render
// @Tags Viewers
// @Param id path string true "Viewer ID (ULID)"
// @Param page query int false "Page to render in single page mode"
// @Success 202 {object} map[string]interface{} "Render scheduled"
// @Failure 422 {object} map[string]interface{} "Page out of range"
// @Router /viewers/{id}/rerender [post]
func (serverHandler *ServerHandler) RerenderViewer(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	page := 0
	if pageStr := c.QueryParam("page"); pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid page"})
		}
	}
	if err := entry.Viewer.Scheduler().Rerender(page); err != nil {
		return errorJSON(c, statusFor(err), err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"message": "Render scheduled"})
}

// GetViewerPage returns the committed bitmap of a page on the visible surface as PNG
// @Summary Get a rendered page
// @Tags Viewers
// @Produce png
// @Param id path string true "Viewer ID (ULID)"
// @Param page path int true "Page number (1-based)"
// @Success 200 {file} binary "PNG image"
// @Failure 404 {object} map[string]interface{} "Page not rendered"
// @Router /viewers/{id}/pages/{page} [get]
func (serverHandler *ServerHandler) GetViewerPage(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid page"})
	}
	img, ok := entry.Viewer.PageImage(page)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "Page not rendered", "page": page})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		Logger.Error("Failed to encode page", "viewer", entry.ID.String(), "page", page, "error", err)
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// GetViewerPrintCSS returns the stylesheet of the visible surface
// @Summary Get print stylesheet
// @Tags Viewers
// @Produce plain
// @Param id path string true "Viewer ID (ULID)"
// @Success 200 {string} string "CSS"
// @Router /viewers/{id}/print.css [get]
func (serverHandler *ServerHandler) GetViewerPrintCSS(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "text/css; charset=utf-8", []byte(entry.Viewer.Snapshot().PrintCSS))
}

// DownloadDocument returns the original fetched bytes as an attachment
// @Summary Download the source document
// @Tags Viewers
// @Produce application/pdf
// @Param id path string true "Viewer ID (ULID)"
// @Param fileName query string false "Attachment file name"
// @Success 200 {file} binary "PDF"
// @Failure 404 {object} map[string]interface{} "No document loaded"
// @Router /viewers/{id}/download [get]
func (serverHandler *ServerHandler) DownloadDocument(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	data, ok := entry.Viewer.Download()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "No document loaded"})
	}
	fileName := downloadName(c.QueryParam("fileName"), entry.Viewer.Session().URL())
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	return c.Blob(http.StatusOK, "application/pdf", data)
}

// downloadName picks the attachment name: the requested one, else the last url segment
func downloadName(requested, sourceURL string) string {
	if name := path.Base(strings.TrimSpace(requested)); requested != "" && name != "." && name != "/" {
		return name
	}
	if u, err := url.Parse(sourceURL); err == nil {
		if name := path.Base(u.Path); name != "." && name != "/" && name != "" {
			return name
		}
	}
	return "document.pdf"
}

// GetDocumentInfo reports page count and page sizes of the loaded document
// @Summary Get document info
// @Tags Viewers
// @Produce json
// @Param id path string true "Viewer ID (ULID)"
// @Success 200 {object} pdfrenderer.Info "Page count and sizes in points"
// @Failure 404 {object} map[string]interface{} "No document loaded"
// @Failure 422 {object} map[string]interface{} "Document structure unreadable"
// @Router /viewers/{id}/info [get]
func (serverHandler *ServerHandler) GetDocumentInfo(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	data, ok := entry.Viewer.Download()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "No document loaded"})
	}
	info, err := pdfrenderer.Inspect(data)
	if err != nil {
		Logger.Warn("Unable to inspect document", "viewer", entry.ID.String(), "error", err)
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error(), "pageCount": entry.Viewer.Session().PageCount()})
	}
	return c.JSON(http.StatusOK, info)
}

// GetViewerEvents returns error and success notifications newer than after
// @Summary Poll viewer events
// @Tags Viewers
// @Produce json
// @Param id path string true "Viewer ID (ULID)"
// @Param after query int false "Return events with seq greater than this"
// @Success 200 {array} Event "Events"
// @Router /viewers/{id}/events [get]
func (serverHandler *ServerHandler) GetViewerEvents(c echo.Context) error {
	entry, err := serverHandler.entry(c)
	if entry == nil {
		return err
	}
	var after int64
	if afterStr := c.QueryParam("after"); afterStr != "" {
		if after, err = strconv.ParseInt(afterStr, 10, 64); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid after"})
		}
	}
	return c.JSON(http.StatusOK, entry.Events(after))
}
