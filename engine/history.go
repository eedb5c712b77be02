package engine

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/drummonds/pdfview/database"
	"github.com/drummonds/pdfview/viewer"
	"github.com/labstack/echo/v4"
)

// historyStatus says whether an event describes a document load, and how it went
func historyStatus(ev Event) (string, bool) {
	switch {
	case ev.URL == "":
		return "", false
	case ev.Type == "success":
		return database.StatusLoaded, true
	case ev.Type == "error":
		switch viewer.ErrorKind(ev.Kind) {
		case viewer.KindLoad, viewer.KindNetwork, viewer.KindDecode:
			return database.StatusFailed, true
		}
	}
	return "", false
}

// recordHistory stores load outcomes without holding up the viewer that reported them
func (serverHandler *ServerHandler) recordHistory(entry *ViewerEntry, ev Event) {
	status, ok := historyStatus(ev)
	if !ok {
		return
	}
	view := database.NewView(entry.ID.String(), ev.URL, status)
	view.PageCount = ev.PageCount
	if status == database.StatusFailed {
		view.ErrorKind = ev.Kind
		view.Message = ev.Message
	}
	if !ev.Time.IsZero() {
		view.ViewedAt = ev.Time.UTC()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := serverHandler.History.RecordView(ctx, view); err != nil {
			Logger.Error("Failed to record document view", "viewer", view.ViewerID, "url", view.URL, "error", err)
		}
	}()
}

// GetHistory lists recently viewed documents, or the views of one url
// @Summary Get document history
// @Description Without url: one summary per document, most recent first. With url: that document's views.
// @Tags History
// @Produce json
// @Param url query string false "Document url"
// @Param limit query int false "Maximum results (default 20)"
// @Success 200 {array} database.DocumentSummary "Recent documents"
// @Failure 503 {object} map[string]interface{} "History disabled"
// @Router /history [get]
func (serverHandler *ServerHandler) GetHistory(c echo.Context) error {
	if serverHandler.History == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"error": database.ErrDisabled.Error()})
	}
	limit := 20
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid limit"})
		}
		limit = n
	}

	ctx := c.Request().Context()
	if docURL := c.QueryParam("url"); docURL != "" {
		views, err := serverHandler.History.History(ctx, resolveURL(c, docURL), limit)
		if err != nil {
			Logger.Error("Failed to read document history", "url", docURL, "error", err)
			return errorJSON(c, http.StatusInternalServerError, err)
		}
		return c.JSON(http.StatusOK, views)
	}

	recent, err := serverHandler.History.RecentDocuments(ctx, limit)
	if err != nil {
		Logger.Error("Failed to read recent documents", "error", err)
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, recent)
}

// pruneHistory drops views older than the configured retention
func (serverHandler *ServerHandler) pruneHistory() {
	retention := serverHandler.ServerConfig.HistoryRetention
	if serverHandler.History == nil || retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := serverHandler.History.DeleteViewsBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		Logger.Error("Failed to prune document history", "error", err)
		return
	}
	if n > 0 {
		Logger.Info("Pruned document history", "views", n, "retention", retention)
	}
}
