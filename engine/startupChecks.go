package engine

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := documentDirectoryChecks(serverHandler.ServerConfig); err != nil {
		return err
	}
	return backendChecks(serverHandler.Backend)
}

// backendChecks decodes and renders a blank page so a broken renderer shows up at startup, not on first view
func backendChecks(backend pdfrenderer.Backend) error {
	if backend == nil {
		Logger.Error("No render backend configured")
		return fmt.Errorf("no render backend configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	doc, err := backend.Decode(ctx, pdfrenderer.BlankPDF([]*pdfrenderer.Viewport{nil}))
	if err != nil {
		Logger.Error("Render backend failed to decode test document", "error", err)
		return err
	}
	defer doc.Close()

	page, err := doc.Page(ctx, 1)
	if err != nil {
		Logger.Error("Render backend failed to open test page", "error", err)
		return err
	}
	vp := page.Viewport(1, 0)
	target := image.NewRGBA(image.Rect(0, 0, int(vp.Width), int(vp.Height)))
	err = page.Render(ctx, pdfrenderer.RenderRequest{
		PageNumber: 1,
		Transform:  pdfrenderer.Transform{1, 0, 0, 1, 0, 0},
		Target:     target,
		Intent:     pdfrenderer.IntentDisplay,
	})
	if err != nil {
		Logger.Error("Render backend failed to render test page", "error", err)
		return err
	}
	Logger.Info("Render backend checked", "pages", doc.PageCount(), "width", vp.Width, "height", vp.Height)
	return nil
}

// documentDirectoryChecks ensures the document storage directory exists
func documentDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.DocumentPath == "" {
		Logger.Warn("Document path not configured")
		return nil
	}

	// Check if directory exists
	docInfo, err := os.Stat(serverConfig.DocumentPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create the directory
			Logger.Info("Creating document directory", "path", serverConfig.DocumentPath)
			err = os.MkdirAll(serverConfig.DocumentPath, 0755)
			if err != nil {
				Logger.Error("Failed to create document directory", "path", serverConfig.DocumentPath, "error", err)
				return err
			}
			Logger.Info("Document directory created successfully", "path", serverConfig.DocumentPath)
			return nil
		}
		Logger.Error("Error checking document directory", "path", serverConfig.DocumentPath, "error", err)
		return err
	}

	// Check if it's actually a directory
	if !docInfo.IsDir() {
		Logger.Error("Document path exists but is not a directory", "path", serverConfig.DocumentPath)
		return fmt.Errorf("document path is not a directory: %s", serverConfig.DocumentPath)
	}

	Logger.Info("Document directory exists", "path", serverConfig.DocumentPath)
	return nil
}
