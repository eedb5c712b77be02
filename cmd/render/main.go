package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	config "github.com/drummonds/pdfview/config"
	"github.com/drummonds/pdfview/engine/pdfrenderer"
	"github.com/drummonds/pdfview/viewer"
)

// renderJob is one command line invocation
type renderJob struct {
	Source  string
	Mode    viewer.Mode
	Page    int
	DPI     int
	OutDir  string
	Timeout time.Duration
	// PrintCSS also writes the print stylesheet next to the pages
	PrintCSS bool
}

// sourceURL turns a local path into a file url; urls pass through
func sourceURL(source string) (string, error) {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "file") {
		return source, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func pageFileName(n int) string {
	return fmt.Sprintf("page-%03d.png", n)
}

// run loads the document into a viewer, waits for the visible surface and writes every committed page
func run(ctx context.Context, job renderJob, cfg config.ServerConfig, backend pdfrenderer.Backend, logger *slog.Logger) ([]string, error) {
	src, err := sourceURL(job.Source)
	if err != nil {
		return nil, err
	}

	loaded := make(chan viewer.Success, 1)
	failed := make(chan error, 1)
	v, err := viewer.New(viewer.Options{
		Backend:           backend,
		Fetcher:           &viewer.HTTPFetcher{AllowFile: true},
		Logger:            logger,
		Debug:             cfg.Debug,
		LoadingText:       cfg.LoadingText,
		State:             viewer.ViewState{Mode: job.Mode, CurrentPage: job.Page, DPI: job.DPI, Scale: 1},
		LoadDebounce:      time.Millisecond,
		NavDebounce:       time.Millisecond,
		ResizeDebounce:    time.Millisecond,
		RenderConcurrency: cfg.RenderConcurrency,
		OnSuccess: func(s viewer.Success) {
			select {
			case loaded <- s:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}
	defer v.Close()

	if err := v.SetURL(src); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	var success viewer.Success
	select {
	case success = <-loaded:
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("loading %s: %w", src, ctx.Err())
	}
	logger.Info("Document loaded", "url", success.URL, "pages", success.PageCount)
	// the viewer falls back to page 1 for an out of range page; a command line caller asked for that page
	if job.Mode == viewer.SinglePage && job.Page > success.PageCount {
		return nil, &viewer.Error{Kind: viewer.KindPageRange, URL: src, Page: job.Page,
			Err: fmt.Errorf("document has %d pages", success.PageCount)}
	}

	snap, err := waitRendered(ctx, v, failed)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(job.OutDir, 0755); err != nil {
		return nil, err
	}
	var written []string
	for _, p := range snap.Pages {
		img, ok := v.PageImage(p.Number)
		if !ok {
			continue
		}
		path := filepath.Join(job.OutDir, pageFileName(p.Number))
		if err := imaging.Save(img, path); err != nil {
			return written, fmt.Errorf("failed to write page %d: %w", p.Number, err)
		}
		logger.Info("Page written", "page", p.Number, "width", p.PixelWidth, "height", p.PixelHeight, "path", path)
		written = append(written, path)
	}
	if job.PrintCSS {
		path := filepath.Join(job.OutDir, "print.css")
		if err := os.WriteFile(path, []byte(snap.PrintCSS), 0644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// waitRendered polls until the surface is idle with every page committed; a render error ends the wait
func waitRendered(ctx context.Context, v *viewer.Viewer, failed <-chan error) (viewer.Snapshot, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := v.Snapshot()
		if snap.Status == viewer.StatusIdle.String() && len(snap.Pages) > 0 && allCommitted(snap.Pages) {
			return snap, nil
		}
		select {
		case err := <-failed:
			return snap, err
		case <-ctx.Done():
			return snap, fmt.Errorf("rendering: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func allCommitted(pages []viewer.PageView) bool {
	for _, p := range pages {
		if !p.Committed {
			return false
		}
	}
	return true
}

func main() {
	cfg, logger := config.SetupCLI()

	mode := flag.String("mode", fmt.Sprint(cfg.DefaultMode), "Display mode: 1 (single page) or 2 (all pages)")
	page := flag.Int("page", 1, "Page to render in single page mode")
	dpi := flag.Int("dpi", cfg.DefaultDPI, "Output resolution")
	out := flag.String("out", ".", "Directory for the rendered pages")
	timeout := flag.Duration("timeout", 2*time.Minute, "Give up after this long")
	printCSS := flag.Bool("css", false, "Also write the print stylesheet")
	backendName := flag.String("backend", cfg.RenderBackend, "Render backend: pdfium or fitz")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file or url>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	m, err := viewer.ParseMode(*mode)
	if err != nil {
		logger.Error("Invalid mode", "mode", *mode, "error", err)
		os.Exit(2)
	}

	backend, err := pdfrenderer.NewBackend(*backendName, pdfrenderer.PoolConfig{
		MinIdle:  cfg.PDFiumMinIdle,
		MaxIdle:  cfg.PDFiumMaxIdle,
		MaxTotal: cfg.PDFiumMaxTotal,
		Acquire:  *timeout,
	})
	if err != nil {
		logger.Error("Failed to start render backend", "backend", *backendName, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	job := renderJob{
		Source:   flag.Arg(0),
		Mode:     m,
		Page:     *page,
		DPI:      *dpi,
		OutDir:   *out,
		Timeout:  *timeout,
		PrintCSS: *printCSS,
	}
	written, err := run(context.Background(), job, cfg, backend, logger)
	if err != nil {
		var verr *viewer.Error
		if errors.As(err, &verr) {
			logger.Error("Render failed", "kind", string(verr.Kind), "page", verr.Page, "error", err)
		} else {
			logger.Error("Render failed", "error", err)
		}
		backend.Close()
		os.Exit(1)
	}
	fmt.Println(strings.Join(written, "\n"))
}
