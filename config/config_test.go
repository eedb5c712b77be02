package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckDocumentPath_ValidPath(t *testing.T) {
	tempDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	err := checkDocumentPath(tempDir, logger)
	if err != nil {
		t.Errorf("Expected no error with valid path, got: %v", err)
	}
}

func TestCheckDocumentPath_InvalidPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	invalidPath := "/nonexistent/path/to/documents"
	err := checkDocumentPath(invalidPath, logger)
	if err == nil {
		t.Error("Expected error with invalid path, got nil")
	}
	t.Logf("Correctly returned error for invalid path: %v", err)
}

func TestCheckDocumentPath_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(file, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := checkDocumentPath(file, logger); err == nil {
		t.Error("Expected error when document path is a file")
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 200 * time.Millisecond},
		{"150", 150 * time.Millisecond},
		{"2s", 2 * time.Second},
		{"30m", 30 * time.Minute},
		{"soon", 200 * time.Millisecond},
		{"-1s", 200 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DEBOUNCE", tt.value)
		if got := getEnvDuration("TEST_DEBOUNCE", 200*time.Millisecond); got != tt.want {
			t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestSetupServer_Defaults(t *testing.T) {
	t.Setenv("LOG_OUTPUT", "stdout")
	t.Setenv("DOCUMENT_PATH", t.TempDir())
	t.Setenv("SERVER_PORT", "")
	t.Setenv("DEFAULT_DPI", "")
	t.Setenv("RENDER_BACKEND", "")

	cfg, logger := SetupServer()
	if logger == nil || Logger == nil {
		t.Fatal("Expected logger to be set up")
	}
	if cfg.ListenAddrPort != "8000" {
		t.Errorf("Expected default port 8000, got %s", cfg.ListenAddrPort)
	}
	if cfg.DefaultDPI != 300 || cfg.DefaultMode != 1 {
		t.Errorf("Expected 300 DPI single page defaults, got dpi=%d mode=%d", cfg.DefaultDPI, cfg.DefaultMode)
	}
	if cfg.RenderBackend != "pdfium" {
		t.Errorf("Expected pdfium backend by default, got %s", cfg.RenderBackend)
	}
	if cfg.LoadDebounce != 200*time.Millisecond || cfg.ResizeDebounce != 100*time.Millisecond {
		t.Errorf("Unexpected debounce defaults: %+v", cfg.ViewerConfig)
	}
	if cfg.JanitorSchedule != "@every 1m" {
		t.Errorf("Unexpected janitor schedule %q", cfg.JanitorSchedule)
	}
}

func TestSetupServer_Overrides(t *testing.T) {
	t.Setenv("LOG_OUTPUT", "stdout")
	t.Setenv("DOCUMENT_PATH", t.TempDir())
	t.Setenv("DEFAULT_DPI", "150")
	t.Setenv("DEFAULT_MODE", "2")
	t.Setenv("RENDER_BACKEND", "fitz")
	t.Setenv("VIEWER_DEBUG", "true")
	t.Setenv("NAV_DEBOUNCE", "50ms")

	cfg, _ := SetupServer()
	if cfg.DefaultDPI != 150 || cfg.DefaultMode != 2 {
		t.Errorf("Expected overrides applied, got dpi=%d mode=%d", cfg.DefaultDPI, cfg.DefaultMode)
	}
	if cfg.RenderBackend != "fitz" || !cfg.Debug {
		t.Errorf("Expected fitz backend with debug, got %+v", cfg)
	}
	if cfg.NavDebounce != 50*time.Millisecond {
		t.Errorf("Expected 50ms navigation debounce, got %v", cfg.NavDebounce)
	}
}

func TestLoadDatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "")
	t.Setenv("HISTORY_RETENTION", "")
	cfg := loadDatabaseConfig()
	if cfg.DatabaseType != "sqlite" || cfg.HistoryRetention != 30*24*time.Hour || cfg.HistorySchedule != "@daily" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}

	t.Setenv("DATABASE_TYPE", "none")
	t.Setenv("HISTORY_RETENTION", "0")
	cfg = loadDatabaseConfig()
	if cfg.DatabaseType != "none" || cfg.HistoryRetention != 0 {
		t.Errorf("Expected history disabled with no retention, got %+v", cfg)
	}
}

func TestLoadFetchConfig(t *testing.T) {
	t.Setenv("FETCH_MAX_BYTES", "")
	t.Setenv("FETCH_ALLOWED_HOSTS", "")
	maxBytes, hosts := loadFetchConfig()
	if maxBytes != 100<<20 || len(hosts) != 0 {
		t.Errorf("Unexpected defaults %d %v", maxBytes, hosts)
	}

	t.Setenv("FETCH_MAX_BYTES", "2048")
	t.Setenv("FETCH_ALLOWED_HOSTS", " docs.example.com, localhost:8000 ,,")
	maxBytes, hosts = loadFetchConfig()
	if maxBytes != 2048 {
		t.Errorf("Expected 2048 bytes, got %d", maxBytes)
	}
	if len(hosts) != 2 || hosts[0] != "docs.example.com" || hosts[1] != "localhost:8000" {
		t.Errorf("Unexpected hosts %q", hosts)
	}
}
