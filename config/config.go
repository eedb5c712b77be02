package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP   string
	ListenAddrPort string
	DocumentPath   string //absolute path of the directory served under /documents/
	RenderBackend  string //pdfium or fitz
	PDFiumMinIdle  int
	PDFiumMaxIdle  int
	PDFiumMaxTotal int
	// RenderConcurrency bounds the pages rasterized at once in all-pages mode
	RenderConcurrency int
	IdleTimeout       time.Duration
	JanitorSchedule   string
	// FetchMaxBytes caps downloaded documents; FetchAllowedHosts limits where viewers may fetch from (empty allows any)
	FetchMaxBytes     int64
	FetchAllowedHosts []string
	ViewerConfig
	DatabaseConfig
	FrontEndConfig
}

// DatabaseConfig selects where the document view history is kept
type DatabaseConfig struct {
	DatabaseType     string // none, sqlite, postgres, cockroachdb or ephemeral
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseDbname   string // file path for sqlite
	DatabaseSslmode  string
	DatabaseDebug    bool
	// HistoryRetention is how long views are kept; zero keeps them forever
	HistoryRetention time.Duration
	HistorySchedule  string
}

// ViewerConfig holds the defaults every new viewer starts with
type ViewerConfig struct {
	DefaultDPI     int
	DefaultMode    int
	LoadingText    string
	Debug          bool
	LoadDebounce   time.Duration
	NavDebounce    time.Duration
	ResizeDebounce time.Duration
}

// FrontEndConfig stores all of the frontend settings
type FrontEndConfig struct {
	ServerAPIURL string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvDuration reads a Go duration ("200ms", "30m"); bare integers are milliseconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

// loadViewerConfig reads the viewer defaults shared by server and CLI
func loadViewerConfig() ViewerConfig {
	return ViewerConfig{
		DefaultDPI:     getEnvInt("DEFAULT_DPI", 300),
		DefaultMode:    getEnvInt("DEFAULT_MODE", 1),
		LoadingText:    getEnv("LOADING_TEXT", "Loading..."),
		Debug:          getEnvBool("VIEWER_DEBUG", false),
		LoadDebounce:   getEnvDuration("LOAD_DEBOUNCE", 200*time.Millisecond),
		NavDebounce:    getEnvDuration("NAV_DEBOUNCE", 200*time.Millisecond),
		ResizeDebounce: getEnvDuration("RESIZE_DEBOUNCE", 100*time.Millisecond),
	}
}

// loadFetchConfig reads the limits on what server viewers may download
func loadFetchConfig() (int64, []string) {
	maxBytes := int64(getEnvInt("FETCH_MAX_BYTES", 100<<20))
	var hosts []string
	for _, host := range strings.Split(getEnv("FETCH_ALLOWED_HOSTS", ""), ",") {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}
	return maxBytes, hosts
}

// loadDatabaseConfig reads the history database settings
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabaseHost:     getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:     getEnv("DATABASE_PORT", "5432"),
		DatabaseUser:     getEnv("DATABASE_USER", "pdfview"),
		DatabasePassword: getEnv("DATABASE_PASSWORD", ""),
		DatabaseDbname:   getEnv("DATABASE_NAME", "databases/pdfview.sqlite"),
		DatabaseSslmode:  getEnv("DATABASE_SSLMODE", "disable"),
		DatabaseDebug:    getEnvBool("DATABASE_DEBUG", false),
		HistoryRetention: getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour),
		HistorySchedule:  getEnv("HISTORY_SCHEDULE", "@daily"),
	}
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Rendering configuration
	serverConfigLive.RenderBackend = getEnv("RENDER_BACKEND", "pdfium")
	serverConfigLive.PDFiumMinIdle = getEnvInt("PDFIUM_MIN_IDLE", 1)
	serverConfigLive.PDFiumMaxIdle = getEnvInt("PDFIUM_MAX_IDLE", 1)
	serverConfigLive.PDFiumMaxTotal = getEnvInt("PDFIUM_MAX_TOTAL", 1)
	serverConfigLive.RenderConcurrency = getEnvInt("RENDER_CONCURRENCY", 4)
	logger.Info("Render configuration loaded", "backend", serverConfigLive.RenderBackend, "concurrency", serverConfigLive.RenderConcurrency)

	serverConfigLive.ViewerConfig = loadViewerConfig()
	serverConfigLive.FetchMaxBytes, serverConfigLive.FetchAllowedHosts = loadFetchConfig()

	// Viewer lifetime
	serverConfigLive.IdleTimeout = getEnvDuration("VIEWER_IDLE_TIMEOUT", 30*time.Minute)
	serverConfigLive.JanitorSchedule = getEnv("JANITOR_SCHEDULE", "@every 1m")

	serverConfigLive.DatabaseConfig = loadDatabaseConfig()
	logger.Info("History database configured", "type", serverConfigLive.DatabaseType, "retention", serverConfigLive.HistoryRetention)

	fmt.Println("\n========================================")
	fmt.Println("   pdfview - PDF Render Server")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "pdfview.log"))
	fmt.Println("Initializing...")

	// Document storage configuration
	documentPathRelative := filepath.ToSlash(getEnv("DOCUMENT_PATH", "documents"))
	documentPathAbs, err := filepath.Abs(documentPathRelative)
	if err != nil {
		logger.Error("Error creating document path", "path", documentPathRelative, "error", err)
	}
	serverConfigLive.DocumentPath = documentPathAbs
	if err := checkDocumentPath(documentPathAbs, logger); err != nil {
		logger.Warn("Document directory unavailable, only remote URLs can be viewed", "path", documentPathAbs)
	}

	// Frontend configuration
	serverConfigLive.FrontEndConfig = FrontEndConfig{ServerAPIURL: getEnv("SERVER_API_URL", "")}
	if serverConfigLive.ServerAPIURL == "" {
		logger.Info("Using relative URLs for API calls (frontend will use same host it was served from)")
	}

	return serverConfigLive, logger
}

// SetupFrontend loads configuration for frontend-only server
func SetupFrontend() (FrontEndConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
	_ = godotenv.Load("frontend.env")

	logger := setupLogging()
	Logger = logger

	frontendConfig := FrontEndConfig{}
	frontendConfig.ServerAPIURL = getEnv("SERVER_API_URL", "http://localhost:8000")

	logger.Info("Frontend configuration loaded", "apiURL", frontendConfig.ServerAPIURL)

	return frontendConfig, logger
}

// SetupCLI loads the viewer defaults for command line rendering, logging to stderr
func SetupCLI() (ServerConfig, *slog.Logger) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "info"))}))
	Logger = logger

	cfg := ServerConfig{
		RenderBackend:     getEnv("RENDER_BACKEND", "pdfium"),
		PDFiumMinIdle:     getEnvInt("PDFIUM_MIN_IDLE", 1),
		PDFiumMaxIdle:     getEnvInt("PDFIUM_MAX_IDLE", 1),
		PDFiumMaxTotal:    getEnvInt("PDFIUM_MAX_TOTAL", 1),
		RenderConcurrency: getEnvInt("RENDER_CONCURRENCY", 4),
		ViewerConfig:      loadViewerConfig(),
	}
	return cfg, logger
}

func parseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	handlerOptions := &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "debug"))}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdfview.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// GetPreferredOutboundIP gets preferred outbound IP of this machine
func GetPreferredOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP, nil
}

// checkDocumentPath verifies that the served document directory exists
func checkDocumentPath(documentPath string, logger *slog.Logger) error {
	info, err := os.Stat(documentPath)
	if err != nil {
		logger.Error("Cannot find document directory at location specified", "path", documentPath)
		return err
	}
	if !info.IsDir() {
		logger.Error("Document path is not a directory", "path", documentPath)
		return fmt.Errorf("%s is not a directory", documentPath)
	}
	logger.Debug("Document directory found", "path", documentPath)
	return nil
}
