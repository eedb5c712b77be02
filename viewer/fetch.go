package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Fetcher retrieves raw document bytes
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ErrURLNotAllowed is returned for URLs a fetcher refuses to touch
var ErrURLNotAllowed = errors.New("url not allowed")

// HTTPFetcher fetches http(s) URLs, and file URLs when AllowFile is set
type HTTPFetcher struct {
	HTTPClient *http.Client
	// MaxBytes caps the document size, zero means unlimited
	MaxBytes int64
	// AllowFile permits file URLs; only local tools should set it
	AllowFile bool
	// AllowedHosts restricts http(s) hosts, empty allows any
	AllowedHosts []string
}

// NewHTTPFetcher creates an http(s) only fetcher; no timeout is imposed, a stalled server stalls the load
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{HTTPClient: &http.Client{}}
}

// CheckURL reports whether Fetch would accept rawURL, without fetching anything
func (f *HTTPFetcher) CheckURL(rawURL string) error {
	_, err := f.parse(rawURL)
	return err
}

func (f *HTTPFetcher) parse(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "file":
		if !f.AllowFile {
			return nil, fmt.Errorf("%w: file urls are disabled", ErrURLNotAllowed)
		}
		return u, nil
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrURLNotAllowed, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrURLNotAllowed)
	}
	if len(f.AllowedHosts) == 0 {
		return u, nil
	}
	for _, host := range f.AllowedHosts {
		if strings.EqualFold(host, u.Host) || strings.EqualFold(host, u.Hostname()) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: host %q", ErrURLNotAllowed, u.Host)
}

// Fetch downloads the document at rawURL
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := f.parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "file" {
		return f.readFile(u.Path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document server returned status %d", resp.StatusCode)
	}

	data, err := f.readAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document body: %w", err)
	}
	return data, nil
}

func (f *HTTPFetcher) readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer file.Close()
	return f.readAll(file)
}

// readAll reads r up to MaxBytes
func (f *HTTPFetcher) readAll(r io.Reader) ([]byte, error) {
	if f.MaxBytes > 0 {
		r = io.LimitReader(r, f.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", f.MaxBytes)
	}
	return data, nil
}
