package webapp

import (
	"encoding/json"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// GetAPIBaseURL returns the configured API base URL
// It reads from window.pdfviewConfig.apiURL if available,
// otherwise falls back to empty string (relative URLs)
func GetAPIBaseURL() string {
	// Check if config is available in browser
	if !app.IsClient {
		return "" // Server-side rendering - use relative URLs
	}

	// Try to get API URL from global config
	config := app.Window().Get("pdfviewConfig")
	if config.Truthy() {
		apiURL := config.Get("apiURL")
		if apiURL.Truthy() {
			url := apiURL.String()
			// Ensure no trailing slash
			if len(url) > 0 && url[len(url)-1] == '/' {
				return url[:len(url)-1]
			}
			return url
		}
	}

	// Fallback to relative URLs (same origin)
	return ""
}

// BuildAPIURL constructs a full API URL from a path
// Example: BuildAPIURL("/api/viewers") -> "http://backend:8000/api/viewers"
// or just "/api/viewers" if using relative URLs
func BuildAPIURL(path string) string {
	baseURL := GetAPIBaseURL()
	if baseURL == "" {
		return path // Relative URL
	}
	return baseURL + path
}

// PageView is one page element on the visible surface
type PageView struct {
	Number      int     `json:"number"`
	PixelWidth  int     `json:"pixelWidth"`
	PixelHeight int     `json:"pixelHeight"`
	WidthPt     float64 `json:"widthPt"`
	HeightPt    float64 `json:"heightPt"`
	Committed   bool    `json:"committed"`
}

// ViewerSnapshot is the viewer state returned by the API
type ViewerSnapshot struct {
	ID          string     `json:"id"`
	Version     uint64     `json:"version"`
	Loading     bool       `json:"loading"`
	LoadingText string     `json:"loadingText"`
	SurfaceID   string     `json:"surfaceId"`
	Pages       []PageView `json:"pages"`
	Mode        int        `json:"mode"`
	CurrentPage int        `json:"currentPage"`
	DPI         int        `json:"dpi"`
	Scale       float64    `json:"scale"`
	Status      string     `json:"status"`
	URL         string     `json:"url"`
	PageCount   int        `json:"pageCount"`
}

// ViewerEvent is an error or success notification from the viewer
type ViewerEvent struct {
	Seq       int64  `json:"seq"`
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	Page      int    `json:"page"`
	PageCount int    `json:"pageCount"`
	Message   string `json:"message"`
}

// AboutInfo represents the about information from the API
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

// RecentDocument is one entry of GET /api/history
type RecentDocument struct {
	URL        string    `json:"url"`
	Views      int       `json:"views"`
	Failures   int       `json:"failures"`
	PageCount  int       `json:"pageCount"`
	LastViewed time.Time `json:"lastViewed"`
}

// callAPI issues fetch(url, {method, body}) and hands the status and JSON text to done on the UI goroutine
func callAPI(ctx app.Context, method, url string, body interface{}, done func(ctx app.Context, status int, jsonStr string), failed func(ctx app.Context)) {
	ctx.Async(func() {
		init := map[string]interface{}{"method": method}
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				ctx.Dispatch(failed)
				return
			}
			init["body"] = string(payload)
			init["headers"] = map[string]interface{}{"Content-Type": "application/json"}
		}
		res := app.Window().Call("fetch", url, init)

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
			if len(args) == 0 {
				return nil
			}
			response := args[0]
			status := response.Get("status").Int()

			response.Call("text").Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
				jsonStr := ""
				if len(args) > 0 {
					jsonStr = args[0].String()
				}
				ctx.Dispatch(func(ctx app.Context) {
					done(ctx, status, jsonStr)
				})
				return nil
			}))

			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
			ctx.Dispatch(failed)
			return nil
		}))
	})
}

// apiError pulls the error message out of an error response body
func apiError(jsonStr string) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &body); err != nil || body.Error == "" {
		return "request failed"
	}
	return body.Error
}
