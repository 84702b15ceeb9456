package server

import (
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// localOriginHosts are the hosts a browser page may be served from to use
// the API: the desktop webview and local development servers.
var localOriginHosts = map[string]bool{
	"localhost":       true,
	"127.0.0.1":       true,
	"::1":             true,
	"tauri.localhost": true,
}

// wsOriginPatterns mirrors localOriginHosts for the websocket handshake.
var wsOriginPatterns = []string{
	"localhost",
	"localhost:*",
	"127.0.0.1",
	"127.0.0.1:*",
	"[::1]",
	"[::1]:*",
	"tauri.localhost",
}

// isLocalOrigin reports whether an Origin header value names a local page.
// Requests without Origin come from non-browser clients and pass.
func isLocalOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "tauri":
	default:
		return false
	}
	return localOriginHosts[strings.ToLower(u.Hostname())]
}

// requireLocalOrigin rejects cross-site browser requests.
func requireLocalOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isLocalOrigin(c.GetHeader("Origin")) {
			abort(c, http.StatusForbidden, "origin not allowed")
			return
		}
		c.Next()
	}
}

// requireJSONBody rejects request bodies that are not application/json.
// Browsers send text/plain and form bodies cross-site without a preflight.
func requireJSONBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !hasBody(c.Request) {
			c.Next()
			return
		}
		mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mt != "application/json" {
			abort(c, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		c.Next()
	}
}

func hasBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	// -1 is an unknown length, e.g. chunked
	return r.ContentLength != 0
}

func abort(c *gin.Context, code int, msg string) {
	fail(c, code, msg)
	c.Abort()
}
