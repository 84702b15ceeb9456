package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/drixzor/drode/internal/assistant"
	"github.com/drixzor/drode/internal/oauth"
	"github.com/drixzor/drode/internal/ports"
	"github.com/drixzor/drode/internal/process"
	"github.com/drixzor/drode/internal/store"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// isSafeAbsPath ensures the provided path is absolute and does not contain traversal.
// It must be already cleaned (no ".." segments).
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	sep := string(filepath.Separator)
	trimmed := strings.TrimRight(p, sep)
	if trimmed == "" {
		trimmed = p // keep root like "/" on Unix
	}
	// Reject if cleaning changes more than just trailing separators
	if !(clean == p || clean == trimmed) {
		return false
	}
	return true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

// Envelope is the response body of every API endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Content any    `json:"content,omitempty"`
}

func ok(c *gin.Context, content any) {
	writeJSON(c, http.StatusOK, Envelope{Success: true, Content: content})
}

func fail(c *gin.Context, code int, msg string) {
	writeJSON(c, code, Envelope{Success: false, Error: msg})
}

func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), err.Error())
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var spawnErr *process.SpawnError
	var cfgErr *oauth.ConfigError
	switch {
	case errors.Is(err, process.ErrProcessNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &spawnErr), errors.As(err, &cfgErr),
		errors.Is(err, process.ErrSessionRequired), errors.Is(err, process.ErrEmptyCommand),
		errors.Is(err, oauth.ErrUnknownProvider), errors.Is(err, oauth.ErrNotConnected),
		errors.Is(err, assistant.ErrNoProject), errors.Is(err, store.ErrInvalid),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrInspect):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
