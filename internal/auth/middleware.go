package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// QueryParam carries the token on websocket upgrades, where browsers cannot
// set an Authorization header.
const QueryParam = "access_token"

// Middleware rejects requests without a valid bearer token.
type Middleware struct {
	service *Service
	enabled bool
}

// NewMiddleware returns a Middleware for s. A nil s disables the check.
func NewMiddleware(s *Service) *Middleware {
	return &Middleware{service: s, enabled: s != nil}
}

// GinAuth returns a Gin middleware function for authentication
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}
		if err := m.service.Verify(bearerToken(c.Request)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "authentication required",
			})
			return
		}
		c.Next()
	}
}

// bearerToken extracts the token from the Authorization header, or from the
// query string of a websocket upgrade.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get(QueryParam)
	}
	return ""
}
