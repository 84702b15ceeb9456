package server

import (
	"github.com/gin-gonic/gin"
)

func (r *Router) handleOAuthStart(c *gin.Context) {
	authURL, err := r.deps.OAuth.Start(c.Param("provider"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"authUrl": authURL})
}

func (r *Router) handleOAuthStatus(c *gin.Context) {
	st, err := r.deps.OAuth.Status(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, st)
}

func (r *Router) handleOAuthToken(c *gin.Context) {
	tok, err := r.deps.OAuth.AccessToken(c.Request.Context(), c.Param("provider"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"accessToken": tok})
}

func (r *Router) handleOAuthRevoke(c *gin.Context) {
	if err := r.deps.OAuth.Revoke(c.Request.Context(), c.Param("provider")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}
