package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/drixzor/drode/internal/activity"
)

func (r *Router) handlePortsList(c *gin.Context) {
	list, err := r.deps.Ports.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, list)
}

func (r *Router) handlePortsKill(c *gin.Context) {
	port, err := strconv.ParseUint(c.Param("port"), 10, 16)
	if err != nil || port == 0 {
		fail(c, http.StatusBadRequest, "port must be a number between 1 and 65535")
		return
	}
	pids, err := r.deps.Ports.Kill(c.Request.Context(), uint32(port))
	if err != nil {
		fail(c, statusFor(err), "Failed to kill process on port")
		return
	}
	if len(pids) > 0 {
		r.logActivity(r.currentProject(c.Request.Context()), activity.CategoryPorts, "kill",
			fmt.Sprintf("Killed process on port %d", port), map[string]any{"port": port, "pids": pids})
	}
	ok(c, gin.H{"port": port, "pids": pids})
}
