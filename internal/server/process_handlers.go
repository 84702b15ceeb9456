package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/drixzor/drode/internal/activity"
	"github.com/drixzor/drode/internal/process"
)

type runRequest struct {
	SessionID string            `json:"sessionId"`
	Command   string            `json:"command"`
	Cwd       string            `json:"cwd"`
	Env       map[string]string `json:"env"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (r *Router) handleTerminalRun(c *gin.Context) {
	var req runRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		fail(c, http.StatusBadRequest, "sessionId required")
		return
	}
	if !isSafeAbsPath(req.Cwd) {
		fail(c, http.StatusBadRequest, "invalid cwd: must be absolute path without traversal")
		return
	}
	pid, err := r.deps.Terminal.Start(process.Spec{
		SessionID: req.SessionID,
		Command:   req.Command,
		WorkDir:   req.Cwd,
		Env:       req.Env,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	r.logActivity(req.Cwd, activity.CategoryTerminal, "run", req.Command, map[string]any{"sessionId": req.SessionID, "pid": pid})
	ok(c, gin.H{"pid": pid})
}

func (r *Router) handleTerminalKill(c *gin.Context) {
	var req sessionRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := r.deps.Terminal.Kill(req.SessionID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

type configureRequest struct {
	ProjectPath string `json:"projectPath"`
}

type sendRequest struct {
	Message  string `json:"message"`
	ResumeID string `json:"resumeId"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (r *Router) handleAssistantConfigure(c *gin.Context) {
	var req configureRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ProjectPath == "" || !isSafeAbsPath(req.ProjectPath) {
		fail(c, http.StatusBadRequest, "invalid projectPath: must be absolute path without traversal")
		return
	}
	if err := r.deps.Assistant.Configure(c.Request.Context(), req.ProjectPath); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, gin.H{"projectPath": req.ProjectPath})
}

func (r *Router) handleAssistantSend(c *gin.Context) {
	var req sendRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, "message required")
		return
	}
	id, err := r.deps.Assistant.Send(c.Request.Context(), req.Message, req.ResumeID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"invocationId": id})
}

func (r *Router) handleAssistantStop(c *gin.Context) {
	ok(c, gin.H{"stopped": r.deps.Assistant.Stop()})
}

func (r *Router) handleAssistantRunning(c *gin.Context) {
	ctx := c.Request.Context()
	project, _ := r.deps.Assistant.Project(ctx)
	ok(c, gin.H{
		"running":     r.deps.Assistant.Running(ctx),
		"projectPath": project,
		"invocations": r.deps.Assistant.ActiveInvocations(),
	})
}

func (r *Router) handleGetDangerousMode(c *gin.Context) {
	on, err := r.deps.Assistant.DangerousMode(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"enabled": on})
}

func (r *Router) handleSetDangerousMode(c *gin.Context) {
	var req toggleRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := r.deps.Assistant.SetDangerousMode(c.Request.Context(), req.Enabled); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"enabled": req.Enabled})
}
