package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/drixzor/drode/internal/store"
)

func (r *Router) handleCurrentProject(c *gin.Context) {
	ok(c, gin.H{"projectPath": r.currentProject(c.Request.Context())})
}

func (r *Router) handleRecentProjects(c *gin.Context) {
	list, err := r.deps.Store.RecentProjects(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, list)
}

func (r *Router) handleRemoveRecentProject(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		fail(c, http.StatusBadRequest, "path query param required")
		return
	}
	list, err := r.deps.Store.RemoveRecentProject(c.Request.Context(), path)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, list)
}

// projectParam reads ?project=, falling back to the configured project.
func (r *Router) projectParam(c *gin.Context) (string, bool) {
	p := c.Query("project")
	if p == "" {
		p = r.currentProject(c.Request.Context())
	}
	if p == "" {
		fail(c, http.StatusBadRequest, "project query param required")
		return "", false
	}
	return p, true
}

func (r *Router) handleListConversations(c *gin.Context) {
	project, valid := r.projectParam(c)
	if !valid {
		return
	}
	list, err := r.deps.Store.ListConversations(c.Request.Context(), project)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, list)
}

type createConversationRequest struct {
	ProjectPath string `json:"projectPath"`
	Name        string `json:"name"`
}

func (r *Router) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ProjectPath == "" {
		req.ProjectPath = r.currentProject(c.Request.Context())
	}
	if req.ProjectPath == "" {
		fail(c, http.StatusBadRequest, "projectPath required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = "New conversation"
	}
	conv, err := r.deps.Store.CreateConversation(c.Request.Context(), req.ProjectPath, req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, conv)
}

func (r *Router) handleGetConversation(c *gin.Context) {
	conv, msgs, err := r.deps.Store.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"conversation": conv, "messages": msgs})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (r *Router) handleRenameConversation(c *gin.Context) {
	var req renameRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, "name required")
		return
	}
	if err := r.deps.Store.RenameConversation(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (r *Router) handleDeleteConversation(c *gin.Context) {
	if err := r.deps.Store.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

type saveMessagesRequest struct {
	Messages []store.Message `json:"messages"`
}

func (r *Router) handleSaveMessages(c *gin.Context) {
	var req saveMessagesRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := r.deps.Store.SaveMessages(c.Request.Context(), c.Param("id"), req.Messages); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"saved": len(req.Messages)})
}

func (r *Router) handleActiveConversation(c *gin.Context) {
	project, valid := r.projectParam(c)
	if !valid {
		return
	}
	id, err := r.deps.Store.ActiveConversation(c.Request.Context(), project)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"conversationId": id})
}

type setActiveRequest struct {
	ProjectPath    string `json:"projectPath"`
	ConversationID string `json:"conversationId"`
}

func (r *Router) handleSetActiveConversation(c *gin.Context) {
	var req setActiveRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ProjectPath == "" {
		req.ProjectPath = r.currentProject(c.Request.Context())
	}
	if err := r.deps.Store.SetActiveConversation(c.Request.Context(), req.ProjectPath, req.ConversationID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (r *Router) handleSearch(c *gin.Context) {
	project, valid := r.projectParam(c)
	if !valid {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	hits, err := r.deps.Store.SearchMessages(c.Request.Context(), project, c.Query("q"), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, hits)
}

func (r *Router) handleActivityQuery(c *gin.Context) {
	project, valid := r.projectParam(c)
	if !valid {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	before, err := queryInt(c, "before")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	list, err := r.deps.Activity.Query(c.Request.Context(), store.ActivityQuery{
		ProjectPath: project,
		Category:    c.Query("category"),
		BeforeID:    int64(before),
		Limit:       limit,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, list)
}

func (r *Router) handleActivityRecord(c *gin.Context) {
	var ev store.ActivityEvent
	if !bindJSON(c, &ev) {
		return
	}
	if ev.ProjectPath == "" {
		ev.ProjectPath = r.currentProject(c.Request.Context())
	}
	if ev.ProjectPath == "" || ev.Category == "" || ev.EventType == "" {
		fail(c, http.StatusBadRequest, "projectPath, category and eventType required")
		return
	}
	saved, err := r.deps.Activity.Record(c.Request.Context(), ev)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, saved)
}

func (r *Router) handleActivityClear(c *gin.Context) {
	project, valid := r.projectParam(c)
	if !valid {
		return
	}
	n, err := r.deps.Activity.Clear(c.Request.Context(), project)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"deleted": n})
}

func queryInt(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return n, nil
}
