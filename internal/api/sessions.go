package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samuell19/megazord-ai/internal/agent"
	"github.com/samuell19/megazord-ai/internal/models"
	"github.com/samuell19/megazord-ai/internal/session"
)

type createSessionRequest struct {
	AgentID string `json:"agentId"`
	Title   string `json:"title"`
}

type updateSessionRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Emoji       *string         `json:"emoji"`
	Metadata    json.RawMessage `json:"metadata"`
	IsActive    *bool           `json:"isActive"`
}

func sessionViews(sessions []models.Session) []sessionView {
	views := make([]sessionView, len(sessions))
	for i := range sessions {
		views[i] = newSessionView(&sessions[i])
	}
	return views
}

// listSessions lists the caller's sessions, optionally narrowed to one agent
// with ?agent_id=.
func (h *handlers) listSessions(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	user := userID(c)

	var (
		sessions []models.Session
		err      error
	)
	if agentID := c.Query("agent_id"); agentID != "" {
		if _, err := agent.GetOwned(db, agentID, user); err != nil {
			respondError(c, err)
			return
		}
		sessions, err = session.ListByAgent(db, agentID, user)
	} else {
		sessions, err = session.ListByUser(db, user)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Sessions retrieved successfully", sessionViews(sessions))
}

func (h *handlers) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.AgentID) == "" {
		respondFail(c, http.StatusBadRequest, "ValidationError", "agentId is required")
		return
	}
	db := h.db.WithContext(c.Request.Context())
	a, err := agent.GetOwned(db, req.AgentID, userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	s, err := session.Create(db, session.CreateOpts{AgentID: a.ID, UserID: a.UserID, Title: req.Title})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, "Session created successfully", newSessionView(s))
}

func (h *handlers) getSession(c *gin.Context) {
	s, err := session.GetOwned(h.db.WithContext(c.Request.Context()), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Session retrieved successfully", newSessionView(s))
}

func (h *handlers) updateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}
	opts := session.UpdateOpts{
		Title:       req.Title,
		Description: req.Description,
		Emoji:       req.Emoji,
		IsActive:    req.IsActive,
	}
	if len(req.Metadata) > 0 {
		meta := string(req.Metadata)
		opts.Metadata = &meta
	}

	s, err := session.Update(h.db.WithContext(c.Request.Context()), c.Param("id"), userID(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Session updated successfully", newSessionView(s))
}

func (h *handlers) deleteSession(c *gin.Context) {
	if err := session.Delete(h.db.WithContext(c.Request.Context()), c.Param("id"), userID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Session deleted successfully", nil)
}

// listMessages returns the session's timeline, failed messages included.
func (h *handlers) listMessages(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	s, err := session.GetOwned(db, c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	msgs, err := session.List(db, s.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]messageView, len(msgs))
	for i := range msgs {
		views[i] = newMessageView(&msgs[i])
	}
	respondData(c, http.StatusOK, "Messages retrieved successfully", views)
}
