package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samuell19/megazord-ai/internal/agent"
	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/conversation"
	"github.com/samuell19/megazord-ai/internal/session"
)

type createAgentRequest struct {
	Name          string          `json:"name"`
	Model         string          `json:"model"`
	SystemPrompt  string          `json:"systemPrompt"`
	Configuration json.RawMessage `json:"configuration"`
}

type updateAgentRequest struct {
	Name          *string         `json:"name"`
	Model         *string         `json:"model"`
	SystemPrompt  *string         `json:"systemPrompt"`
	Configuration json.RawMessage `json:"configuration"`
}

type sendMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (h *handlers) listAgents(c *gin.Context) {
	agents, err := agent.ListByUser(h.db.WithContext(c.Request.Context()), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]agentView, len(agents))
	for i := range agents {
		views[i] = newAgentView(&agents[i])
	}
	respondData(c, http.StatusOK, "Agents retrieved successfully", views)
}

func (h *handlers) createAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Model) == "" {
		respondFail(c, http.StatusBadRequest, "ValidationError", "name and model are required")
		return
	}

	ctx := c.Request.Context()
	user := userID(c)
	if _, err := h.credentials.Get(ctx, user); err != nil {
		if apperr.IsNotFound(err) {
			err = apperr.New(apperr.KindConfiguration, "API key not configured, configure your OpenRouter API key first")
		}
		respondError(c, err)
		return
	}

	a, err := agent.Create(h.db.WithContext(ctx), agent.CreateOpts{
		UserID:        user,
		Name:          req.Name,
		Model:         req.Model,
		SystemPrompt:  req.SystemPrompt,
		Configuration: string(req.Configuration),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, "Agent created successfully", newAgentView(a))
}

func (h *handlers) getAgent(c *gin.Context) {
	a, err := agent.GetOwned(h.db.WithContext(c.Request.Context()), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Agent retrieved successfully", newAgentView(a))
}

func (h *handlers) updateAgent(c *gin.Context) {
	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}
	opts := agent.UpdateOpts{Name: req.Name, Model: req.Model, SystemPrompt: req.SystemPrompt}
	if len(req.Configuration) > 0 {
		conf := string(req.Configuration)
		opts.Configuration = &conf
	}
	if opts.Name == nil && opts.Model == nil && opts.SystemPrompt == nil && opts.Configuration == nil {
		respondFail(c, http.StatusBadRequest, "ValidationError",
			"at least one field (name, model, systemPrompt or configuration) must be provided")
		return
	}

	a, err := agent.Update(h.db.WithContext(c.Request.Context()), c.Param("id"), userID(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Agent updated successfully", newAgentView(a))
}

func (h *handlers) deleteAgent(c *gin.Context) {
	if err := agent.Delete(h.db.WithContext(c.Request.Context()), c.Param("id"), userID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Agent deleted successfully", nil)
}

func (h *handlers) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		respondFail(c, http.StatusBadRequest, "ValidationError", "message must be a non-empty string")
		return
	}

	res, err := h.conversations.HandleMessage(c.Request.Context(), conversation.Request{
		AgentID:   c.Param("id"),
		UserID:    userID(c),
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Message processed successfully", res)
}

func (h *handlers) listAgentSessions(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	a, err := agent.GetOwned(db, c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	sessions, err := session.ListByAgent(db, a.ID, a.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Sessions retrieved successfully", sessionViews(sessions))
}

func (h *handlers) listModels(c *gin.Context) {
	ctx := c.Request.Context()
	key, err := h.credentials.Resolve(ctx, userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	models, err := h.models.ListModels(ctx, key)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "Models retrieved successfully", models)
}
