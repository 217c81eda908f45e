package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samuell19/megazord-ai/internal/revocation"
	"gorm.io/gorm"
)

type handlers struct {
	db            *gorm.DB
	conversations Conversations
	credentials   Credentials
	models        ModelCatalog
	revoked       *revocation.Set
}

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/api", requireUser(h.revoked))

	authed.POST("/auth/logout", h.logout)

	authed.GET("/agents", h.listAgents)
	authed.POST("/agents", h.createAgent)
	authed.GET("/agents/:id", h.getAgent)
	authed.PATCH("/agents/:id", h.updateAgent)
	authed.PUT("/agents/:id", h.updateAgent)
	authed.DELETE("/agents/:id", h.deleteAgent)
	authed.POST("/agents/:id/messages", h.sendMessage)
	authed.GET("/agents/:id/sessions", h.listAgentSessions)

	authed.GET("/models", h.listModels)

	authed.GET("/sessions", h.listSessions)
	authed.POST("/sessions", h.createSession)
	authed.GET("/sessions/:id", h.getSession)
	authed.PATCH("/sessions/:id", h.updateSession)
	authed.PUT("/sessions/:id", h.updateSession)
	authed.DELETE("/sessions/:id", h.deleteSession)
	authed.GET("/sessions/:id/messages", h.listMessages)

	authed.GET("/credential", h.getCredential)
	authed.POST("/credential", h.storeCredential)
	authed.PUT("/credential", h.updateCredential)
	authed.DELETE("/credential", h.deleteCredential)

	router.NoRoute(func(c *gin.Context) {
		respondFail(c, http.StatusNotFound, "NotFound", "route not found")
	})
}
