package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

func bindKey(c *gin.Context) (string, bool) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.APIKey) == "" {
		respondFail(c, http.StatusBadRequest, "ValidationError", "apiKey is required")
		return "", false
	}
	return req.APIKey, true
}

func (h *handlers) getCredential(c *gin.Context) {
	info, err := h.credentials.Get(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "API key retrieved successfully", info)
}

func (h *handlers) storeCredential(c *gin.Context) {
	key, ok := bindKey(c)
	if !ok {
		return
	}
	info, err := h.credentials.Store(c.Request.Context(), userID(c), key)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, "API key stored successfully", info)
}

func (h *handlers) updateCredential(c *gin.Context) {
	key, ok := bindKey(c)
	if !ok {
		return
	}
	info, err := h.credentials.Update(c.Request.Context(), userID(c), key)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "API key updated successfully", info)
}

func (h *handlers) deleteCredential(c *gin.Context) {
	if err := h.credentials.Delete(c.Request.Context(), userID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, "API key deleted successfully", nil)
}
