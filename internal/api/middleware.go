package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samuell19/megazord-ai/internal/logging"
	"github.com/samuell19/megazord-ai/internal/revocation"
)

const (
	// UserHeader carries the caller's identity, set by the upstream auth
	// gateway.
	UserHeader      = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	userKey  = "megazord.user"
	tokenKey = "megazord.token"
)

// requestContext assigns a request ID and attaches a request-scoped logger to
// the request context, then logs the request once it completes.
func requestContext(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		log := base.With("request_id", id)
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), log))

		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// cors allows a browser front-end on another origin to call the API.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader+", "+RequestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireUser rejects requests without a caller identity or carrying a
// revoked bearer token.
func requireUser(revoked *revocation.Set) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(UserHeader))
		if user == "" {
			respondFail(c, http.StatusUnauthorized, "AuthenticationError", "authentication required")
			return
		}
		if token := bearerToken(c); token != "" {
			if revoked != nil && revoked.Revoked(token) {
				respondFail(c, http.StatusUnauthorized, "AuthenticationError", "token has been revoked")
				return
			}
			c.Set(tokenKey, token)
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func userID(c *gin.Context) string {
	return c.GetString(userKey)
}

func requestLogger(c *gin.Context) *slog.Logger {
	return logging.FromContext(c.Request.Context(), nil)
}
