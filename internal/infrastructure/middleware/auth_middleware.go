package middleware

import (
	"net/http"
	"strings"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const sessionContextKey = "session"

// SessionMiddleware requires a valid Bearer token and stores the resolved
// session in the request context.
func SessionMiddleware(tokens ports.TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		session, err := tokens.GetSessionInfo(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(sessionContextKey, session)
		c.Next()
	}
}

// OptionalSessionMiddleware resolves the session when a Bearer token is
// present but lets anonymous requests through.
func OptionalSessionMiddleware(tokens ports.TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if session, err := tokens.GetSessionInfo(c.Request.Context(), token); err == nil {
				c.Set(sessionContextKey, session)
			}
		}
		c.Next()
	}
}

// SessionFromContext returns the session resolved by the auth middleware,
// or nil for anonymous requests.
func SessionFromContext(c *gin.Context) *domain.SessionInfo {
	val, exists := c.Get(sessionContextKey)
	if !exists {
		return nil
	}
	session, ok := val.(*domain.SessionInfo)
	if !ok {
		return nil
	}
	return session
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
