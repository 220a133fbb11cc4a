package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"octopus/internal/app/session"
	"octopus/internal/infra/security"
)

const principalContextKey = "octopus.principal"

// TokenVerifier turns a bearer token into the signed-in principal.
type TokenVerifier interface {
	Verify(token string) (session.Principal, error)
}

// AuthMiddleware rejects requests without a valid bearer token and exposes
// the principal to handlers and to the request context.
type AuthMiddleware struct {
	Verifier TokenVerifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	if m.Verifier == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
		return
	}
	token, err := security.BearerToken(c.GetHeader("Authorization"))
	if err != nil && websocket.IsWebSocketUpgrade(c.Request) {
		// Browsers cannot set headers on a websocket handshake.
		token, err = c.Query("access_token"), nil
		if token == "" {
			err = security.ErrMissingToken
		}
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	p, err := m.Verifier.Verify(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	setPrincipal(c, p)
	c.Next()
}

func setPrincipal(c *gin.Context, p session.Principal) {
	c.Set(principalContextKey, p)
	c.Set("user_id", p.UserID)
	c.Request = c.Request.WithContext(session.WithPrincipal(c.Request.Context(), p))
}

func currentPrincipal(c *gin.Context) (session.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return session.Principal{}, false
	}
	p, ok := val.(session.Principal)
	return p, ok
}

func requirePrincipal(c *gin.Context) (session.Principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return session.Principal{}, false
	}
	return p, true
}
