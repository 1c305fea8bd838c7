package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tamamhuda/envlink-api-sub000/internal/service"
)

const identityContextKey = "identity"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	ID    uuid.UUID
	Email string
}

// SetIdentity attaches an authenticated caller to the request context.
// Handlers that authenticate mid-request (login) use it so the deferred
// charge path sees the caller.
func SetIdentity(c *gin.Context, ident *Identity) {
	c.Set(identityContextKey, ident)
}

// CurrentIdentity returns the authenticated caller, or nil for anonymous
// requests.
func CurrentIdentity(c *gin.Context) *Identity {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return nil
	}

	ident, ok := value.(*Identity)
	if !ok {
		return nil
	}
	return ident
}

// RequireAuth validates the bearer token and aborts unauthenticated
// requests.
func RequireAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identityFromRequest(c, authService)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing bearer token",
			})
			c.Abort()
			return
		}

		c.Set(identityContextKey, ident)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid bearer token is present
// and lets anonymous requests through. Plan-limited routes registered with
// it fall back to their scope policy for anonymous callers.
func OptionalAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ident, ok := identityFromRequest(c, authService); ok {
			c.Set(identityContextKey, ident)
		}
		c.Next()
	}
}

func identityFromRequest(c *gin.Context, authService *service.AuthService) (*Identity, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}

	claims, err := authService.ValidateToken(parts[1])
	if err != nil {
		return nil, false
	}

	idStr, _ := claims["user_id"].(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, false
	}

	email, _ := claims["email"].(string)
	return &Identity{ID: id, Email: email}, true
}
