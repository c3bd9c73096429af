package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/service"
)

const principalKey = "principal"

// Auth validates the Authorization header and attaches the Principal.
type Auth struct {
	Credentials *service.CredentialService
}

// RequireToken ensures the request carries a valid, unrevoked bearer token.
func (m *Auth) RequireToken(c *gin.Context) {
	token, ok := BearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	principal, err := m.Credentials.Verify(c.Request.Context(), token)
	if err != nil {
		if domainErr, ok := domain.AsError(err); ok {
			c.AbortWithStatusJSON(domainErr.Status, gin.H{"error": domainErr.Code, "error_description": domainErr.Message})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}

	c.Set(principalKey, principal)
	c.Next()
}

// BearerToken extracts the raw bearer token from the request.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// GetPrincipal exposes the authenticated principal to handlers.
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := value.(domain.Principal)
	return principal, ok
}
