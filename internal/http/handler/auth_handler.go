package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/http/middleware"
	"github.com/voxline/voxline-agents/internal/service"
)

// AuthHandler serves registration, login, and user management.
type AuthHandler struct {
	Credentials *service.CredentialService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(credentials *service.CredentialService) *AuthHandler {
	return &AuthHandler{Credentials: credentials}
}

// Register creates a user. Without a tenant_id a fresh tenant is
// allocated.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
		TenantID string `json:"tenant_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidation("invalid register request"))
		return
	}

	var tenantID int64
	if req.TenantID != "" {
		id, err := parseID(req.TenantID)
		if err != nil {
			respondError(c, err)
			return
		}
		tenantID = id
	}

	user, err := h.Credentials.Register(c.Request.Context(), req.Email, req.Password, domain.Role(req.Role), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": newUserView(user)})
}

// Login verifies credentials and issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidation("invalid login request"))
		return
	}

	result, err := h.Credentials.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"user":       newUserView(result.User),
	})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}

	user, err := h.Credentials.GetUser(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": newUserView(user)})
}

// Logout revokes the presented token's session.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Bearer token required."))
		return
	}

	if err := h.Credentials.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListUsers is admin-only, scoped to the caller's tenant.
func (h *AuthHandler) ListUsers(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}

	users, err := h.Credentials.ListUsers(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, user := range users {
		views = append(views, newUserView(user))
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}

// DeleteUser is admin-only.
func (h *AuthHandler) DeleteUser(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.Credentials.DeleteUser(c.Request.Context(), principal, userID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
