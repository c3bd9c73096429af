package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/http/middleware"
	"github.com/voxline/voxline-agents/internal/service"
)

// PhoneNumberHandler serves the phone number inventory endpoints.
type PhoneNumberHandler struct {
	Numbers *service.PhoneNumberService
}

func NewPhoneNumberHandler(numbers *service.PhoneNumberService) *PhoneNumberHandler {
	return &PhoneNumberHandler{Numbers: numbers}
}

type createNumberRequest struct {
	Number      string `json:"number"`
	Description string `json:"description"`
}

// Create registers a number in the tenant's pool.
func (h *PhoneNumberHandler) Create(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}

	var req createNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidation("invalid phone number payload"))
		return
	}

	number, err := h.Numbers.Create(c.Request.Context(), principal, req.Number, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newNumberView(number))
}

// List returns every number in the tenant's pool.
func (h *PhoneNumberHandler) List(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}

	numbers, err := h.Numbers.List(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"phone_numbers": newNumberViews(numbers)})
}

// Get returns a single number.
func (h *PhoneNumberHandler) Get(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	numberID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	number, err := h.Numbers.Get(c.Request.Context(), principal, numberID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newNumberView(number))
}

// Delete removes an unbound number from the pool.
func (h *PhoneNumberHandler) Delete(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	numberID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.Numbers.Delete(c.Request.Context(), principal, numberID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Release force-unbinds a number regardless of agent state. Admin only.
func (h *PhoneNumberHandler) Release(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	numberID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.Numbers.Release(c.Request.Context(), principal, numberID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
