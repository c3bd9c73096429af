package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/http/middleware"
	"github.com/voxline/voxline-agents/internal/service"
)

// FolderHandler serves agent folder endpoints.
type FolderHandler struct {
	Folders *service.FolderService
}

func NewFolderHandler(folders *service.FolderService) *FolderHandler {
	return &FolderHandler{Folders: folders}
}

type createFolderRequest struct {
	Name string `json:"name"`
}

func (h *FolderHandler) Create(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}

	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidation("invalid folder payload"))
		return
	}

	folder, err := h.Folders.Create(c.Request.Context(), principal, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newFolderView(folder))
}

func (h *FolderHandler) List(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}

	folders, err := h.Folders.List(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]folderView, 0, len(folders))
	for _, f := range folders {
		views = append(views, newFolderView(f))
	}
	c.JSON(http.StatusOK, gin.H{"folders": views})
}

func (h *FolderHandler) Delete(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	folderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.Folders.Delete(c.Request.Context(), principal, folderID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
