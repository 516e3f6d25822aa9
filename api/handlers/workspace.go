// Package handlers provides HTTP API request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chartstudio/collab/internal/hub"
	"github.com/chartstudio/collab/internal/repository"
)

// WorkspaceHandler serves read access to a workspace's durable and live
// collaboration state.
type WorkspaceHandler struct {
	service  *hub.Service
	comments *repository.CommentRepository
	history  *repository.HistoryRepository
}

// NewWorkspaceHandler creates a new WorkspaceHandler.
func NewWorkspaceHandler(service *hub.Service, comments *repository.CommentRepository, history *repository.HistoryRepository) *WorkspaceHandler {
	return &WorkspaceHandler{
		service:  service,
		comments: comments,
		history:  history,
	}
}

// ListComments handles GET /api/workspaces/:id/comments.
func (h *WorkspaceHandler) ListComments(c *gin.Context) {
	workspaceID := c.Param("id")
	if workspaceID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Workspace ID is required")
		return
	}

	comments, err := h.comments.ListByWorkspace(c.Request.Context(), workspaceID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list comments: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// ListHistory handles GET /api/workspaces/:id/history.
func (h *WorkspaceHandler) ListHistory(c *gin.Context) {
	workspaceID := c.Param("id")
	if workspaceID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Workspace ID is required")
		return
	}

	entries, err := h.history.ListByWorkspace(c.Request.Context(), workspaceID, 0)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list change history: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// Presence handles GET /api/workspaces/:id/presence.
func (h *WorkspaceHandler) Presence(c *gin.Context) {
	workspaceID := c.Param("id")
	if workspaceID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Workspace ID is required")
		return
	}

	users := h.service.Presence(workspaceID)
	c.JSON(http.StatusOK, gin.H{
		"users":       users,
		"clientCount": h.service.ClientCount(workspaceID),
	})
}

// RegisterRoutes registers the workspace routes on a Gin router group.
func (h *WorkspaceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/workspaces/:id/comments", h.ListComments)
	rg.GET("/workspaces/:id/history", h.ListHistory)
	rg.GET("/workspaces/:id/presence", h.Presence)
}

// sendError writes a uniform error envelope.
func sendError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
