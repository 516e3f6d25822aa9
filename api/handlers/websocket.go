package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chartstudio/collab/internal/hub"
)

// WebSocketHandler handles WebSocket attachments to workspace hubs.
type WebSocketHandler struct {
	service *hub.Service
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(service *hub.Service) *WebSocketHandler {
	return &WebSocketHandler{service: service}
}

// Attach handles WS /ws/workspace/:workspaceId/user/:userId.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	workspaceID := c.Param("workspaceId")
	userID := c.Param("userId")
	if workspaceID == "" || userID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Workspace ID and user ID are required")
		return
	}

	if err := h.service.Handler().HandleConnection(c.Writer, c.Request, workspaceID, userID); err != nil {
		// Error already written by the WebSocket handler.
		return
	}
}

// RegisterRoutes registers the WebSocket route on a Gin engine. The route
// lives outside the /api group to match the client URL template.
func (h *WebSocketHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/workspace/:workspaceId/user/:userId", h.Attach)
}
