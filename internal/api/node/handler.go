package node

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/state"
)

// Handler exposes the dual-tier node state.
type Handler struct {
	Coordinator *state.Coordinator
}

// InputRequest is one field edit on a canvas node.
type InputRequest struct {
	Config model.TaskConfig `json:"config" binding:"required"`
	Input  model.TaskInput  `json:"input" binding:"required"`
	APIKey string           `json:"api_key" binding:"required"`
}

// SetInput records an edit: the instant preview updates immediately and a
// debounced deep submission follows.
func (h *Handler) SetInput(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	h.Coordinator.SetInput(c.Param("node_id"), req.Config, req.Input, req.APIKey)
	c.JSON(http.StatusAccepted, gin.H{"view": h.Coordinator.View(c.Param("node_id"))})
}

// View returns the merged instant/deep view for a node.
func (h *Handler) View(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"view": h.Coordinator.View(c.Param("node_id"))})
}

// Reset drops a node's instant state.
func (h *Handler) Reset(c *gin.Context) {
	h.Coordinator.Reset(c.Param("node_id"))
	c.JSON(http.StatusOK, gin.H{"message": "Node state cleared"})
}
