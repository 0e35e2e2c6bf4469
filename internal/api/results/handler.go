package results

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/repository"
)

// Handler exposes persisted task results.
type Handler struct {
	Repo *repository.ResultRepo
}

// Get returns the stored result for one task.
func (h *Handler) Get(c *gin.Context) {
	res, err := h.Repo.LoadResult(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Result not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// Search returns stored results matching a free-text query and filters.
func (h *Handler) Search(c *gin.Context) {
	filter := model.ResultFilter{
		NodeType:    c.Query("node_type"),
		ContentType: model.ContentType(c.Query("content_type")),
		OnlySuccess: c.Query("only_success") == "true",
	}

	found, err := h.Repo.SearchResults(c.Query("q"), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": found})
}

// Delete removes a stored result.
func (h *Handler) Delete(c *gin.Context) {
	deleted, err := h.Repo.DeleteResult(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Result not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Result deleted"})
}
