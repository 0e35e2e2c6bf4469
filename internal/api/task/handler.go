package task

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/guard"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/orchestrator"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/remote"
	"go.uber.org/zap"
)

const bulkImportKey = "bulk-import"

// maxUploadBytes caps asset uploads at 30MB, the executor's own limit.
const maxUploadBytes = 30 * 1024 * 1024

// Handler exposes the orchestration core over HTTP.
type Handler struct {
	Orch             *orchestrator.Orchestrator
	Guard            guard.Guard
	Client           remote.Client
	BatchConcurrency int
}

// SubmitRequest is the task submission payload. The executor credential
// travels with every request; the core never stores it.
type SubmitRequest struct {
	Config model.TaskConfig  `json:"config" binding:"required"`
	Inputs []model.TaskInput `json:"inputs"`
	APIKey string            `json:"api_key" binding:"required"`
}

// Submit starts a task. It returns immediately with the record in the
// submitting state; progress is observable via GET or the wait endpoint.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	rec, err := h.Orch.SubmitTask(req.Config, req.Inputs, req.APIKey)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": rec})
}

// Get returns one task record.
func (h *Handler) Get(c *gin.Context) {
	rec, ok := h.Orch.Store().Get(c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": rec})
}

// List returns task records, optionally filtered by status and node type.
func (h *Handler) List(c *gin.Context) {
	filter := model.TaskFilter{
		Status:   model.TaskStatus(c.Query("status")),
		NodeType: c.Query("node_type"),
	}
	c.JSON(http.StatusOK, gin.H{"tasks": h.Orch.Store().List(filter)})
}

// Stats returns record counts per status.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": h.Orch.Stats()})
}

// Cancel requests cancellation. Cancelling a finished task is a no-op.
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.Orch.CancelTask(c.Param("task_id")); err != nil {
		if errors.Is(err, orchestrator.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cancellation requested"})
}

// RetryRequest carries the credential for the re-submission.
type RetryRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// Retry re-submits a failed or timed-out task under a new id.
func (h *Handler) Retry(c *gin.Context) {
	var req RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	rec, err := h.Orch.RetryTask(c.Param("task_id"), req.APIKey)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		case errors.Is(err, orchestrator.ErrNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": rec})
}

// Delete removes a task record, cancelling it first if still in flight.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.Orch.DeleteTask(c.Param("task_id")); err != nil {
		if errors.Is(err, orchestrator.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

// Wait blocks until the task reaches a terminal state, up to timeout_s
// (default 600, the full polling budget).
func (h *Handler) Wait(c *gin.Context) {
	timeout := 600 * time.Second
	if raw := c.Query("timeout_s"); raw != "" {
		if d, err := time.ParseDuration(raw + "s"); err == nil && d > 0 {
			timeout = d
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	rec, err := h.Orch.WaitForTask(ctx, c.Param("task_id"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
			return
		}
		c.JSON(http.StatusGatewayTimeout, gin.H{"detail": "Task did not finish in time"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": rec})
}

// ImportRequest is a bulk submission of many task items.
type ImportRequest struct {
	Items []struct {
		Config model.TaskConfig  `json:"config"`
		Inputs []model.TaskInput `json:"inputs"`
	} `json:"items" binding:"required"`
	APIKey string `json:"api_key" binding:"required"`
}

// Import submits many tasks in one guarded operation. A second import while
// one is running is rejected with 409, not queued.
func (h *Handler) Import(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if !h.Guard.TryAcquire(bulkImportKey) {
		c.JSON(http.StatusConflict, gin.H{"detail": guard.ErrBusy.Error()})
		return
	}
	defer h.Guard.Release(bulkImportKey)

	items := make([]remote.BatchItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = remote.BatchItem{Config: item.Config, Inputs: item.Inputs}
	}

	outcomes := h.Orch.ImportTasks(c.Request.Context(), items, req.APIKey, h.BatchConcurrency)
	c.JSON(http.StatusOK, gin.H{"items": outcomes})
}

// UploadAsset proxies a multipart upload to the executor and returns the
// remote asset reference usable as a later input value.
func (h *Handler) UploadAsset(c *gin.Context) {
	apiKey := c.PostForm("api_key")
	if apiKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "api_key is required"})
		return
	}

	kind := remote.AssetKind(c.PostForm("kind"))
	switch kind {
	case remote.AssetImage, remote.AssetAudio, remote.AssetVideo:
	case "":
		kind = remote.AssetGeneric
	default:
		kind = remote.AssetGeneric
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No file provided"})
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "File exceeds 30MB limit"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to read file"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "File exceeds 30MB limit"})
		return
	}

	ref, err := h.Client.UploadAsset(c.Request.Context(), data, header.Filename, kind, apiKey)
	if err != nil {
		zap.L().Error("asset upload failed",
			zap.String("filename", header.Filename),
			zap.Error(err))
		status := http.StatusBadGateway
		if remote.IsFatal(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"asset_ref": ref,
		"kind":      kind,
	})
}
