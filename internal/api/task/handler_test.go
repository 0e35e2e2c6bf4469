package task

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/guard"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/orchestrator"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/remote"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/result"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/store"
)

// stubClient accepts everything and reports success on the first poll.
type stubClient struct{}

func (stubClient) Submit(ctx context.Context, cfg model.TaskConfig, inputs []model.TaskInput, creds string) (string, error) {
	return "job-1", nil
}

func (stubClient) QueryStatus(ctx context.Context, remoteJobID, creds string) (remote.StatusResponse, error) {
	return remote.StatusResponse{State: remote.JobSucceeded, Payload: []byte(`{}`)}, nil
}

func (stubClient) UploadAsset(ctx context.Context, data []byte, filename string, kind remote.AssetKind, creds string) (string, error) {
	return "api/ref.png", nil
}

func newTestRouter() (*gin.Engine, *Handler) {
	gin.SetMode(gin.TestMode)

	orch := orchestrator.New(stubClient{}, store.NewTaskStore(), result.NewProcessor(), nil, orchestrator.Options{
		PollInterval:    2 * time.Millisecond,
		MaxPollAttempts: 120,
	})
	h := &Handler{
		Orch:             orch,
		Guard:            guard.NewMemoryGuard(),
		Client:           stubClient{},
		BatchConcurrency: 2,
	}

	r := gin.New()
	r.POST("/api/tasks", h.Submit)
	r.GET("/api/tasks/:task_id", h.Get)
	r.GET("/api/tasks/:task_id/wait", h.Wait)
	r.POST("/api/tasks/:task_id/cancel", h.Cancel)
	r.POST("/api/tasks/import", h.Import)
	return r, h
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitEndpointReturnsTask(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(r, http.MethodPost, "/api/tasks", gin.H{
		"config":  gin.H{"node_type": "text-to-image"},
		"api_key": "key-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Task model.TaskRecord `json:"task"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Task.ID == "" || resp.Task.Status != model.StatusSubmitting {
		t.Fatalf("unexpected task %+v", resp.Task)
	}
}

func TestSubmitEndpointRejectsInvalidInput(t *testing.T) {
	r, _ := newTestRouter()

	// Missing api_key fails binding.
	w := doJSON(r, http.MethodPost, "/api/tasks", gin.H{
		"config": gin.H{"node_type": "text-to-image"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing api_key, got %d", w.Code)
	}

	// Missing required input fails validation.
	w = doJSON(r, http.MethodPost, "/api/tasks", gin.H{
		"config":  gin.H{"node_type": "text-to-image"},
		"inputs":  []gin.H{{"field_name": "prompt", "field_type": "text", "required": true}},
		"api_key": "key-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing required input, got %d", w.Code)
	}
}

func TestGetEndpointUnknownTask(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(r, http.MethodGet, "/api/tasks/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestWaitEndpointReturnsTerminalTask(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(r, http.MethodPost, "/api/tasks", gin.H{
		"config":  gin.H{"node_type": "text-to-image"},
		"api_key": "key-1",
	})
	var submitted struct {
		Task model.TaskRecord `json:"task"`
	}
	json.Unmarshal(w.Body.Bytes(), &submitted)

	w = doJSON(r, http.MethodGet, "/api/tasks/"+submitted.Task.ID+"/wait?timeout_s=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var waited struct {
		Task model.TaskRecord `json:"task"`
	}
	json.Unmarshal(w.Body.Bytes(), &waited)
	if waited.Task.Status != model.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", waited.Task.Status)
	}
}

func TestCancelEndpointUnknownTask(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(r, http.MethodPost, "/api/tasks/missing/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestImportEndpointIsGuarded(t *testing.T) {
	r, h := newTestRouter()

	// Simulate an import already in flight.
	if !h.Guard.TryAcquire(bulkImportKey) {
		t.Fatalf("guard acquire failed")
	}
	defer h.Guard.Release(bulkImportKey)

	w := doJSON(r, http.MethodPost, "/api/tasks/import", gin.H{
		"items":   []gin.H{{"config": gin.H{"node_type": "a"}}},
		"api_key": "key-1",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while an import is running, got %d", w.Code)
	}
}

func TestImportEndpointSubmitsItems(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(r, http.MethodPost, "/api/tasks/import", gin.H{
		"items": []gin.H{
			{"config": gin.H{"node_type": "a"}},
			{"config": gin.H{}}, // invalid
		},
		"api_key": "key-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []orchestrator.ImportOutcome `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(resp.Items))
	}
	if resp.Items[0].Record == nil || resp.Items[1].Error == "" {
		t.Fatalf("unexpected outcomes %+v", resp.Items)
	}
}
