package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
)

func testConfig() model.TaskConfig {
	return model.TaskConfig{
		NodeType:   "cfg-123",
		Parameters: map[string]interface{}{"steps": 20},
	}
}

func envelopeJSON(code int, msg string, data interface{}) []byte {
	raw, _ := json.Marshal(map[string]interface{}{
		"code": code,
		"msg":  msg,
		"data": data,
	})
	return raw
}

func TestSubmitReturnsRemoteJobID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/task/run" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["jobConfigId"] != "cfg-123" {
			t.Errorf("unexpected jobConfigId %v", body["jobConfigId"])
		}
		w.Write(envelopeJSON(0, "", map[string]string{"taskId": "job-42", "taskStatus": "QUEUED"}))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	jobID, err := c.Submit(context.Background(), testConfig(), nil, "key-1")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if jobID != "job-42" {
		t.Fatalf("expected job-42, got %s", jobID)
	}
}

func TestSubmitQueueFullIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(421, "TASK_QUEUE_MAXED", nil))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Submit(context.Background(), testConfig(), nil, "key-1")
	if !IsTransient(err) {
		t.Fatalf("queue-full rejection should be transient, got %v", err)
	}
}

func TestSubmitRejectionIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(403, "APIKEY_INVALID", nil))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Submit(context.Background(), testConfig(), nil, "bad-key")
	if !IsFatal(err) {
		t.Fatalf("credential rejection should be fatal, got %v", err)
	}
}

func TestSubmitRetriesOverHTTPErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(envelopeJSON(0, "", map[string]string{"taskId": "job-7"}))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Retryable: IsTransient}

	var jobID string
	err := policy.Do(context.Background(), "submit", func() error {
		var callErr error
		jobID, callErr = c.Submit(context.Background(), testConfig(), nil, "key-1")
		return callErr
	})
	if err != nil {
		t.Fatalf("expected recovery after 5xx responses: %v", err)
	}
	if jobID != "job-7" {
		t.Fatalf("expected job-7, got %s", jobID)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 HTTP calls, got %d", got)
	}
}

func TestQueryStatusMapsEnvelopeCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code  int
		state JobState
	}{
		{0, JobSucceeded},
		{804, JobRunning},
		{813, JobQueued},
		{805, JobFailed},
	}
	for _, tc := range cases {
		code := tc.code
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/task/status" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write(envelopeJSON(code, "msg", []interface{}{}))
		}))

		c := NewHTTPClient(srv.URL, 5*time.Second)
		resp, err := c.QueryStatus(context.Background(), "job-1", "key-1")
		srv.Close()
		if err != nil {
			t.Fatalf("code %d: unexpected error %v", tc.code, err)
		}
		if resp.State != tc.state {
			t.Fatalf("code %d: expected state %s, got %s", tc.code, tc.state, resp.State)
		}
	}
}

func TestQueryStatusUnknownCodeIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(404, "TASK_NOT_FOUND", nil))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.QueryStatus(context.Background(), "job-gone", "key-1")
	if !IsFatal(err) {
		t.Fatalf("unknown envelope code should be fatal, got %v", err)
	}
}

func TestQueryStatusMalformedBodyIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.QueryStatus(context.Background(), "job-1", "key-1")
	if !IsTransient(err) {
		t.Fatalf("malformed body should be transient, got %v", err)
	}
}

func TestUploadAssetSendsMultipartAndReturnsReference(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/task/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("not a multipart request: %v", err)
		}
		if got := r.FormValue("fileType"); got != "image" {
			t.Errorf("unexpected fileType %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			file.Close()
			if header.Filename != "cat.png" {
				t.Errorf("unexpected filename %q", header.Filename)
			}
		}
		w.Write(envelopeJSON(0, "", map[string]string{"fileName": "api/abc123.png"}))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	ref, err := c.UploadAsset(context.Background(), []byte("png-bytes"), "cat.png", AssetImage, "key-1")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if ref != "api/abc123.png" {
		t.Fatalf("expected api/abc123.png, got %s", ref)
	}
}

func TestUploadAssetRejectionIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelopeJSON(415, "UNSUPPORTED_FILE_TYPE", nil))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.UploadAsset(context.Background(), []byte("x"), "a.bin", AssetGeneric, "key-1")
	if !IsFatal(err) {
		t.Fatalf("upload rejection should be fatal, got %v", err)
	}
}
