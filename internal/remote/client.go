package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"go.uber.org/zap"
)

// Remote envelope codes from the executor's closed status set.
const (
	codeSuccess = 0
	codeRunning = 804
	codeFailed  = 805
	codeQueued  = 813
	codeBusy    = 421 // executor task queue full
)

// JobState is the executor-reported state of a remote job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// StatusResponse is one poll answer: the classified state, plus the result
// payload on success or a displayable message on failure.
type StatusResponse struct {
	State   JobState
	Payload json.RawMessage
	Message string
}

// AssetKind declares what an uploaded blob contains.
type AssetKind string

const (
	AssetImage   AssetKind = "image"
	AssetAudio   AssetKind = "audio"
	AssetVideo   AssetKind = "video"
	AssetGeneric AssetKind = "generic"
)

// Client is the boundary with the remote job-execution service.
type Client interface {
	Submit(ctx context.Context, cfg model.TaskConfig, inputs []model.TaskInput, creds string) (string, error)
	QueryStatus(ctx context.Context, remoteJobID, creds string) (StatusResponse, error)
	UploadAsset(ctx context.Context, data []byte, filename string, kind AssetKind, creds string) (string, error)
}

// HTTPClient talks to the executor's HTTP API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewHTTPClient creates a client with a per-call transport timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     zap.L().With(zap.String("component", "remote")),
	}
}

// envelope is the executor's uniform response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// submitData is the accepted-submission payload inside the envelope.
type submitData struct {
	TaskID     string `json:"taskId"`
	TaskStatus string `json:"taskStatus"`
}

// Submit sends a job and returns the remote job id on acceptance.
func (c *HTTPClient) Submit(ctx context.Context, cfg model.TaskConfig, inputs []model.TaskInput, creds string) (string, error) {
	body := map[string]interface{}{
		"jobConfigId": cfg.NodeType,
		"parameters":  cfg.Parameters,
		"inputs":      inputs,
		"apiKey":      creds,
	}
	if cfg.Version != "" {
		body["version"] = cfg.Version
	}

	env, err := c.post(ctx, "/task/run", body, creds)
	if err != nil {
		return "", err
	}

	switch env.Code {
	case codeSuccess:
		var data submitData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.TaskID == "" {
			return "", NewTransientError("malformed submit response", err)
		}
		c.log.Info("job accepted",
			zap.String("remote_job_id", data.TaskID),
			zap.String("remote_status", data.TaskStatus))
		return data.TaskID, nil
	case codeBusy:
		return "", NewTransientError("executor queue is full", nil)
	case codeFailed:
		return "", NewTerminalFailure(env.Code, rejectMessage(env))
	default:
		return "", NewFatalError(env.Code, rejectMessage(env))
	}
}

// QueryStatus performs one poll of a remote job.
func (c *HTTPClient) QueryStatus(ctx context.Context, remoteJobID, creds string) (StatusResponse, error) {
	body := map[string]interface{}{
		"taskId": remoteJobID,
		"apiKey": creds,
	}
	env, err := c.post(ctx, "/task/status", body, creds)
	if err != nil {
		return StatusResponse{}, err
	}

	switch env.Code {
	case codeSuccess:
		return StatusResponse{State: JobSucceeded, Payload: env.Data}, nil
	case codeRunning:
		return StatusResponse{State: JobRunning}, nil
	case codeQueued:
		return StatusResponse{State: JobQueued}, nil
	case codeFailed:
		return StatusResponse{State: JobFailed, Message: rejectMessage(env), Payload: env.Data}, nil
	default:
		// 403/404-class envelope codes mean credentials or job-config
		// misconfiguration, not a job outcome.
		return StatusResponse{}, NewFatalError(env.Code, rejectMessage(env))
	}
}

// uploadData is the upload payload inside the envelope.
type uploadData struct {
	FileName string `json:"fileName"`
}

// UploadAsset pushes raw bytes and returns a reference usable as an input value.
func (c *HTTPClient) UploadAsset(ctx context.Context, data []byte, filename string, kind AssetKind, creds string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write upload body: %w", err)
	}
	if err := w.WriteField("fileType", string(kind)); err != nil {
		return "", fmt.Errorf("failed to write upload field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/task/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+creds)

	env, err := c.send(req)
	if err != nil {
		return "", err
	}
	if env.Code != codeSuccess {
		return "", NewFatalError(env.Code, rejectMessage(env))
	}
	var out uploadData
	if err := json.Unmarshal(env.Data, &out); err != nil || out.FileName == "" {
		return "", NewTransientError("malformed upload response", err)
	}
	return out.FileName, nil
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body interface{}, creds string) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds)

	return c.send(req)
}

func (c *HTTPClient) send(req *http.Request) (*envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewTransientError("request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransientError("failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(resp.StatusCode, truncate(string(raw), 200))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, NewTransientError("malformed response body", err)
	}
	return &env, nil
}

func rejectMessage(env *envelope) string {
	if env.Msg != "" {
		return env.Msg
	}
	return fmt.Sprintf("executor returned code %d", env.Code)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
