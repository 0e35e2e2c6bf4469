package result

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"go.uber.org/zap"
)

var (
	imageExt = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)
	videoExt = regexp.MustCompile(`(?i)\.(mp4|avi|mov|webm)$`)
)

// Processor normalizes raw remote payloads into typed results. Parse never
// fails: a malformed payload degrades to a ProcessedResult with Success=false
// so a single bad payload cannot stop the polling loop for other tasks.
type Processor struct {
	log *zap.Logger
}

// NewProcessor creates a processor.
func NewProcessor() *Processor {
	return &Processor{log: zap.L().With(zap.String("component", "result"))}
}

// Parse normalizes the raw payload produced for the given task.
func (p *Processor) Parse(taskID, nodeType string, raw json.RawMessage) model.ProcessedResult {
	now := time.Now().UnixMilli()
	out := model.ProcessedResult{
		TaskID:  taskID,
		Success: true,
		Metadata: model.ResultMetadata{
			CreatedAt:   now,
			ProcessedAt: now,
			NodeType:    nodeType,
			OutputSize:  len(raw),
			OutputCount: 1,
		},
	}

	if len(raw) == 0 {
		out.Success = false
		out.Errors = []string{"empty result payload"}
		return out
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		p.log.Warn("result payload is not valid JSON, degrading",
			zap.String("task_id", taskID),
			zap.Error(err))
		out.Success = false
		out.Errors = []string{"malformed result payload: " + err.Error()}
		return out
	}

	out.Data = decoded
	if obj, ok := decoded.(map[string]interface{}); ok {
		if success, ok := obj["success"].(bool); ok {
			out.Success = success
		}
		if outputs, ok := obj["outputs"].([]interface{}); ok {
			out.Data = outputs
			out.Metadata.OutputCount = len(outputs)
		}
		if dur, ok := obj["taskCostTime"].(string); ok {
			if ms, err := time.ParseDuration(dur + "s"); err == nil {
				out.Metadata.DurationMs = ms.Milliseconds()
			}
		}
		out.Errors = stringList(obj["errors"])
		out.Warnings = stringList(obj["warnings"])
		if len(out.Errors) > 0 {
			out.Success = false
		}
	}
	return out
}

// ClassifyContent inspects a payload's shape for downstream display and
// export decisions only; it never drives control flow.
func ClassifyContent(data interface{}) model.ContentType {
	switch v := data.(type) {
	case nil:
		return model.ContentData
	case string:
		if strings.HasPrefix(v, "data:image/") {
			return model.ContentImage
		}
		if strings.HasPrefix(v, "data:video/") {
			return model.ContentVideo
		}
		if strings.HasPrefix(v, "http") {
			if imageExt.MatchString(v) {
				return model.ContentImage
			}
			if videoExt.MatchString(v) {
				return model.ContentVideo
			}
		}
		return model.ContentText
	case []interface{}:
		return model.ContentText
	default:
		return model.ContentData
	}
}

func stringList(v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case []interface{}:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
