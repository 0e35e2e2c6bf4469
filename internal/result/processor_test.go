package result

import (
	"encoding/json"
	"testing"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
)

func TestParseEmptyPayloadDegrades(t *testing.T) {
	t.Parallel()

	res := NewProcessor().Parse("t-1", "text-to-image", nil)
	if res.Success {
		t.Fatalf("empty payload should not be a success")
	}
	if len(res.Errors) == 0 {
		t.Fatalf("degraded result should carry an error message")
	}
	if res.TaskID != "t-1" {
		t.Fatalf("unexpected task id %s", res.TaskID)
	}
}

func TestParseMalformedPayloadNeverFails(t *testing.T) {
	t.Parallel()

	res := NewProcessor().Parse("t-1", "text-to-image", json.RawMessage("{not json"))
	if res.Success {
		t.Fatalf("malformed payload should degrade to failure")
	}
	if len(res.Errors) == 0 {
		t.Fatalf("degraded result should carry an error message")
	}
}

func TestParseExtractsOutputs(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"success": true,
		"outputs": ["https://cdn.example.com/a.png", "https://cdn.example.com/b.png"],
		"taskCostTime": "12"
	}`)
	res := NewProcessor().Parse("t-1", "text-to-image", raw)
	if !res.Success {
		t.Fatalf("expected success, got errors %v", res.Errors)
	}
	outputs, ok := res.Data.([]interface{})
	if !ok {
		t.Fatalf("expected outputs array as data, got %T", res.Data)
	}
	if len(outputs) != 2 || res.Metadata.OutputCount != 2 {
		t.Fatalf("expected 2 outputs, got %d (count %d)", len(outputs), res.Metadata.OutputCount)
	}
	if res.Metadata.DurationMs != 12000 {
		t.Fatalf("expected 12000ms duration, got %d", res.Metadata.DurationMs)
	}
	if res.Metadata.NodeType != "text-to-image" {
		t.Fatalf("unexpected node type %s", res.Metadata.NodeType)
	}
}

func TestParseErrorsForceFailure(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"success": true, "errors": ["node 7 exploded"], "warnings": "low vram"}`)
	res := NewProcessor().Parse("t-1", "upscale", raw)
	if res.Success {
		t.Fatalf("payload with errors must not be a success")
	}
	if len(res.Errors) != 1 || res.Errors[0] != "node 7 exploded" {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "low vram" {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
}

func TestClassifyContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		data interface{}
		want model.ContentType
	}{
		{nil, model.ContentData},
		{"data:image/png;base64,AAAA", model.ContentImage},
		{"data:video/mp4;base64,AAAA", model.ContentVideo},
		{"https://cdn.example.com/out.PNG", model.ContentImage},
		{"https://cdn.example.com/out.mp4", model.ContentVideo},
		{"https://cdn.example.com/report.pdf", model.ContentText},
		{"plain generated text", model.ContentText},
		{[]interface{}{"a", "b"}, model.ContentText},
		{map[string]interface{}{"k": "v"}, model.ContentData},
		{42.0, model.ContentData},
	}
	for _, tc := range cases {
		if got := ClassifyContent(tc.data); got != tc.want {
			t.Fatalf("ClassifyContent(%v): expected %s, got %s", tc.data, tc.want, got)
		}
	}
}
