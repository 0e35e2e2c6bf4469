package model

import (
	"testing"
	"time"
)

func TestTaskStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := []TaskStatus{StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Fatalf("%s should be terminal", st)
		}
	}
	live := []TaskStatus{StatusSubmitting, StatusQueued, StatusRunning}
	for _, st := range live {
		if st.Terminal() {
			t.Fatalf("%s should not be terminal", st)
		}
	}
}

func TestValidateInputs(t *testing.T) {
	t.Parallel()

	cfg := TaskConfig{NodeType: "text-to-image"}

	if err := ValidateInputs(TaskConfig{}, nil); err == nil {
		t.Fatalf("expected error for missing node type")
	}
	if err := ValidateInputs(cfg, nil); err != nil {
		t.Fatalf("no inputs should be valid: %v", err)
	}

	missing := []TaskInput{{FieldName: "prompt", FieldType: FieldText, Required: true}}
	if err := ValidateInputs(cfg, missing); err == nil {
		t.Fatalf("expected error for nil required value")
	}

	empty := []TaskInput{{FieldName: "prompt", FieldType: FieldText, Value: "", Required: true}}
	if err := ValidateInputs(cfg, empty); err == nil {
		t.Fatalf("expected error for empty required string")
	}

	optional := []TaskInput{{FieldName: "seed", FieldType: FieldNumber, Required: false}}
	if err := ValidateInputs(cfg, optional); err != nil {
		t.Fatalf("optional input without a value should pass: %v", err)
	}

	filled := []TaskInput{{FieldName: "prompt", FieldType: FieldText, Value: "a cat", Required: true}}
	if err := ValidateInputs(cfg, filled); err != nil {
		t.Fatalf("filled required input should pass: %v", err)
	}
}

func TestNewTaskRecordCopiesConfigAndInputs(t *testing.T) {
	t.Parallel()

	cfg := TaskConfig{
		NodeType:   "upscale",
		Parameters: map[string]interface{}{"scale": 2},
	}
	inputs := []TaskInput{{FieldName: "image", FieldType: FieldImage, Value: "a.png", Required: true}}

	rec := NewTaskRecord(cfg, inputs)
	if rec.Status != StatusSubmitting {
		t.Fatalf("new record should start submitting, got %s", rec.Status)
	}
	if rec.ID == "" {
		t.Fatalf("new record should have an id")
	}

	// Later caller edits must not leak into the record.
	cfg.Parameters["scale"] = 4
	inputs[0].Value = "b.png"
	if rec.Config.Parameters["scale"] != 2 {
		t.Fatalf("config was not copied: %v", rec.Config.Parameters["scale"])
	}
	if rec.Inputs[0].Value != "a.png" {
		t.Fatalf("inputs were not copied: %v", rec.Inputs[0].Value)
	}
}

func TestNewTaskIDUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTaskID()
		if seen[id] {
			t.Fatalf("duplicate task id %s", id)
		}
		seen[id] = true
	}
}

func TestTaskFilterMatches(t *testing.T) {
	t.Parallel()

	rec := &TaskRecord{
		Status:      StatusRunning,
		Config:      TaskConfig{NodeType: "inpaint"},
		SubmittedAt: time.Now(),
	}

	if !(TaskFilter{}).Matches(rec) {
		t.Fatalf("zero filter should match everything")
	}
	if !(TaskFilter{Status: StatusRunning}).Matches(rec) {
		t.Fatalf("status filter should match")
	}
	if (TaskFilter{Status: StatusFailed}).Matches(rec) {
		t.Fatalf("mismatched status should not match")
	}
	if !(TaskFilter{NodeType: "inpaint"}).Matches(rec) {
		t.Fatalf("node type filter should match")
	}
	if (TaskFilter{NodeType: "upscale"}).Matches(rec) {
		t.Fatalf("mismatched node type should not match")
	}
}
