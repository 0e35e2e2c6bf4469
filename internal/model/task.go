package model

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// TaskStatus is the lifecycle state of a generation task.
type TaskStatus string

const (
	StatusSubmitting TaskStatus = "submitting"
	StatusQueued     TaskStatus = "queued"
	StatusRunning    TaskStatus = "running"
	StatusSucceeded  TaskStatus = "succeeded"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
	StatusTimedOut   TaskStatus = "timed_out"
)

// Terminal reports whether no further transition can occur from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// FieldType describes the kind of value an input slot carries.
type FieldType string

const (
	FieldImage   FieldType = "image"
	FieldText    FieldType = "text"
	FieldVideo   FieldType = "video"
	FieldFile    FieldType = "file"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// TaskConfig describes what to run. It is copied into the TaskRecord at
// submission time so later edits never affect an in-flight task.
type TaskConfig struct {
	NodeType   string                 `json:"node_type"`
	Parameters map[string]interface{} `json:"parameters"`
	Version    string                 `json:"version,omitempty"`
}

// Clone returns a deep-enough copy of the config (the parameter map is copied;
// parameter values are treated as immutable scalars/arrays).
func (c TaskConfig) Clone() TaskConfig {
	out := c
	if c.Parameters != nil {
		out.Parameters = make(map[string]interface{}, len(c.Parameters))
		for k, v := range c.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}

// TaskInput is one named input slot of a task.
type TaskInput struct {
	FieldName string      `json:"field_name"`
	FieldType FieldType   `json:"field_type"`
	Value     interface{} `json:"value"`
	Required  bool        `json:"required"`
}

// ValidationError reports a config/input problem detected before any network
// call. It is always recoverable by the caller correcting input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// ValidateInputs checks that every required input slot has a non-empty value.
func ValidateInputs(cfg TaskConfig, inputs []TaskInput) error {
	if cfg.NodeType == "" {
		return &ValidationError{Reason: "node_type is required"}
	}
	for _, in := range inputs {
		if !in.Required {
			continue
		}
		if in.Value == nil {
			return &ValidationError{Field: in.FieldName, Reason: "required input is missing"}
		}
		if s, ok := in.Value.(string); ok && s == "" {
			return &ValidationError{Field: in.FieldName, Reason: "required input is empty"}
		}
	}
	return nil
}

// TaskRecord is the single source of truth for a task's lifecycle.
//
// Invariants: Result is non-nil iff Status == succeeded; Error is non-empty
// iff Status is failed or timed_out. A record that has reached a terminal
// status is never mutated again.
type TaskRecord struct {
	ID          string      `json:"id"`
	RemoteJobID string      `json:"remote_job_id,omitempty"`
	Status      TaskStatus  `json:"status"`
	Attempts    int         `json:"attempts"`
	Config      TaskConfig  `json:"config"`
	Inputs      []TaskInput `json:"inputs"`

	SubmittedAt  time.Time  `json:"submitted_at"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`

	Result *ProcessedResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`

	// RetriedFrom links a retry back to the failed record it replaced.
	RetriedFrom string `json:"retried_from,omitempty"`
}

// NewTaskRecord creates a record in the submitting state with a fresh local id.
func NewTaskRecord(cfg TaskConfig, inputs []TaskInput) TaskRecord {
	copied := make([]TaskInput, len(inputs))
	copy(copied, inputs)
	return TaskRecord{
		ID:          NewTaskID(),
		Status:      StatusSubmitting,
		Config:      cfg.Clone(),
		Inputs:      copied,
		SubmittedAt: time.Now(),
	}
}

// NewTaskID generates a locally unique task identifier.
func NewTaskID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		binary.BigEndian.PutUint32(buf, uint32(atomic.AddUint64(&idFallback, 1)))
	}
	return time.Now().Format("20060102_150405") + "-" + hex.EncodeToString(buf)
}

// idFallback keeps ids unique within the process if the system's random
// source is unavailable.
var idFallback uint64

// TaskFilter narrows ListTasks results. Zero values match everything.
type TaskFilter struct {
	Status   TaskStatus
	NodeType string
}

// Matches reports whether rec passes the filter.
func (f TaskFilter) Matches(rec *TaskRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.NodeType != "" && rec.Config.NodeType != f.NodeType {
		return false
	}
	return true
}
