package state

import (
	"errors"
	"sync"
	"time"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/orchestrator"
	"go.uber.org/zap"
)

// InstantView is the ephemeral, per-node state shown while a deep task is in
// flight. It is overwritten on every interaction and never persisted.
type InstantView struct {
	Preview      map[string]interface{} `json:"preview"`
	IsProcessing bool                   `json:"is_processing"`
	Error        string                 `json:"error,omitempty"`
}

// NodeView is the merged read view: the deep TaskRecord when one exists for
// the node's latest interaction, plus the instant preview.
type NodeView struct {
	Instant InstantView       `json:"instant"`
	Task    *model.TaskRecord `json:"task,omitempty"`
}

type fieldTarget struct {
	nodeID string
	field  string
}

type nodeState struct {
	preview      map[string]interface{}
	fields       map[string]model.TaskInput
	isProcessing bool
	err          string
	latestTask   string
	timers       map[string]*time.Timer
	// applied records, per field, the completion time of the last task whose
	// outcome was written into the preview. A late-arriving older completion
	// is discarded.
	applied map[string]time.Time
}

// Coordinator merges the instant tier with the deep tier produced by the
// orchestrator. User edits land in instant state synchronously; a debounced
// deep submission follows, carrying the values present when the window
// elapsed.
type Coordinator struct {
	orch     *orchestrator.Orchestrator
	debounce time.Duration
	log      *zap.Logger

	mu          sync.Mutex
	nodes       map[string]*nodeState
	taskTargets map[string]fieldTarget
	unsubscribe func()
	closed      bool
}

// NewCoordinator creates a coordinator subscribed to every task transition.
// A non-positive debounce falls back to the historical 300ms window.
func NewCoordinator(orch *orchestrator.Orchestrator, debounce time.Duration) *Coordinator {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	c := &Coordinator{
		orch:        orch,
		debounce:    debounce,
		log:         zap.L().With(zap.String("component", "state")),
		nodes:       make(map[string]*nodeState),
		taskTargets: make(map[string]fieldTarget),
	}
	c.unsubscribe = orch.Store().SubscribeAll(c.onTransition)
	return c
}

// Close detaches the coordinator from the store and stops pending timers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for _, ns := range c.nodes {
		for _, t := range ns.timers {
			t.Stop()
		}
	}
	c.mu.Unlock()
	c.unsubscribe()
}

// SetInput records one field edit: the instant preview updates synchronously
// with no network call, and a deep submission is scheduled after the debounce
// window. Rapid edits to the same field collapse into a single submission
// carrying the last value.
func (c *Coordinator) SetInput(nodeID string, cfg model.TaskConfig, input model.TaskInput, creds string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	ns := c.node(nodeID)
	ns.preview[input.FieldName] = input.Value
	ns.fields[input.FieldName] = input
	ns.isProcessing = true
	ns.err = ""

	field := input.FieldName
	if t, ok := ns.timers[field]; ok {
		t.Stop()
	}
	ns.timers[field] = time.AfterFunc(c.debounce, func() {
		c.flush(nodeID, field, cfg, creds)
	})
}

// View returns the merged view for a node.
func (c *Coordinator) View(nodeID string) NodeView {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.nodes[nodeID]
	if !ok {
		return NodeView{Instant: InstantView{Preview: map[string]interface{}{}}}
	}

	view := NodeView{
		Instant: InstantView{
			Preview:      copyPreview(ns.preview),
			IsProcessing: ns.isProcessing,
			Error:        ns.err,
		},
	}
	if ns.latestTask != "" {
		if rec, ok := c.orch.Store().Get(ns.latestTask); ok {
			view.Task = &rec
		}
	}
	return view
}

// Reset drops a node's instant state entirely.
func (c *Coordinator) Reset(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ns, ok := c.nodes[nodeID]; ok {
		for _, t := range ns.timers {
			t.Stop()
		}
		delete(c.nodes, nodeID)
	}
}

// flush performs the debounced deep submission for one node field, using the
// inputs present at this moment, not the union of intermediate edits.
func (c *Coordinator) flush(nodeID, field string, cfg model.TaskConfig, creds string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ns, ok := c.nodes[nodeID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(ns.timers, field)
	inputs := make([]model.TaskInput, 0, len(ns.fields))
	for _, in := range ns.fields {
		inputs = append(inputs, in)
	}
	c.mu.Unlock()

	rec, err := c.orch.SubmitTask(cfg, inputs, creds)

	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok = c.nodes[nodeID]
	if !ok {
		return
	}
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			ns.err = verr.Error()
		} else {
			ns.err = err.Error()
		}
		ns.isProcessing = false
		return
	}
	ns.latestTask = rec.ID
	c.taskTargets[rec.ID] = fieldTarget{nodeID: nodeID, field: field}
	c.log.Debug("deep submission scheduled",
		zap.String("node_id", nodeID),
		zap.String("field", field),
		zap.String("task_id", rec.ID))
}

// onTransition reconciles a terminal deep outcome into the instant tier.
// Only the field the task targeted is touched, and completions apply in
// finished-at order: a late-arriving older completion loses.
func (c *Coordinator) onTransition(rec model.TaskRecord) {
	if !rec.Status.Terminal() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tgt, ok := c.taskTargets[rec.ID]
	if !ok {
		return
	}
	delete(c.taskTargets, rec.ID)

	ns, ok := c.nodes[tgt.nodeID]
	if !ok {
		return
	}

	finished := time.Now()
	if rec.FinishedAt != nil {
		finished = *rec.FinishedAt
	}
	if last, ok := ns.applied[tgt.field]; ok && !finished.After(last) {
		c.log.Debug("discarding stale completion",
			zap.String("node_id", tgt.nodeID),
			zap.String("field", tgt.field),
			zap.String("task_id", rec.ID))
		return
	}
	ns.applied[tgt.field] = finished

	ns.isProcessing = false
	ns.err = rec.Error
	if rec.Status == model.StatusSucceeded && rec.Result != nil {
		ns.preview[tgt.field] = rec.Result.Data
	}
}

func (c *Coordinator) node(nodeID string) *nodeState {
	ns, ok := c.nodes[nodeID]
	if !ok {
		ns = &nodeState{
			preview: make(map[string]interface{}),
			fields:  make(map[string]model.TaskInput),
			timers:  make(map[string]*time.Timer),
			applied: make(map[string]time.Time),
		}
		c.nodes[nodeID] = ns
	}
	return ns
}

func copyPreview(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
