package orchestrator

import (
	"context"
	"time"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/remote"
	"go.uber.org/zap"
)

// ImportOutcome reports one bulk-import item: either a tracked task record or
// the error that kept the item out.
type ImportOutcome struct {
	Index  int               `json:"index"`
	Record *model.TaskRecord `json:"task,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// ImportTasks submits many items in one guarded bulk operation. Submission to
// the executor runs under the bounded concurrency window; one item's failure
// never aborts its siblings. Each accepted item becomes a tracked task record
// already in the queued state with its own polling loop.
//
// Callers must hold the bulk-import single-flight guard.
func (o *Orchestrator) ImportTasks(ctx context.Context, items []remote.BatchItem, creds string, window int) []ImportOutcome {
	outcomes := make([]ImportOutcome, len(items))
	valid := make([]remote.BatchItem, 0, len(items))
	validIdx := make([]int, 0, len(items))

	for i, item := range items {
		outcomes[i].Index = i
		if err := model.ValidateInputs(item.Config, item.Inputs); err != nil {
			outcomes[i].Error = err.Error()
			continue
		}
		valid = append(valid, item)
		validIdx = append(validIdx, i)
	}

	results := remote.SubmitBatch(ctx, o.client, o.opts.SubmitRetry, valid, creds, window)
	for j, res := range results {
		i := validIdx[j]
		if res.Err != nil {
			outcomes[i].Error = res.Err.Error()
			continue
		}
		rec := o.adopt(items[i].Config, items[i].Inputs, res.RemoteJobID, creds)
		outcomes[i].Record = &rec
	}

	o.log.Info("bulk import finished",
		zap.Int("items", len(items)),
		zap.Int("accepted", countAccepted(outcomes)))
	return outcomes
}

// adopt tracks a job the executor already accepted: the record starts in the
// queued state and polling begins immediately.
func (o *Orchestrator) adopt(cfg model.TaskConfig, inputs []model.TaskInput, remoteJobID, creds string) model.TaskRecord {
	rec := model.NewTaskRecord(cfg, inputs)
	rec.Status = model.StatusQueued
	rec.RemoteJobID = remoteJobID
	o.store.Put(rec)

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[rec.ID] = cancel
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.cancels, rec.ID)
			o.mu.Unlock()
			cancel()
		}()
		o.pollLoop(ctx, rec.ID, remoteJobID, creds)
	}()
	return rec
}

// Stats counts records per status.
func (o *Orchestrator) Stats() map[model.TaskStatus]int {
	out := make(map[model.TaskStatus]int)
	for _, rec := range o.store.List(model.TaskFilter{}) {
		out[rec.Status]++
	}
	return out
}

// Shutdown cancels every in-flight polling loop and waits briefly for the
// cancel transitions to land.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.cancels))
	for id := range o.cancels {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		if err := o.CancelTask(id); err != nil {
			o.log.Warn("shutdown cancel failed", zap.String("task_id", id), zap.Error(err))
		}
	}
	time.Sleep(10 * time.Millisecond)
}

func countAccepted(outcomes []ImportOutcome) int {
	n := 0
	for _, out := range outcomes {
		if out.Record != nil {
			n++
		}
	}
	return n
}
