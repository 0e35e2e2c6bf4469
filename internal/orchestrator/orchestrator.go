package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/remote"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/result"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/store"
	"go.uber.org/zap"
)

// ErrTaskNotFound is returned for operations on unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// ErrNotRetryable is returned when retry is requested on a record that is not
// in a failed or timed-out state.
var ErrNotRetryable = errors.New("only failed or timed-out tasks can be retried")

// ResultSaver persists normalized results keyed by task id. Saved results are
// immutable; a retry produces a new task and therefore a new row.
type ResultSaver interface {
	SaveResult(res model.ProcessedResult, contentType model.ContentType) error
}

// Options tune the polling lifecycle.
type Options struct {
	// PollInterval is the fixed delay between poll cycles.
	PollInterval time.Duration
	// MaxPollAttempts forces timed_out once this many cycles ran without a
	// terminal remote answer.
	MaxPollAttempts int
	// SubmitRetry absorbs transient submission failures.
	SubmitRetry remote.RetryPolicy
}

// DefaultOptions matches the executor's documented budget: 5s cycles,
// 120 attempts (ten minutes).
func DefaultOptions() Options {
	return Options{
		PollInterval:    5 * time.Second,
		MaxPollAttempts: 120,
		SubmitRetry:     remote.DefaultRetryPolicy(),
	}
}

// Orchestrator owns TaskRecord creation, the per-task polling loop,
// cancellation and retry. It is the only writer of lifecycle fields; every
// transition is observable through the store's subscriptions.
type Orchestrator struct {
	client    remote.Client
	store     *store.TaskStore
	processor *result.Processor
	saver     ResultSaver
	opts      Options
	log       *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates an orchestrator. saver may be nil when results are not persisted.
func New(client remote.Client, taskStore *store.TaskStore, processor *result.Processor, saver ResultSaver, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = 120
	}
	if opts.SubmitRetry.MaxAttempts == 0 {
		opts.SubmitRetry = remote.DefaultRetryPolicy()
	}
	return &Orchestrator{
		client:    client,
		store:     taskStore,
		processor: processor,
		saver:     saver,
		opts:      opts,
		log:       zap.L().With(zap.String("component", "orchestrator")),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Store exposes the task store for read access and subscriptions.
func (o *Orchestrator) Store() *store.TaskStore { return o.store }

// SubmitTask validates the inputs, creates a record in the submitting state
// and starts the asynchronous lifecycle. It returns before any network call.
func (o *Orchestrator) SubmitTask(cfg model.TaskConfig, inputs []model.TaskInput, creds string) (model.TaskRecord, error) {
	if err := model.ValidateInputs(cfg, inputs); err != nil {
		return model.TaskRecord{}, err
	}
	rec := model.NewTaskRecord(cfg, inputs)
	o.start(rec, creds)
	return rec, nil
}

// RetryTask re-submits a failed or timed-out task under a new id. The
// original record is left untouched; the new record links back via
// RetriedFrom.
func (o *Orchestrator) RetryTask(id, creds string) (model.TaskRecord, error) {
	orig, ok := o.store.Get(id)
	if !ok {
		return model.TaskRecord{}, ErrTaskNotFound
	}
	if orig.Status != model.StatusFailed && orig.Status != model.StatusTimedOut {
		return model.TaskRecord{}, ErrNotRetryable
	}
	rec := model.NewTaskRecord(orig.Config, orig.Inputs)
	rec.RetriedFrom = orig.ID
	o.start(rec, creds)
	return rec, nil
}

// CancelTask requests cooperative cancellation. Cancelling a terminal task is
// a no-op, not an error.
func (o *Orchestrator) CancelTask(id string) error {
	rec, ok := o.store.Get(id)
	if !ok {
		return ErrTaskNotFound
	}
	if rec.Status.Terminal() {
		return nil
	}

	o.mu.Lock()
	cancel := o.cancels[id]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	snap, ok := o.store.Transition(id,
		[]model.TaskStatus{model.StatusSubmitting, model.StatusQueued, model.StatusRunning},
		func(r *model.TaskRecord) {
			r.Status = model.StatusCancelled
			now := time.Now()
			r.FinishedAt = &now
		})
	if ok {
		o.log.Info("task cancelled", zap.String("task_id", id), zap.String("status", string(snap.Status)))
	}
	return nil
}

// DeleteTask removes a record, cancelling it first if still in flight.
func (o *Orchestrator) DeleteTask(id string) error {
	if _, ok := o.store.Get(id); !ok {
		return ErrTaskNotFound
	}
	if err := o.CancelTask(id); err != nil && !errors.Is(err, ErrTaskNotFound) {
		return err
	}
	o.store.Delete(id)
	return nil
}

// WaitForTask blocks until the task reaches a terminal state or ctx is done.
// It is the single-shot counterpart of the subscription interface.
func (o *Orchestrator) WaitForTask(ctx context.Context, id string) (model.TaskRecord, error) {
	done := make(chan model.TaskRecord, 1)
	unsubscribe := o.store.Subscribe(id, func(rec model.TaskRecord) {
		if rec.Status.Terminal() {
			select {
			case done <- rec:
			default:
			}
		}
	})
	defer unsubscribe()

	// The task may already be terminal by the time we subscribed.
	if rec, ok := o.store.Get(id); !ok {
		return model.TaskRecord{}, ErrTaskNotFound
	} else if rec.Status.Terminal() {
		return rec, nil
	}

	select {
	case rec := <-done:
		return rec, nil
	case <-ctx.Done():
		return model.TaskRecord{}, ctx.Err()
	}
}

func (o *Orchestrator) start(rec model.TaskRecord, creds string) {
	o.store.Put(rec)

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[rec.ID] = cancel
	o.mu.Unlock()

	go o.run(ctx, rec.ID, creds)
}

func (o *Orchestrator) run(ctx context.Context, id, creds string) {
	defer func() {
		o.mu.Lock()
		if cancel := o.cancels[id]; cancel != nil {
			cancel()
		}
		delete(o.cancels, id)
		o.mu.Unlock()
	}()

	rec, ok := o.store.Get(id)
	if !ok {
		return
	}

	remoteJobID, submitTries, err := o.submit(ctx, rec, creds)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-submission; the cancel transition already ran.
			return
		}
		o.fail(id, submitError(err))
		return
	}

	_, ok = o.store.Transition(id,
		[]model.TaskStatus{model.StatusSubmitting},
		func(r *model.TaskRecord) {
			r.Status = model.StatusQueued
			r.RemoteJobID = remoteJobID
			r.Attempts += submitTries - 1
		})
	if !ok {
		// Cancelled while the submit round-trip was in flight; discard.
		o.log.Debug("discarding accepted submission for cancelled task",
			zap.String("task_id", id),
			zap.String("remote_job_id", remoteJobID))
		return
	}

	o.pollLoop(ctx, id, remoteJobID, creds)
}

func (o *Orchestrator) submit(ctx context.Context, rec model.TaskRecord, creds string) (string, int, error) {
	var jobID string
	tries := 0
	err := o.opts.SubmitRetry.Do(ctx, "submit", func() error {
		tries++
		var callErr error
		jobID, callErr = o.client.Submit(ctx, rec.Config, rec.Inputs, creds)
		return callErr
	})
	return jobID, tries, err
}

// pollLoop drives one task strictly sequentially: never two concurrent polls
// for the same id. Polling for different ids runs in parallel.
func (o *Orchestrator) pollLoop(ctx context.Context, id, remoteJobID, creds string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.opts.PollInterval):
		}

		snap, ok := o.store.Transition(id,
			[]model.TaskStatus{model.StatusQueued, model.StatusRunning},
			func(r *model.TaskRecord) {
				r.Attempts++
				now := time.Now()
				r.LastPolledAt = &now
			})
		if !ok {
			// Cancelled, or already terminal through another path.
			return
		}

		resp, err := o.client.QueryStatus(ctx, remoteJobID, creds)
		switch {
		case err == nil:
			if o.applyPoll(id, snap, resp) {
				return
			}
		case ctx.Err() != nil:
			return
		case remote.IsFatal(err):
			o.fail(id, err.Error())
			return
		default:
			// Transient: the cycle still counts against the budget.
			o.log.Warn("poll failed, will retry next cycle",
				zap.String("task_id", id),
				zap.Int("attempts", snap.Attempts),
				zap.Error(err))
		}

		if snap.Attempts >= o.opts.MaxPollAttempts {
			o.timeout(id, snap.Attempts)
			return
		}
	}
}

// applyPoll maps one remote answer onto the state machine. It reports whether
// the task reached a terminal state.
func (o *Orchestrator) applyPoll(id string, snap model.TaskRecord, resp remote.StatusResponse) bool {
	switch resp.State {
	case remote.JobQueued:
		// Still waiting for a worker; logged for observability only.
		o.log.Debug("task queued remotely", zap.String("task_id", id), zap.Int("attempts", snap.Attempts))
		return false
	case remote.JobRunning:
		o.store.Transition(id,
			[]model.TaskStatus{model.StatusQueued},
			func(r *model.TaskRecord) { r.Status = model.StatusRunning })
		return false
	case remote.JobSucceeded:
		res := o.processor.Parse(id, snap.Config.NodeType, resp.Payload)
		o.succeed(id, res)
		return true
	case remote.JobFailed:
		msg := resp.Message
		if msg == "" {
			msg = "task failed on the remote executor"
		}
		o.fail(id, msg)
		return true
	default:
		o.log.Warn("unknown remote job state",
			zap.String("task_id", id),
			zap.String("state", string(resp.State)))
		return false
	}
}

func (o *Orchestrator) succeed(id string, res model.ProcessedResult) {
	snap, ok := o.store.Transition(id,
		[]model.TaskStatus{model.StatusQueued, model.StatusRunning},
		func(r *model.TaskRecord) {
			r.Status = model.StatusSucceeded
			r.Result = &res
			now := time.Now()
			r.FinishedAt = &now
		})
	if !ok {
		o.log.Debug("discarding result for task no longer in flight", zap.String("task_id", id))
		return
	}
	o.log.Info("task succeeded",
		zap.String("task_id", id),
		zap.Int("attempts", snap.Attempts))

	if o.saver != nil {
		if err := o.saver.SaveResult(res, result.ClassifyContent(res.Data)); err != nil {
			o.log.Error("failed to persist result",
				zap.String("task_id", id),
				zap.Error(err))
		}
	}
}

func (o *Orchestrator) fail(id, msg string) {
	if msg == "" {
		msg = "task failed"
	}
	_, ok := o.store.Transition(id,
		[]model.TaskStatus{model.StatusSubmitting, model.StatusQueued, model.StatusRunning},
		func(r *model.TaskRecord) {
			r.Status = model.StatusFailed
			r.Error = msg
			now := time.Now()
			r.FinishedAt = &now
		})
	if ok {
		o.log.Warn("task failed", zap.String("task_id", id), zap.String("error", msg))
	}
}

func (o *Orchestrator) timeout(id string, attempts int) {
	_, ok := o.store.Transition(id,
		[]model.TaskStatus{model.StatusQueued, model.StatusRunning},
		func(r *model.TaskRecord) {
			r.Status = model.StatusTimedOut
			r.Error = fmt.Sprintf("no terminal response after %d poll attempts", attempts)
			now := time.Now()
			r.FinishedAt = &now
		})
	if ok {
		o.log.Warn("task timed out", zap.String("task_id", id), zap.Int("attempts", attempts))
	}
}

func submitError(err error) string {
	if remote.IsTerminalFailure(err) || remote.IsFatal(err) {
		return err.Error()
	}
	return "submission failed: " + err.Error()
}
