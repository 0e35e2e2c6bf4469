package store

import (
	"sort"
	"sync"

	"github.com/tcJackClay/HuanuCanvas-sub001/internal/model"
)

// Subscriber receives a snapshot of a record after each status transition.
type Subscriber func(model.TaskRecord)

// TaskStore holds every TaskRecord by id. Different records can be read and
// updated concurrently; a single record's status transition is guarded by
// compare-and-set so a stale poll can never overwrite a cancellation.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*model.TaskRecord

	subMu   sync.RWMutex
	nextSub int
	global  map[int]Subscriber
	perTask map[string]map[int]Subscriber
}

// NewTaskStore creates an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:   make(map[string]*model.TaskRecord),
		global:  make(map[int]Subscriber),
		perTask: make(map[string]map[int]Subscriber),
	}
}

// Put inserts a new record and notifies subscribers of its initial state.
func (s *TaskStore) Put(rec model.TaskRecord) {
	s.mu.Lock()
	stored := rec
	s.tasks[rec.ID] = &stored
	s.mu.Unlock()
	s.notify(rec)
}

// Get returns a snapshot of the record, or false if it does not exist.
func (s *TaskStore) Get(id string) (model.TaskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[id]
	if !ok {
		return model.TaskRecord{}, false
	}
	return *rec, true
}

// List returns snapshots matching the filter, newest submission first.
func (s *TaskStore) List(filter model.TaskFilter) []model.TaskRecord {
	s.mu.RLock()
	out := make([]model.TaskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if filter.Matches(rec) {
			out = append(out, *rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Delete removes a record. It reports whether the record existed.
func (s *TaskStore) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()

	s.subMu.Lock()
	delete(s.perTask, id)
	s.subMu.Unlock()
	return ok
}

// Transition atomically applies a mutation if the record's current status is
// one of the allowed source states. Terminal records are immutable: they are
// never an allowed source. Subscribers are notified outside the lock.
func (s *TaskStore) Transition(id string, from []model.TaskStatus, apply func(*model.TaskRecord)) (model.TaskRecord, bool) {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return model.TaskRecord{}, false
	}
	allowed := false
	for _, st := range from {
		if rec.Status == st && !rec.Status.Terminal() {
			allowed = true
			break
		}
	}
	if !allowed {
		snapshot := *rec
		s.mu.Unlock()
		return snapshot, false
	}
	apply(rec)
	snapshot := *rec
	s.mu.Unlock()

	s.notify(snapshot)
	return snapshot, true
}

// SubscribeAll registers a callback for every record transition. The returned
// function removes the subscription.
func (s *TaskStore) SubscribeAll(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.global[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.global, id)
		s.subMu.Unlock()
	}
}

// Subscribe registers a callback for one task's transitions.
func (s *TaskStore) Subscribe(taskID string, fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.perTask[taskID] == nil {
		s.perTask[taskID] = make(map[int]Subscriber)
	}
	s.perTask[taskID][id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		if subs, ok := s.perTask[taskID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(s.perTask, taskID)
			}
		}
		s.subMu.Unlock()
	}
}

func (s *TaskStore) notify(rec model.TaskRecord) {
	s.subMu.RLock()
	fns := make([]Subscriber, 0, len(s.global)+len(s.perTask[rec.ID]))
	for _, fn := range s.global {
		fns = append(fns, fn)
	}
	for _, fn := range s.perTask[rec.ID] {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(rec)
	}
}
