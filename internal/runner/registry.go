package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"procedure-scheduler-backend/internal/engine"
)

// Status is the lifecycle state of a scheduling run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

var (
	// ErrRunNotFound is returned for ids the registry does not hold.
	ErrRunNotFound = errors.New("runner: run not found")
	// ErrRunFinished is returned when cancelling a run that already ended.
	ErrRunFinished = errors.New("runner: run already finished")
)

// Run is the registry's view of one scheduling run.
type Run struct {
	ID         string         `json:"id"`
	Status     Status         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Result     *engine.Result `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Issues     []string       `json:"issues,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed || r.Status == StatusCanceled
}

// Registry keeps runs in memory until their TTL expires.
type Registry struct {
	mu      sync.Mutex
	runs    *cache.Cache
	cancels map[string]context.CancelFunc
}

// NewRegistry creates a registry whose entries expire after ttl.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		runs:    cache.New(ttl, 2*ttl),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create registers a new pending run. cancel, if not nil, is called when
// the run is cancelled or finishes.
func (r *Registry) Create(cancel context.CancelFunc) Run {
	run := Run{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.runs.SetDefault(run.ID, run)
	if cancel != nil {
		r.cancels[run.ID] = cancel
	}
	r.mu.Unlock()
	return run
}

// Cancel stops an unfinished run. The run turns canceled once its worker
// observes the cancellation; whatever it computed by then is dropped.
func (r *Registry) Cancel(id string) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.runs.Get(id)
	if !ok {
		return Run{}, ErrRunNotFound
	}
	run := v.(Run)
	if run.Finished() {
		return run, ErrRunFinished
	}
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		return run, nil
	}

	// Nothing is executing on behalf of this run.
	now := time.Now()
	run.Status = StatusCanceled
	run.FinishedAt = &now
	run.Error = context.Canceled.Error()
	run.ErrorKind = engine.ErrorKind(context.Canceled)
	r.runs.SetDefault(id, run)
	return run, nil
}

// Get returns a snapshot of the run with the given id.
func (r *Registry) Get(id string) (Run, bool) {
	v, ok := r.runs.Get(id)
	if !ok {
		return Run{}, false
	}
	return v.(Run), true
}

// Len returns the number of unexpired runs.
func (r *Registry) Len() int {
	return r.runs.ItemCount()
}

// MarkRunning moves a pending run to running.
func (r *Registry) MarkRunning(id string) (Run, bool) {
	return r.update(id, func(run *Run) {
		now := time.Now()
		run.Status = StatusRunning
		run.StartedAt = &now
	})
}

// Finish records the outcome of a run. A failed run keeps no result.
func (r *Registry) Finish(id string, res *engine.Result, err error) (Run, bool) {
	defer r.release(id)
	return r.update(id, func(run *Run) {
		now := time.Now()
		run.FinishedAt = &now
		if err == nil {
			run.Result = res
			run.Status = StatusSucceeded
			return
		}
		run.Result = nil
		run.Error = err.Error()
		run.ErrorKind = engine.ErrorKind(err)
		if run.ErrorKind == "canceled" {
			run.Status = StatusCanceled
		} else {
			run.Status = StatusFailed
		}
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			run.Issues = verr.Issues
		}
	})
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	cancel := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Registry) update(id string, fn func(*Run)) (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.runs.Get(id)
	if !ok {
		return Run{}, false
	}
	run := v.(Run)
	fn(&run)
	r.runs.SetDefault(id, run)
	return run, true
}
