package runner

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"procedure-scheduler-backend/internal/engine"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("runner: queue is full")
	// ErrPoolStopped is returned when the pool shuts down before a run completes.
	ErrPoolStopped = errors.New("runner: pool stopped")
)

// Scheduler is the engine entry point the pool drives.
type Scheduler interface {
	Schedule(ctx context.Context, req engine.Request) (*engine.Result, error)
}

type job struct {
	id   string
	ctx  context.Context
	req  engine.Request
	sub  *webpush.Subscription
	done chan outcome
}

type outcome struct {
	run Run
	err error
}

// Pool manages a pool of workers running schedules.
type Pool struct {
	size      int
	jobs      chan job
	ctx       context.Context
	scheduler Scheduler
	registry  *Registry
	notifier  *Notifier
}

// NewPool creates a new worker pool. notifier may be nil.
func NewPool(size, queueSize int, scheduler Scheduler, registry *Registry, notifier *Notifier) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &Pool{
		size:      size,
		jobs:      make(chan job, queueSize),
		ctx:       context.Background(),
		scheduler: scheduler,
		registry:  registry,
		notifier:  notifier,
	}
}

// Registry returns the registry runs are recorded in.
func (p *Pool) Registry() *Registry {
	return p.registry
}

// Start launches the worker goroutines. Async runs inherit ctx.
func (p *Pool) Start(ctx context.Context) {
	p.ctx = ctx
	for i := 0; i < p.size; i++ {
		go p.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (p *Pool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case j := <-p.jobs:
			p.process(j)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Run queues req and waits for its result. Cancelling ctx, or the run
// through Cancel, cancels the run. The returned error is the engine's error,
// if any.
func (p *Pool) Run(ctx context.Context, req engine.Request) (Run, error) {
	runCtx, cancel := context.WithCancel(ctx)
	run := p.registry.Create(cancel)
	j := job{id: run.ID, ctx: runCtx, req: req, done: make(chan outcome, 1)}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		run, _ = p.registry.Finish(run.ID, nil, ctx.Err())
		return run, ctx.Err()
	case <-p.ctx.Done():
		run, _ = p.registry.Finish(run.ID, nil, ErrPoolStopped)
		return run, ErrPoolStopped
	}

	select {
	case out := <-j.done:
		return out.run, out.err
	case <-ctx.Done():
		run, _ = p.registry.Get(run.ID)
		return run, ctx.Err()
	case <-p.ctx.Done():
		return run, ErrPoolStopped
	}
}

// Submit queues req without waiting and returns the run id. When sub is
// set and push is configured, sub is notified on completion.
func (p *Pool) Submit(req engine.Request, sub *webpush.Subscription) (string, error) {
	runCtx, cancel := context.WithCancel(p.ctx)
	run := p.registry.Create(cancel)
	j := job{id: run.ID, ctx: runCtx, req: req, sub: sub}

	select {
	case p.jobs <- j:
		log.Printf("Run %s queued", run.ID)
		return run.ID, nil
	default:
		p.registry.Finish(run.ID, nil, ErrQueueFull)
		return "", ErrQueueFull
	}
}

// Cancel stops the run with the given id, queued or executing.
func (p *Pool) Cancel(id string) (Run, error) {
	run, err := p.registry.Cancel(id)
	if err == nil {
		log.Printf("Run %s cancel requested", id)
	}
	return run, err
}

func (p *Pool) process(j job) {
	if err := j.ctx.Err(); err != nil {
		p.complete(j, nil, err)
		return
	}

	p.registry.MarkRunning(j.id)
	started := time.Now()
	res, err := p.scheduler.Schedule(j.ctx, j.req)
	if err == nil && j.ctx.Err() != nil {
		// Cancelled after the engine's last check; the result is not wanted.
		res, err = nil, j.ctx.Err()
	}
	if err != nil {
		log.Printf("Run %s failed after %s: %v", j.id, time.Since(started).Round(time.Millisecond), err)
	} else {
		log.Printf("Run %s finished in %s with %d bookings", j.id, time.Since(started).Round(time.Millisecond), len(res.Bookings))
	}
	p.complete(j, res, err)
}

func (p *Pool) complete(j job, res *engine.Result, err error) {
	run, ok := p.registry.Finish(j.id, res, err)
	if !ok {
		run = Run{ID: j.id}
	}
	if j.done != nil {
		j.done <- outcome{run: run, err: err}
	}
	if j.sub != nil && p.notifier != nil {
		if err := p.notifier.Notify(run, j.sub); err != nil && !errors.Is(err, ErrSubscriptionExpired) {
			log.Printf("Error notifying run %s: %v", j.id, err)
		}
	}
}
