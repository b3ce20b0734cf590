package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue names used across the engine.
const (
	MessageRetry        = "message-retry"
	PaymentVerification = "payment-verification"
	ReceiptGeneration   = "receipt-generation"
)

type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

type Backoff struct {
	Kind BackoffKind
	Base time.Duration
	Max  time.Duration
}

// Delay returns the pause before the given retry attempt (1-based: the delay
// applied after attempt n failed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Base
	if b.Kind == BackoffExponential {
		delay = b.Base << (attempt - 1)
	}

	max := b.Max
	if max == 0 {
		max = 5 * time.Minute
	}
	if delay > max {
		delay = max
	}
	return delay
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

type Job struct {
	ID          uuid.UUID
	Queue       string
	Payload     any
	Attempt     int
	MaxAttempts int
	Status      JobStatus
	Result      any
	LastError   string
	EnqueuedAt  time.Time
	FinishedAt  *time.Time
}

// Handler executes one attempt of a job. It must not retry internally:
// returning an error hands the decision back to the orchestrator.
type Handler func(ctx context.Context, payload any, attempt int) (any, error)

type SuccessHook func(job *Job, result any)

type FailureHook func(job *Job, err error)

type Config struct {
	MaxAttempts int
	Backoff     Backoff
	Workers     int
	// HistoryLimit bounds retained completed/failed jobs per queue.
	HistoryLimit int
}

type namedQueue struct {
	name    string
	config  Config
	handler Handler

	onSuccess SuccessHook
	onFailure FailureHook

	jobs chan *Job

	mu        sync.Mutex
	completed []*Job
	failed    []*Job
}

// Orchestrator owns scheduling and retry bookkeeping for a set of named
// queues. Business logic signals success or failure through the handler
// return value and never re-enqueues directly.
type Orchestrator struct {
	mu     sync.RWMutex
	queues map[string]*namedQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrchestrator() *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		queues: make(map[string]*namedQueue),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (o *Orchestrator) Register(name string, config Config, handler Handler) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.queues[name]; exists {
		return fmt.Errorf("queue %s already registered", name)
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.HistoryLimit < 1 {
		config.HistoryLimit = 50
	}

	o.queues[name] = &namedQueue{
		name:    name,
		config:  config,
		handler: handler,
		jobs:    make(chan *Job, 256),
	}
	return nil
}

// OnSuccess installs the hook called after each completed job. Safe to call
// while workers are running.
func (o *Orchestrator) OnSuccess(name string, hook SuccessHook) {
	o.mu.RLock()
	q, ok := o.queues[name]
	o.mu.RUnlock()

	if ok {
		q.mu.Lock()
		q.onSuccess = hook
		q.mu.Unlock()
	}
}

// OnFailure installs the hook called once a job exhausts its attempts. Safe
// to call while workers are running.
func (o *Orchestrator) OnFailure(name string, hook FailureHook) {
	o.mu.RLock()
	q, ok := o.queues[name]
	o.mu.RUnlock()

	if ok {
		q.mu.Lock()
		q.onFailure = hook
		q.mu.Unlock()
	}
}

// Start launches the worker goroutines for every registered queue.
func (o *Orchestrator) Start() {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, q := range o.queues {
		for i := 0; i < q.config.Workers; i++ {
			o.wg.Add(1)
			go o.worker(q)
		}
	}
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) Enqueue(name string, payload any) (uuid.UUID, error) {
	o.mu.RLock()
	q, ok := o.queues[name]
	o.mu.RUnlock()

	if !ok {
		return uuid.Nil, fmt.Errorf("unknown queue: %s", name)
	}

	job := &Job{
		ID:          uuid.New(),
		Queue:       name,
		Payload:     payload,
		MaxAttempts: q.config.MaxAttempts,
		Status:      JobStatusQueued,
		EnqueuedAt:  time.Now(),
	}

	select {
	case q.jobs <- job:
		return job.ID, nil
	default:
		return uuid.Nil, fmt.Errorf("queue %s is full", name)
	}
}

func (o *Orchestrator) worker(q *namedQueue) {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case job := <-q.jobs:
			o.runJob(q, job)
		}
	}
}

// runJob executes a single attempt. Attempts for the same job are serialized:
// the job re-enters the queue only after its retry delay elapses.
func (o *Orchestrator) runJob(q *namedQueue, job *Job) {
	job.Attempt++
	job.Status = JobStatusRunning

	result, err := q.handler(o.ctx, job.Payload, job.Attempt)
	if err == nil {
		now := time.Now()
		job.Status = JobStatusCompleted
		job.Result = result
		job.FinishedAt = &now
		q.record(&q.completed, job)

		if hook := q.successHook(); hook != nil {
			hook(job, result)
		}
		return
	}

	job.LastError = err.Error()

	if job.Attempt >= job.MaxAttempts {
		now := time.Now()
		job.Status = JobStatusFailed
		job.FinishedAt = &now
		q.record(&q.failed, job)

		log.Printf("Job %s on queue %s permanently failed after %d attempts: %v",
			job.ID, q.name, job.Attempt, err)

		if hook := q.failureHook(); hook != nil {
			hook(job, err)
		}
		return
	}

	delay := q.config.Backoff.Delay(job.Attempt)
	job.Status = JobStatusRetrying

	log.Printf("Job %s on queue %s failed (attempt %d/%d), retrying in %s: %v",
		job.ID, q.name, job.Attempt, job.MaxAttempts, delay, err)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case <-o.ctx.Done():
		case <-time.After(delay):
			select {
			case q.jobs <- job:
			case <-o.ctx.Done():
			}
		}
	}()
}

func (q *namedQueue) successHook() SuccessHook {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.onSuccess
}

func (q *namedQueue) failureHook() FailureHook {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.onFailure
}

func (q *namedQueue) record(history *[]*Job, job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	*history = append(*history, job)
	if len(*history) > q.config.HistoryLimit {
		*history = (*history)[len(*history)-q.config.HistoryLimit:]
	}
}

type QueueStats struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func (o *Orchestrator) Stats() map[string]QueueStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := make(map[string]QueueStats, len(o.queues))
	for name, q := range o.queues {
		q.mu.Lock()
		stats[name] = QueueStats{
			Pending:   len(q.jobs),
			Completed: len(q.completed),
			Failed:    len(q.failed),
		}
		q.mu.Unlock()
	}
	return stats
}

// CompletedJobs returns the retained completed jobs for a queue, oldest
// first. For inspection only.
func (o *Orchestrator) CompletedJobs(name string) []*Job {
	return o.history(name, func(q *namedQueue) []*Job { return q.completed })
}

// FailedJobs returns the retained permanently failed jobs for a queue.
func (o *Orchestrator) FailedJobs(name string) []*Job {
	return o.history(name, func(q *namedQueue) []*Job { return q.failed })
}

func (o *Orchestrator) history(name string, pick func(*namedQueue) []*Job) []*Job {
	o.mu.RLock()
	q, ok := o.queues[name]
	o.mu.RUnlock()
	if !ok {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(pick(q)))
	copy(out, pick(q))
	return out
}
