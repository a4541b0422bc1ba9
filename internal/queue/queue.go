// Package queue provides an in-memory job queue with a worker pool for
// building timelines asynchronously.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

var (
	// ErrQueueFull is returned by Enqueue when the pending buffer is full
	ErrQueueFull = errors.New("queue is full")
	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidJob is returned by Enqueue for requests that cannot run
	ErrInvalidJob = errors.New("invalid job")
)

// JobStatus represents the state of a timeline job
type JobStatus string

// Job status constants define the lifecycle states
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// JobKind selects what a job builds
type JobKind string

// Job kinds
const (
	// KindTimeline builds one series over [Start, End]
	KindTimeline JobKind = "timeline"
	// KindYears builds every calendar year in [StartYear, EndYear] and
	// averages them
	KindYears JobKind = "years"
)

// Request describes the work for a new job
type Request struct {
	Kind      JobKind
	Start     time.Time
	End       time.Time
	StartYear int
	EndYear   int
	Unit      calculator.Unit
}

// Validate checks the request is complete for its kind
func (r Request) Validate() error {
	switch r.Kind {
	case KindTimeline:
		if r.Start.IsZero() || r.End.IsZero() {
			return fmt.Errorf("%w: start and end dates are required", ErrInvalidJob)
		}
		if r.Start.After(r.End) {
			return fmt.Errorf("%w: start %s is after end %s", ErrInvalidJob, calendar.Format(r.Start), calendar.Format(r.End))
		}
	case KindYears:
		if r.StartYear == 0 || r.EndYear == 0 {
			return fmt.Errorf("%w: start and end years are required", ErrInvalidJob)
		}
		if r.StartYear > r.EndYear {
			return fmt.Errorf("%w: start year %d is after end year %d", ErrInvalidJob, r.StartYear, r.EndYear)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, r.Kind)
	}
	return nil
}

func (r Request) checkSpan(maxYears int) error {
	if r.Kind == KindYears {
		return timeline.CheckYears(r.StartYear, r.EndYear, maxYears)
	}
	return timeline.CheckSpan(r.Start, r.End, maxYears)
}

// Job represents a timeline job
type Job struct {
	ID string
	Request
	Status       JobStatus
	QueuedAt     time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Result       *JobResult
}

// clone returns a deep copy safe to hand outside the lock
func (j *Job) clone() *Job {
	c := *j
	if j.StartedAt != nil {
		started := *j.StartedAt
		c.StartedAt = &started
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		c.CompletedAt = &completed
	}
	if j.Result != nil {
		result := *j.Result
		c.Result = &result
	}
	return &c
}

// JobResult contains the output of a completed timeline job
type JobResult struct {
	CSVPath     string
	Unit        calculator.Unit
	TotalDays   int
	DaysAway    int
	MaxDistance float64
	MinDistance float64
	AvgDistance float64
	// Years is the number of yearly series built for KindYears jobs
	Years            int
	Overlaps         int
	SkippedStays     int
	ProcessingTimeMS int64
}

// ProcessFunc is a function that processes a job
type ProcessFunc func(ctx context.Context, job *Job) (*JobResult, error)

// Listener is told about every job that reaches a terminal state
type Listener func(job Job)

// Option configures a Queue
type Option func(*Queue)

// WithCapacity sets the pending buffer size
func WithCapacity(n int) Option {
	return func(q *Queue) { q.capacity = n }
}

// WithListener registers a listener for finished jobs
func WithListener(l Listener) Option {
	return func(q *Queue) { q.listeners = append(q.listeners, l) }
}

// WithMaxRangeYears rejects requests spanning more than n years; n <= 0
// leaves ranges unbounded
func WithMaxRangeYears(n int) Option {
	return func(q *Queue) { q.maxRangeYears = n }
}

// WithLogger sets the queue logger
func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Queue manages timeline jobs with a worker pool
type Queue struct {
	mu            sync.RWMutex
	jobs          map[string]*Job
	pendingQueue  chan *Job
	capacity      int
	maxRangeYears int
	workers       int
	processor     ProcessFunc
	listeners     []Listener
	logger        zerolog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewQueue creates a new job queue with the specified number of workers
func NewQueue(workers int, processor ProcessFunc, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:      make(map[string]*Job),
		capacity:  100,
		workers:   workers,
		processor: processor,
		logger:    zerolog.Nop(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.pendingQueue = make(chan *Job, q.capacity)

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	return q
}

// Enqueue validates req and adds a new job to the queue
func (q *Queue) Enqueue(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := req.checkSpan(q.maxRangeYears); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job := &Job{
		ID:       uuid.New().String(),
		Request:  req,
		Status:   StatusQueued,
		QueuedAt: time.Now().UTC(),
	}

	select {
	case q.pendingQueue <- job:
		q.jobs[job.ID] = job
		q.logger.Debug().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("Job queued")
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// GetJob retrieves a copy of a job by ID
func (q *Queue) GetJob(jobID string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.clone(), nil
}

// ListJobs returns jobs filtered by status, newest first. It also returns
// the number of matching jobs before pagination.
func (q *Queue) ListJobs(status JobStatus, limit, offset int) ([]*Job, int) {
	q.mu.RLock()
	var filtered []*Job
	for _, job := range q.jobs {
		if status == "" || job.Status == status {
			filtered = append(filtered, job.clone())
		}
	}
	q.mu.RUnlock()

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].QueuedAt.Equal(filtered[j].QueuedAt) {
			return filtered[i].QueuedAt.After(filtered[j].QueuedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})

	total := len(filtered)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*Job{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return filtered[offset:end], total
}

// GetStats returns queue statistics
func (q *Queue) GetStats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := map[string]int{
		"total":      len(q.jobs),
		"queued":     0,
		"processing": 0,
		"completed":  0,
		"failed":     0,
	}

	for _, job := range q.jobs {
		stats[string(job.Status)]++
	}

	return stats
}

// Pending returns the number of jobs waiting for a worker
func (q *Queue) Pending() int {
	return len(q.pendingQueue)
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pendingQueue:
			q.processJob(id, job)
		}
	}
}

// processJob executes a single job
func (q *Queue) processJob(workerID int, job *Job) {
	startTime := time.Now()

	q.mu.Lock()
	job.Status = StatusProcessing
	now := time.Now().UTC()
	job.StartedAt = &now
	snapshot := job.clone()
	q.mu.Unlock()

	result, err := q.processor(q.ctx, snapshot)

	q.mu.Lock()
	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Status = StatusFailed
		job.ErrorMessage = err.Error()
	} else {
		job.Status = StatusCompleted
		if result == nil {
			result = &JobResult{}
		}
		result.ProcessingTimeMS = time.Since(startTime).Milliseconds()
		job.Result = result
	}
	final := *job.clone()
	q.mu.Unlock()

	event := q.logger.Info()
	if err != nil {
		event = q.logger.Error().Err(err)
	}
	event.
		Str("job_id", final.ID).
		Str("kind", string(final.Kind)).
		Str("status", string(final.Status)).
		Int("worker", workerID).
		Dur("elapsed", time.Since(startTime)).
		Msg("Job finished")

	for _, l := range q.listeners {
		l(final)
	}
}

// Shutdown gracefully shuts down the queue
func (q *Queue) Shutdown(timeout time.Duration) error {
	// Stop accepting new jobs
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
