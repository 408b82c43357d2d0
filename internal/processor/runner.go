package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxrules/internal/instrumentation"
	"github.com/teemow/inboxrules/internal/logging"
	"github.com/teemow/inboxrules/internal/store"
)

var (
	// ErrJobRunning is returned by Start when the user already has a running job.
	ErrJobRunning = errors.New("a processing job is already running for this user")
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
)

// DefaultJobRetention is how long a finished job stays queryable.
const DefaultJobRetention = time.Hour

// JobState is the lifecycle state of a background job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// Job is a snapshot of a background processing job.
type Job struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	MaxEmails  int        `json:"max_emails"`
	State      JobState   `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Summary    *Summary   `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type job struct {
	Job
	cancel context.CancelFunc
}

// BatchProcessor is the part of Processor the Runner drives.
type BatchProcessor interface {
	Process(ctx context.Context, user store.User, max int) (Summary, error)
}

// Runner runs processing batches in background goroutines, one per user at
// a time.
type Runner struct {
	proc    BatchProcessor
	base    context.Context
	stop    context.CancelFunc
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	jobs   map[string]*job
	active map[string]string // user id -> running job id
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. Jobs outlive the request that started them and
// are canceled by Shutdown.
func NewRunner(proc BatchProcessor, metrics *instrumentation.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Runner{
		proc:    proc,
		base:    base,
		stop:    stop,
		metrics: metrics,
		logger:  logger,

		retention: DefaultJobRetention,
		now:       time.Now,

		jobs:   make(map[string]*job),
		active: make(map[string]string),
	}
}

// WithRetention sets how long finished jobs are kept. Values <= 0 keep the
// default.
func (r *Runner) WithRetention(d time.Duration) *Runner {
	if d > 0 {
		r.retention = d
	}
	return r
}

// WithClock replaces the time source, for tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// pruneLocked drops finished jobs older than the retention period.
func (r *Runner) pruneLocked() {
	cutoff := r.now().Add(-r.retention)
	for id, j := range r.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

// Start launches a job for user and returns its snapshot immediately.
func (r *Runner) Start(user store.User, max int) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	if _, running := r.active[user.ID]; running {
		return Job{}, ErrJobRunning
	}
	if r.base.Err() != nil {
		return Job{}, context.Canceled
	}

	ctx, cancel := context.WithCancel(r.base)
	j := &job{
		Job: Job{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			MaxEmails: max,
			State:     JobRunning,
			StartedAt: r.now().UTC(),
		},
		cancel: cancel,
	}
	r.jobs[j.ID] = j
	r.active[user.ID] = j.ID

	r.wg.Add(1)
	r.metrics.IncrementActiveJobs(ctx)
	go r.run(ctx, j, user, max)

	r.logger.Info("processing job started", logging.JobID(j.ID), logging.UserHash(user.Email))
	return j.Job, nil
}

func (r *Runner) run(ctx context.Context, j *job, user store.User, max int) {
	defer r.wg.Done()
	defer r.metrics.DecrementActiveJobs(context.Background())

	summary, err := r.proc.Process(ctx, user, max)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	j.FinishedAt = &now
	j.Summary = &summary
	switch {
	case err == nil:
		j.State = JobCompleted
	case errors.Is(err, context.Canceled):
		j.State = JobCanceled
		j.Error = err.Error()
	default:
		j.State = JobFailed
		j.Error = err.Error()
	}
	j.cancel()
	delete(r.active, j.UserID)

	r.logger.Info("processing job finished",
		logging.JobID(j.ID),
		logging.Status(string(j.State)))
}

// Status returns a snapshot of a job. Finished jobs are forgotten once the
// retention period has passed.
func (r *Runner) Status(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return j.Job, nil
}

// Cancel requests a running job to stop. The job stops before its next email.
// Canceling a finished job is a no-op.
func (r *Runner) Cancel(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	j.cancel()
	return j.Job, nil
}

// Wait blocks until all jobs have finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels all running jobs and waits for them to stop.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stop()
	r.mu.Unlock()
	return r.Wait(ctx)
}
