package compliance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/Comfie/ignaCheckApi-sub000/internal/application"
	domain "github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

var (
	ErrJobNotFound = errors.New("analysis job not found")
	ErrDraining    = errors.New("service is shutting down")
)

type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobCanceled  JobState = "canceled"
	JobAborted   JobState = "aborted"
	// JobFailed means the batch never started, e.g. the corpus was unreachable.
	JobFailed JobState = "failed"
)

// JobSnapshot is a consistent copy of a job, safe to serialize.
type JobSnapshot struct {
	ID          string                `json:"id"`
	ProjectID   string                `json:"projectId"`
	FrameworkID string                `json:"frameworkId"`
	State       JobState              `json:"state"`
	Progress    *domain.ProgressEvent `json:"progress,omitempty"`
	Result      *domain.BatchResult   `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	FinishedAt  *time.Time            `json:"finishedAt,omitempty"`
}

type job struct {
	mu     sync.Mutex
	snap   JobSnapshot
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *job) snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.snap
	if s.Progress != nil {
		p := *s.Progress
		s.Progress = &p
	}
	return s
}

func (j *job) running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.State == JobRunning
}

// JobMetrics tracks running jobs. Optional.
type JobMetrics interface {
	JobStarted()
	JobFinished()
}

// JobRegistry runs framework batches in the background. Finished jobs are
// retained in an LRU; evicting a job that is still running cancels it.
type JobRegistry struct {
	service *Service
	jobs    *lru.Cache[string, *job]
	base    context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	draining bool

	Clock   application.Clock
	Metrics JobMetrics
	Logger  zerolog.Logger
}

func NewJobRegistry(svc *Service, maxRetained int, logger zerolog.Logger) (*JobRegistry, error) {
	r := &JobRegistry{service: svc, Logger: logger}
	cache, err := lru.NewWithEvict[string, *job](maxRetained, func(id string, j *job) {
		if j.running() {
			r.Logger.Warn().Str("job_id", id).Msg("running job evicted from registry, canceling")
			j.cancel()
		}
	})
	if err != nil {
		return nil, err
	}
	r.jobs = cache
	r.base, r.stop = context.WithCancel(context.Background())
	return r, nil
}

// Start validates req, then runs it in the background under its own
// cancelable context, detached from the caller's.
func (r *JobRegistry) Start(req domain.BatchRequest) (JobSnapshot, error) {
	if err := validateBatch(req); err != nil {
		return JobSnapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return JobSnapshot{}, ErrDraining
	}

	ctx, cancel := context.WithCancel(r.base)
	j := &job{
		snap: JobSnapshot{
			ID:          NewRunID(),
			ProjectID:   req.ProjectID,
			FrameworkID: req.FrameworkID,
			State:       JobRunning,
			CreatedAt:   r.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.jobs.Add(j.snap.ID, j)
	r.wg.Add(1)
	if r.Metrics != nil {
		r.Metrics.JobStarted()
	}

	go r.run(ctx, j, req)
	return j.snapshot(), nil
}

func (r *JobRegistry) run(ctx context.Context, j *job, req domain.BatchRequest) {
	defer r.wg.Done()
	defer close(j.done)
	defer j.cancel()
	if r.Metrics != nil {
		defer r.Metrics.JobFinished()
	}

	log := r.Logger.With().Str("job_id", j.snap.ID).Logger()
	log.Info().Str("project", req.ProjectID).Str("framework", req.FrameworkID).Msg("analysis job started")

	res, err := r.service.RunFramework(ctx, j.snap.ID, req, func(e domain.ProgressEvent) {
		j.mu.Lock()
		j.snap.Progress = &e
		j.mu.Unlock()
	})

	finished := r.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.FinishedAt = &finished
	switch {
	case err != nil:
		j.snap.State = JobFailed
		j.snap.Error = err.Error()
	case res.ErrorMessage != "":
		j.snap.State = JobAborted
		j.snap.Error = res.ErrorMessage
		j.snap.Result = &res
	case res.Canceled:
		j.snap.State = JobCanceled
		j.snap.Result = &res
	default:
		j.snap.State = JobCompleted
		j.snap.Result = &res
	}
	log.Info().Str("state", string(j.snap.State)).Msg("analysis job finished")
}

func (r *JobRegistry) Get(id string) (JobSnapshot, error) {
	j, ok := r.jobs.Get(id)
	if !ok {
		return JobSnapshot{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// Cancel requests cancellation; the job stops before its next control.
// Canceling a finished job is a no-op.
func (r *JobRegistry) Cancel(id string) (JobSnapshot, error) {
	j, ok := r.jobs.Get(id)
	if !ok {
		return JobSnapshot{}, ErrJobNotFound
	}
	j.cancel()
	return j.snapshot(), nil
}

// Wait blocks until the job finishes or ctx is done.
func (r *JobRegistry) Wait(ctx context.Context, id string) (JobSnapshot, error) {
	j, ok := r.jobs.Peek(id)
	if !ok {
		return JobSnapshot{}, ErrJobNotFound
	}
	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// List returns up to limit jobs, newest first.
func (r *JobRegistry) List(limit int) []JobSnapshot {
	keys := r.jobs.Keys()
	out := make([]JobSnapshot, 0, len(keys))
	for _, k := range keys {
		if j, ok := r.jobs.Peek(k); ok {
			out = append(out, j.snapshot())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Accepting is false once Shutdown has begun.
func (r *JobRegistry) Accepting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.draining
}

// Shutdown refuses new jobs, cancels the running ones and waits for them to
// record their partial results, or for ctx to expire.
func (r *JobRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()
	r.stop()

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

func (r *JobRegistry) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now()
}
