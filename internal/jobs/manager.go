package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline/steps"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// DefaultMaxConcurrent bounds simultaneous runs when no limit is configured.
const DefaultMaxConcurrent = 2

// Work is the body of a job. It reports stage progress through progress and
// returns the (possibly partial) result.
type Work func(ctx context.Context, progress pipeline.ProgressCallback) (*types.RunResult, error)

// Spec describes a job to submit.
type Spec struct {
	Kind        types.JobKind
	Mode        types.Mode
	ResServerID string
}

// Manager owns background jobs: it bounds how many run at once, persists
// every state change, and fans updates out to subscribers.
type Manager struct {
	store Store
	sem   *semaphore.Weighted
	base  context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	subs    map[uuid.UUID][]chan *types.Job
}

// NewManager creates a manager whose jobs inherit values (such as the logger)
// from ctx but not its cancellation.
func NewManager(ctx context.Context, store Store, maxConcurrent int) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	base, stop := context.WithCancel(context.WithoutCancel(ctx))
	return &Manager{
		store:   store,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		base:    base,
		stop:    stop,
		cancels: make(map[uuid.UUID]context.CancelFunc),
		subs:    make(map[uuid.UUID][]chan *types.Job),
	}
}

// Submit records a pending job and starts it in the background.
func (m *Manager) Submit(ctx context.Context, spec Spec, work Work) (*types.Job, error) {
	job := &types.Job{
		ID:          uuid.New(),
		Kind:        spec.Kind,
		Mode:        spec.Mode,
		Status:      types.JobStatusPending,
		ResServerID: spec.ResServerID,
		Stages:      steps.NewStageRecords(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, failure.Storage(err, "failed to record job")
	}

	jobCtx, cancel := context.WithCancel(m.base)
	jobCtx = log.With(jobCtx, log.KV{K: "job_id", V: job.ID.String()})

	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.execute(jobCtx, cancel, job.Clone(), work)

	log.Info(ctx, log.KV{K: "msg", V: "job submitted"}, log.KV{K: "job_id", V: job.ID.String()},
		log.KV{K: "kind", V: string(job.Kind)}, log.KV{K: "session_id", V: job.ResServerID})
	return job, nil
}

func (m *Manager) execute(ctx context.Context, cancel context.CancelFunc, job *types.Job, work Work) {
	defer m.wg.Done()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.cancels, job.ID)
		m.mu.Unlock()
		m.closeSubscribers(job.ID)
	}()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(ctx, job, nil, failure.Wrap(failure.KindCanceled, err, "job canceled before it started"))
		return
	}
	defer m.sem.Release(1)

	now := time.Now().UTC()
	job.Status = types.JobStatusRunning
	job.StartedAt = &now
	m.save(ctx, job)

	var mu sync.Mutex
	progress := func(ev pipeline.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		applyProgress(job, ev)
		m.save(ctx, job)
	}

	result, err := work(ctx, progress)

	mu.Lock()
	defer mu.Unlock()
	m.finish(ctx, job, result, err)
}

// applyProgress folds a stage event into the job record.
func applyProgress(job *types.Job, ev pipeline.ProgressEvent) {
	stage := job.StageByName(ev.Step)
	if stage == nil {
		return
	}
	at := ev.Time.UTC()
	stage.Status = ev.Status
	switch ev.Status {
	case types.StageStatusInProgress:
		stage.StartedAt = &at
		job.Stage = ev.Step
	case types.StageStatusCompleted, types.StageStatusFailed:
		stage.CompletedAt = &at
		if stage.StartedAt != nil {
			d := at.Sub(*stage.StartedAt).Milliseconds()
			stage.DurationMs = &d
		}
		if ev.Status == types.StageStatusFailed {
			stage.ErrorMessage = ev.Message
		}
	}
}

func (m *Manager) finish(ctx context.Context, job *types.Job, result *types.RunResult, err error) {
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.Result = result

	switch kind := failure.KindOf(err); {
	case err == nil:
		job.Status = types.JobStatusSucceeded
	case kind == failure.KindCanceled:
		job.Status = types.JobStatusCanceled
		job.ErrorKind = string(kind)
		job.ErrorMessage = err.Error()
	default:
		job.Status = types.JobStatusFailed
		job.ErrorKind = string(kind)
		job.ErrorMessage = err.Error()
	}
	m.save(ctx, job)

	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "job finished"}, log.KV{K: "status", V: job.StatusString()})
		return
	}
	log.Info(ctx, log.KV{K: "msg", V: "job finished"}, log.KV{K: "status", V: job.StatusString()})
}

// save persists the job and notifies subscribers. Persistence errors are
// logged; the in-memory record stays authoritative for the running goroutine.
func (m *Manager) save(ctx context.Context, job *types.Job) {
	if err := m.store.Update(context.WithoutCancel(ctx), job); err != nil {
		log.Errorf(ctx, err, "failed to persist job %s", job.ID)
	}
	m.publish(job)
}

// Get returns the current record of a job.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, failure.Storage(err, "failed to load job %s", id)
	}
	if job == nil {
		return nil, failure.NotFoundf("job %s not found", id)
	}
	return job, nil
}

// List returns recent jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]*types.Job, error) {
	jobs, err := m.store.List(ctx, limit)
	if err != nil {
		return nil, failure.Storage(err, "failed to list jobs")
	}
	return jobs, nil
}

// Cancel stops a pending or running job. Cancelling a finished job is a no-op.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	m.mu.Lock()
	cancel, running := m.cancels[id]
	m.mu.Unlock()

	if running {
		log.Info(ctx, log.KV{K: "msg", V: "cancelling job"}, log.KV{K: "job_id", V: id.String()})
		cancel()
	}
	return m.Get(ctx, id)
}

// Subscribe returns a channel of job snapshots. The channel is closed when the
// job finishes; the returned function unsubscribes early. Slow readers miss
// intermediate snapshots, never the close.
func (m *Manager) Subscribe(id uuid.UUID) (<-chan *types.Job, func()) {
	ch := make(chan *types.Job, 16)

	m.mu.Lock()
	_, running := m.cancels[id]
	if !running {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.subs[id] = append(m.subs[id], ch)
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			list := m.subs[id]
			for i, c := range list {
				if c == ch {
					m.subs[id] = append(list[:i], list[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

func (m *Manager) publish(job *types.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[job.ID] {
		select {
		case ch <- job.Clone():
		default:
		}
	}
}

func (m *Manager) closeSubscribers(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)
}

// Shutdown cancels every job and waits for them to record their final state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
