// Package worker runs long operations (matching, loading) off the request
// goroutine and lets callers poll their progress.
package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Status string

const (
	Pending  Status = "pending"
	Running  Status = "running"
	Done     Status = "done"
	Failed   Status = "failed"
	Canceled Status = "canceled"
)

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

// Reporter is handed to every job; it has the same shape as the matcher's
// progress hook so a job can pass it straight through.
type Reporter interface {
	Report(done, total int)
}

// Func is the body of a job.
type Func func(ctx context.Context, r Reporter) (any, error)

// Snapshot is a consistent copy of a job's state.
type Snapshot struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Status   Status    `json:"status"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	Result   any       `json:"result,omitempty"`
	Created  time.Time `json:"created"`
	Finished time.Time `json:"finished,omitempty"`
	err      error
}

// Err returns the job error with its original chain.
func (s Snapshot) Err() error { return s.err }

type Job struct {
	id      string
	name    string
	created time.Time

	mu       sync.RWMutex
	status   Status
	progress int
	result   any
	err      error
	finished time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func (j *Job) ID() string { return j.id }

// Report implements Reporter; progress is stored as a percentage.
func (j *Job) Report(done, total int) {
	if total <= 0 {
		return
	}
	p := done * 100 / total
	if p > 100 {
		p = 100
	}
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := Snapshot{
		ID:       j.id,
		Name:     j.name,
		Status:   j.status,
		Progress: j.progress,
		Result:   j.result,
		Created:  j.created,
		Finished: j.finished,
		err:      j.err,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

// Done is closed when the job reaches a final state.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) finish(result any, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case err == nil:
		j.status = Done
		j.progress = 100
		j.result = result
	case errors.Is(err, context.Canceled):
		j.status = Canceled
		j.err = err
	default:
		j.status = Failed
		j.err = err
	}
	j.finished = time.Now()
}

// Pool runs at most `workers` jobs at once; the rest wait as Pending.
type Pool struct {
	log zerolog.Logger
	sem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewPool(workers int, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		log:    logger.With().Str("component", "worker").Logger(),
		sem:    make(chan struct{}, workers),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
}

// Submit queues fn and returns immediately.
func (p *Pool) Submit(name string, fn Func) *Job {
	ctx, cancel := context.WithCancel(p.ctx)
	j := &Job{
		id:      uuid.NewString(),
		name:    name,
		created: time.Now(),
		status:  Pending,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	p.mu.Lock()
	p.jobs[j.id] = j
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, j, fn)
	return j
}

func (p *Pool) run(ctx context.Context, j *Job, fn Func) {
	defer p.wg.Done()
	defer close(j.done)
	defer j.cancel()

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		j.finish(nil, ctx.Err())
		return
	}

	j.setStatus(Running)
	start := time.Now()
	log := p.log.With().Str("job", j.id).Str("name", j.name).Logger()
	log.Debug().Msg("job started")

	result, err := call(ctx, j, fn)
	j.finish(result, err)

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Dur("elapsed", time.Since(start)).Str("status", string(j.Snapshot().Status)).Msg("job finished")
}

func call(ctx context.Context, j *Job, fn Func) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.WithDetail(errors.Newf("panic: %v", rec), string(debug.Stack()))
		}
	}()
	return fn(ctx, j)
}

func (p *Pool) Get(id string) (*Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	j, ok := p.jobs[id]
	return j, ok
}

// Cancel asks a job to stop; the job observes it through its context.
func (p *Pool) Cancel(id string) error {
	j, ok := p.Get(id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s", id)
	}
	j.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (p *Pool) Wait(ctx context.Context, id string) (Snapshot, error) {
	j, ok := p.Get(id)
	if !ok {
		return Snapshot{}, errors.Wrapf(ErrNotFound, "%s", id)
	}
	select {
	case <-j.done:
		return j.Snapshot(), nil
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
}

// Forget drops finished jobs older than age.
func (p *Pool) Forget(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, j := range p.jobs {
		s := j.Snapshot()
		if !s.Finished.IsZero() && s.Finished.Before(cutoff) {
			delete(p.jobs, id)
			n++
		}
	}
	return n
}

// Close cancels running jobs and waits for them to return.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}

func (s Status) Final() bool {
	return s == Done || s == Failed || s == Canceled
}
