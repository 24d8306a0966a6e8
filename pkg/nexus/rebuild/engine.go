package rebuild

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nexusd/nexuscore/pkg/child"
	"github.com/nexusd/nexuscore/pkg/notify"
)

// Engine tracks in-flight rebuild jobs for one Nexus and bounds their
// concurrency: jobSem limits how many jobs run at once, segSem limits how
// many segment copies are in flight across ALL of those jobs, matching
// RebuildConfig's MaxConcurrentJobs/MaxConcurrentSegments split.
type Engine struct {
	nexusName string
	bus       *notify.Bus

	jobSem *semaphore.Weighted
	segSem *semaphore.Weighted

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewEngine returns a rebuild Engine bound to one Nexus's notification bus.
func NewEngine(nexusName string, bus *notify.Bus, maxConcurrentJobs, maxConcurrentSegments int) *Engine {
	if maxConcurrentJobs <= 0 {
		maxConcurrentJobs = 1
	}
	if maxConcurrentSegments <= 0 {
		maxConcurrentSegments = 1
	}
	return &Engine{
		nexusName: nexusName,
		bus:       bus,
		jobSem:    semaphore.NewWeighted(int64(maxConcurrentJobs)),
		segSem:    semaphore.NewWeighted(int64(maxConcurrentSegments)),
		jobs:      make(map[string]*Job),
	}
}

// Start launches a rebuild job copying source into destination and returns
// immediately with a handle; the copy runs on its own goroutine. onComplete
// is invoked with the job's terminal state once the copy finishes or fails,
// so the caller (Nexus) can promote or re-fault the destination child.
func (e *Engine) Start(ctx context.Context, source, dest child.Device, segmentBlocks uint32, numBlocks uint64, onComplete func(j *Job)) (*Job, error) {
	e.mu.Lock()
	for _, existing := range e.jobs {
		if existing.DestinationURI == dest.URI() && existing.State() == StateRunning {
			e.mu.Unlock()
			return nil, fmt.Errorf("rebuild already in progress for destination %s", dest.URI())
		}
	}
	e.mu.Unlock()

	j := newJob(uuid.NewString(), e.nexusName, source, dest, segmentBlocks, numBlocks)

	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	e.mu.Lock()
	e.jobs[j.ID] = j
	e.mu.Unlock()

	go func() {
		defer close(j.done)

		if err := e.jobSem.Acquire(jobCtx, 1); err != nil {
			j.state.Store(int32(StateCancelled))
			return
		}
		defer e.jobSem.Release(1)

		j.run(jobCtx, e.segSem, e.bus)

		if onComplete != nil {
			onComplete(j)
		}
	}()

	return j, nil
}

// Stop cancels a running job by ID.
func (e *Engine) Stop(id string) error {
	e.mu.Lock()
	j, ok := e.jobs[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("rebuild job %s not found", id)
	}
	if j.cancel != nil {
		j.cancel()
	}
	return nil
}

// Get returns a tracked job by ID.
func (e *Engine) Get(id string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	return j, ok
}

// StopByDestination cancels the running job targeting destURI, matching
// §3's "at most one rebuild job exists per destination child" invariant,
// which lets destination URI stand in for a job handle on the RPC surface.
func (e *Engine) StopByDestination(destURI string) error {
	e.mu.Lock()
	var j *Job
	for _, existing := range e.jobs {
		if existing.DestinationURI == destURI && existing.State() == StateRunning {
			j = existing
			break
		}
	}
	e.mu.Unlock()
	if j == nil {
		return fmt.Errorf("no running rebuild job for destination %s", destURI)
	}
	if j.cancel != nil {
		j.cancel()
	}
	return nil
}

// GetByDestination returns the most recently started job targeting destURI,
// running or terminal.
func (e *Engine) GetByDestination(destURI string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var found *Job
	for _, existing := range e.jobs {
		if existing.DestinationURI == destURI {
			found = existing
		}
	}
	return found, found != nil
}

// StopAll cancels every running job and waits for each to reach a terminal
// state. Called from Nexus.Destroy so no rebuild goroutine is still
// touching a child device after its device is closed.
func (e *Engine) StopAll() {
	e.mu.Lock()
	jobs := make([]*Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		jobs = append(jobs, j)
	}
	e.mu.Unlock()

	for _, j := range jobs {
		if j.State() == StateRunning && j.cancel != nil {
			j.cancel()
		}
	}
	for _, j := range jobs {
		j.Wait()
	}
}

// List returns every job this Engine has ever started, running or not.
func (e *Engine) List() []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, j)
	}
	return out
}
