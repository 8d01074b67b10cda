package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// Job is a snapshot of a registry entry.
type Job struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Registry tracks the lifecycle of every known job. It is shared by the
// HTTP handlers and the worker pool; all access goes through its lock.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// NewID generates an opaque job identifier.
func NewID() string {
	return uuid.NewString()
}

// Create registers a job with its initial status. Jobs normally start
// pending; a cache hit creates them completed.
func (r *Registry) Create(id string, st Status) {
	now := r.now()

	r.mu.Lock()
	r.jobs[id] = &Job{ID: id, Status: st, CreatedAt: now, UpdatedAt: now}
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Transition moves a job to next. Terminal jobs never change again.
func (r *Registry) Transition(id string, next Status) error {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !canTransition(j.Status.State, next.State) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status.State, next.State)
	}
	j.Status = next
	j.UpdatedAt = now
	return nil
}

// Delete drops a job regardless of state. The orchestrator uses it to roll
// back a registration whose enqueue was refused.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Cleanup removes completed and failed jobs whose last update is older than
// ttl. Pending and running jobs are kept regardless of age.
func (r *Registry) Cleanup(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, j := range r.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// Counts returns the number of jobs per state.
func (r *Registry) Counts() map[State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[State]int{
		StatePending:   0,
		StateRunning:   0,
		StateCompleted: 0,
		StateFailed:    0,
	}
	for _, j := range r.jobs {
		counts[j.Status.State]++
	}
	return counts
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
