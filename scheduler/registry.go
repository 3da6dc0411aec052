package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/teranos/metronome/errors"
)

// Job is one executable unit of work. Execute returns the TriggerUpdate
// that decides the trigger's fate; see TriggerStore.ApplyUpdate for how the
// update resolves.
//
// Context cancellation: the loop cancels ctx when the lease is lost or the
// node shuts down. Long-running jobs should also poll
// ExecutionContext.IsRunning and abandon work when it flips false.
type Job interface {
	Execute(ctx context.Context, execCtx *ExecutionContext) (TriggerUpdate, error)
}

// JobFactory builds a Job from its definition. Factories reject malformed
// configs with a configuration error, which parks the trigger in status
// error until an operator resets it.
type JobFactory func(def *JobDefinition) (Job, error)

// Registry maps job types to factories. Populated once at startup;
// safe for concurrent dispatch.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]JobFactory
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]JobFactory)}
}

// Register adds a factory for a job type. Registering the same type twice
// is an error.
func (r *Registry) Register(jobType string, factory JobFactory) error {
	if jobType == "" {
		return errors.NewConfigurationError("job type is required")
	}
	if factory == nil {
		return errors.NewConfigurationError("job factory for %q is nil", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[jobType]; exists {
		return errors.NewConfigurationError("job factory already registered for type %q", jobType)
	}
	r.factories[jobType] = factory
	return nil
}

// Build constructs the job for a definition. An unregistered job type is a
// configuration error.
func (r *Registry) Build(def *JobDefinition) (Job, error) {
	r.mu.RLock()
	factory, ok := r.factories[def.JobType]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NewConfigurationError("no job factory registered for type %q", def.JobType)
	}

	job, err := factory(def)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s job for definition %s", def.JobType, def.ID)
	}
	return job, nil
}

// Has reports whether a factory is registered for the job type.
func (r *Registry) Has(jobType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[jobType]
	return ok
}

// Types returns the registered job types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for jobType := range r.factories {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}
