package scheduler

import (
	"context"
	"sync"

	"mailops/internal/model"
)

// Result is what a job body hands back to the dispatcher.
type Result struct {
	ExitCode    int
	Output      string
	ErrorOutput string
	Summary     map[string]any
}

// Job is the invocation contract between the dispatcher and a job body.
// Parameters arrive as the task's raw JSON payload; job bodies ignore
// unknown keys. Cancellation flows through the context and must be honored
// at I/O boundaries.
type Job interface {
	Name() string
	Run(ctx context.Context, params []byte) (*Result, error)
}

// Registry maps task types to job bodies.
type Registry struct {
	mu   sync.RWMutex
	jobs map[model.TaskType]Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[model.TaskType]Job)}
}

func (r *Registry) Register(t model.TaskType, job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[t] = job
}

func (r *Registry) Get(t model.TaskType) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[t]
	return job, ok
}
