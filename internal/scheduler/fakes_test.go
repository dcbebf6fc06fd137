package scheduler

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"mailops/internal/model"
	"mailops/internal/repository"
	"mailops/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uint64]*model.Task
}

func newFakeTaskRepo(tasks ...*model.Task) *fakeTaskRepo {
	r := &fakeTaskRepo{tasks: make(map[uint64]*model.Task)}
	for _, t := range tasks {
		cp := *t
		r.tasks[t.ID] = &cp
	}
	return r
}

func (r *fakeTaskRepo) get(id uint64) model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.tasks[id]
}

func (r *fakeTaskRepo) Create(_ context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task *model.Task) error {
	return r.Create(context.Background(), task)
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id uint64) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) GetByName(_ context.Context, name string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTaskRepo) List(_ context.Context) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeTaskRepo) ListDue(_ context.Context, now time.Time) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, t := range r.tasks {
		if t.Status == model.TaskEnabled && t.IsActive && t.NextRunAt != nil && !t.NextRunAt.After(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) SeedNextRun(_ context.Context, id uint64, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && t.NextRunAt == nil {
		t.NextRunAt = &next
	}
	return nil
}

func (r *fakeTaskRepo) ClaimNextRun(_ context.Context, id uint64, prev *time.Time, next time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false, nil
	}
	switch {
	case prev == nil && t.NextRunAt != nil:
		return false, nil
	case prev != nil && (t.NextRunAt == nil || !t.NextRunAt.Equal(*prev)):
		return false, nil
	}
	t.NextRunAt = &next
	return true, nil
}

func (r *fakeTaskRepo) TryMarkRunning(_ context.Context, id uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status == model.TaskRunning {
		return false, nil
	}
	t.Status = model.TaskRunning
	return true, nil
}

func (r *fakeTaskRepo) ReleaseRunning(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && t.Status == model.TaskRunning {
		t.Status = model.TaskEnabled
	}
	return nil
}

func (r *fakeTaskRepo) RecordRun(_ context.Context, id uint64, success bool, at time.Time, final model.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil
	}
	t.RunCount++
	t.LastRunAt = &at
	if success {
		t.SuccessCount++
		t.LastSuccessAt = &at
	} else {
		t.ErrorCount++
		t.LastErrorAt = &at
	}
	if t.Status == model.TaskRunning {
		t.Status = final
	}
	return nil
}

func (r *fakeTaskRepo) Stats(_ context.Context) (*repository.TaskStats, error) {
	return &repository.TaskStats{}, nil
}

func (r *fakeTaskRepo) SoftDelete(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *fakeTaskRepo) WithTx(*gorm.DB) repository.TaskInterface { return r }

type fakeExecRepo struct {
	mu        sync.Mutex
	execs     map[string]*model.Execution
	createErr error
}

func newFakeExecRepo() *fakeExecRepo {
	return &fakeExecRepo{execs: make(map[string]*model.Execution)}
}

func (r *fakeExecRepo) get(executionID string) model.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.execs[executionID]
}

func (r *fakeExecRepo) Create(_ context.Context, exec *model.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	exec.ID = uint64(len(r.execs) + 1)
	cp := *exec
	r.execs[exec.ExecutionID] = &cp
	return nil
}

func (r *fakeExecRepo) Finish(_ context.Context, executionID string, upd repository.FinishUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.execs[executionID]
	if !ok || exec.Status != model.ExecRunning {
		return repository.ErrNotRunning
	}
	exec.Status = upd.Status
	exec.FinishedAt = &upd.FinishedAt
	exec.DurationMS = upd.DurationMS
	exec.ExitCode = upd.ExitCode
	exec.Output = upd.Output
	exec.ErrorOutput = upd.ErrorOutput
	exec.ErrorMessage = upd.ErrorMessage
	exec.MemoryUsageMB = upd.MemoryUsageMB
	return nil
}

func (r *fakeExecRepo) GetByExecutionID(_ context.Context, executionID string) (*model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.execs[executionID]
	if !ok {
		return nil, nil
	}
	cp := *exec
	return &cp, nil
}

func (r *fakeExecRepo) ListByTask(_ context.Context, taskID uint64, _ int) ([]*model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Execution
	for _, exec := range r.execs {
		if exec.TaskID == taskID {
			cp := *exec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeExecRepo) CountRunning(_ context.Context, taskID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, exec := range r.execs {
		if exec.TaskID == taskID && exec.Status == model.ExecRunning {
			n++
		}
	}
	return n, nil
}

func (r *fakeExecRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeExecRepo) WithTx(*gorm.DB) repository.ExecutionInterface { return r }

// funcJob adapts a function to the Job interface.
type funcJob struct {
	name string
	fn   func(ctx context.Context, params []byte) (*Result, error)
}

func (j *funcJob) Name() string { return j.name }

func (j *funcJob) Run(ctx context.Context, params []byte) (*Result, error) {
	return j.fn(ctx, params)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ []string, taskName, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, taskName)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// recordingSubmitter captures Submit calls for retry controller tests.
type recordingSubmitter struct {
	mu      sync.Mutex
	calls   []submitCall
	results []error
}

type submitCall struct {
	task    model.Task
	trigger model.TriggerType
	parent  *model.Execution
}

func (s *recordingSubmitter) Submit(task model.Task, trigger model.TriggerType, parent *model.Execution) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, submitCall{task: task, trigger: trigger, parent: parent})
	if len(s.results) > 0 {
		err := s.results[0]
		s.results = s.results[1:]
		return "", err
	}
	return "exec-id", nil
}

func (s *recordingSubmitter) snapshot() []submitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submitCall(nil), s.calls...)
}
