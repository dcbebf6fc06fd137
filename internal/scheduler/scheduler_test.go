package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailops/internal/clock"
	"mailops/internal/metrics"
	"mailops/internal/model"
)

func scheduledTask(id uint64, expr string, next time.Time) *model.Task {
	task := testTask(id)
	task.CronExpression = expr
	task.Timezone = "UTC"
	task.NextRunAt = &next
	return task
}

func TestSeedNextRuns(t *testing.T) {
	now := time.Date(2024, 11, 15, 13, 58, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	task := testTask(1)
	task.CronExpression = "0 */5 * * * *"
	task.Timezone = "UTC"
	repo := newFakeTaskRepo(task)

	disabled := testTask(2)
	disabled.CronExpression = "0 */5 * * * *"
	disabled.Status = model.TaskDisabled
	require.NoError(t, repo.Create(context.Background(), disabled))

	s := NewScheduler(repo, &recordingSubmitter{}, clk, time.Second, metrics.NewNopObserver())
	require.NoError(t, s.SeedNextRuns(context.Background()))

	seeded := repo.get(1)
	require.NotNil(t, seeded.NextRunAt)
	assert.Equal(t, time.Date(2024, 11, 15, 14, 0, 0, 0, time.UTC), seeded.NextRunAt.UTC())

	assert.Nil(t, repo.get(2).NextRunAt)
}

func TestTickDispatchesDueTask(t *testing.T) {
	start := time.Date(2024, 11, 15, 13, 59, 59, 0, time.UTC)
	clk := clock.NewFake(start)

	due := start.Add(time.Second)
	task := scheduledTask(1, "0 */5 * * * *", due)
	repo := newFakeTaskRepo(task)
	sub := &recordingSubmitter{}

	s := NewScheduler(repo, sub, clk, time.Second, metrics.NewNopObserver())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	clk.BlockUntil(1)
	clk.Advance(time.Second) // now 14:00:00, task due
	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })

	calls := sub.snapshot()
	assert.Equal(t, model.TriggerScheduled, calls[0].trigger)
	assert.Nil(t, calls[0].parent)
	assert.Equal(t, uint64(1), calls[0].task.ID)

	// next_run_at advanced past the claimed firing.
	stored := repo.get(1)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, time.Date(2024, 11, 15, 14, 5, 0, 0, time.UTC), stored.NextRunAt.UTC())
}

func TestTickClaimsFiringOnce(t *testing.T) {
	now := time.Date(2024, 11, 15, 14, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	task := scheduledTask(1, "0 */5 * * * *", now)
	repo := newFakeTaskRepo(task)
	sub := &recordingSubmitter{}

	s := NewScheduler(repo, sub, clk, time.Second, metrics.NewNopObserver())

	// Two back-to-back passes over the same due instant: the CAS on
	// next_run_at lets only the first one claim.
	require.NoError(t, s.dispatchDue(context.Background()))
	require.NoError(t, s.dispatchDue(context.Background()))

	assert.Len(t, sub.snapshot(), 1)
}

func TestTickSkipsWhenStillRunning(t *testing.T) {
	now := time.Date(2024, 11, 15, 14, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	task := scheduledTask(1, "0 */5 * * * *", now)
	repo := newFakeTaskRepo(task)
	sub := &recordingSubmitter{results: []error{ErrAlreadyRunning}}

	s := NewScheduler(repo, sub, clk, time.Second, metrics.NewNopObserver())
	require.NoError(t, s.dispatchDue(context.Background()))

	// The firing was claimed and dropped, not queued: next_run_at moved on.
	stored := repo.get(1)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, time.Date(2024, 11, 15, 14, 5, 0, 0, time.UTC), stored.NextRunAt.UTC())
}

func TestTickIgnoresInvalidExpression(t *testing.T) {
	now := time.Date(2024, 11, 15, 14, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	task := scheduledTask(1, "not a cron", now)
	repo := newFakeTaskRepo(task)
	sub := &recordingSubmitter{}

	s := NewScheduler(repo, sub, clk, time.Second, metrics.NewNopObserver())
	require.NoError(t, s.dispatchDue(context.Background()))
	assert.Empty(t, sub.snapshot())
}

func TestRunStopsOnCancel(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 11, 15, 14, 0, 0, 0, time.UTC))
	s := NewScheduler(newFakeTaskRepo(), &recordingSubmitter{}, clk, time.Second, metrics.NewNopObserver())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	clk.BlockUntil(1)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
