package coord_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tak/internal/coord"
	"github.com/steveyegge/tak/internal/lifecycle"
	"github.com/steveyegge/tak/internal/repo"
	"github.com/steveyegge/tak/internal/task"
)

func newWorkEnv(t *testing.T) (*lifecycle.Engine, *coord.Runtime) {
	t.Helper()
	h, err := repo.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	rt, err := coord.Open(h.TakDir)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	return lifecycle.New(h, nil), rt
}

func TestWorkClaimsThenContinuesSameTask(t *testing.T) {
	eng, rt := newWorkEnv(t)
	ctx := context.Background()
	now := time.Now()

	_, err := eng.Create(ctx, task.Draft{Title: "do the thing", Kind: task.KindTask})
	require.NoError(t, err)

	resp, err := rt.Work(ctx, eng, "scout", coord.WorkOptions{}, now)
	require.NoError(t, err)
	require.Equal(t, coord.EventClaimed, resp.Event)
	require.NotNil(t, resp.Task)
	taskID := resp.Task.ID

	resp2, err := rt.Work(ctx, eng, "scout", coord.WorkOptions{}, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, coord.EventContinued, resp2.Event)
	assert.Equal(t, taskID, resp2.Task.ID)
}

func TestWorkReturnsNoWorkWhenNothingAvailable(t *testing.T) {
	eng, rt := newWorkEnv(t)
	ctx := context.Background()

	resp, err := rt.Work(ctx, eng, "scout", coord.WorkOptions{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, coord.EventNoWork, resp.Event)
	assert.False(t, resp.State.Active)
}

func TestWorkRespectsLimitReached(t *testing.T) {
	eng, rt := newWorkEnv(t)
	ctx := context.Background()
	now := time.Now()

	_, err := eng.Create(ctx, task.Draft{Title: "one", Kind: task.KindTask})
	require.NoError(t, err)

	zero := 0
	resp, err := rt.Work(ctx, eng, "scout", coord.WorkOptions{Limit: &zero}, now)
	require.NoError(t, err)
	assert.Equal(t, coord.EventLimitReached, resp.Event)
}

func TestWorkDoneFinishesCurrentTaskAndReleasesReservations(t *testing.T) {
	eng, rt := newWorkEnv(t)
	ctx := context.Background()
	now := time.Now()

	_, err := eng.Create(ctx, task.Draft{Title: "do the thing", Kind: task.KindTask})
	require.NoError(t, err)

	resp, err := rt.Work(ctx, eng, "scout", coord.WorkOptions{}, now)
	require.NoError(t, err)
	require.Equal(t, coord.EventClaimed, resp.Event)

	require.NoError(t, rt.Reserve("scout", []string{"internal/coord"}, "", nil, now))

	done, err := rt.Done(ctx, eng, "scout", false, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "finished", done.LifecycleAction)

	blockers, err := rt.Blockers("builder", "internal/coord", now)
	require.NoError(t, err)
	assert.Empty(t, blockers)
}

func TestWorkStopDeactivatesAndReleases(t *testing.T) {
	eng, rt := newWorkEnv(t)
	now := time.Now()

	require.NoError(t, rt.Reserve("scout", []string{"internal/coord"}, "", nil, now))
	require.NoError(t, rt.Stop("scout", now))

	status, err := rt.Status(eng, "scout")
	require.NoError(t, err)
	assert.False(t, status.State.Active)

	blockers, err := rt.Blockers("builder", "internal/coord", now)
	require.NoError(t, err)
	assert.Empty(t, blockers)
}
