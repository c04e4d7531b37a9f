package coord_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tak/internal/coord"
	"github.com/steveyegge/tak/internal/task"
)

func verifiableTask(cmds ...string) task.Task {
	return task.Task{
		ID: "deadbeefdeadbeef", Title: "t", Kind: task.KindTask, Status: task.StatusPending,
		Contract: &task.Contract{Verification: cmds},
	}
}

func TestVerifyLocalModeRunsCommandsIgnoringReservations(t *testing.T) {
	rt := openRuntime(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, rt.Reserve("builder", []string{"internal/coord"}, "", nil, now))

	result, err := rt.Verify(ctx, "scout", verifiableTask("true"), nil, coord.VerifyLocal, now)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.True(t, result.Passed)
}

func TestVerifyLocalModeReportsCommandFailure(t *testing.T) {
	rt := openRuntime(t)
	ctx := context.Background()

	_, err := rt.Verify(ctx, "scout", verifiableTask("false"), nil, coord.VerifyLocal, time.Now())
	assert.Error(t, err)
}

func TestVerifyIsolatedModeAllowsWhenNoScopeAndNoForeign(t *testing.T) {
	rt := openRuntime(t)
	ctx := context.Background()

	result, err := rt.Verify(ctx, "scout", verifiableTask("true"), nil, coord.VerifyIsolated, time.Now())
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestVerifyIsolatedModeBlocksWhenNoScopeButForeignExists(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()
	ctx := context.Background()

	require.NoError(t, rt.Reserve("builder", []string{"internal/coord"}, "", nil, now))

	result, err := rt.Verify(ctx, "scout", verifiableTask("true"), nil, coord.VerifyIsolated, now)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.NotEmpty(t, result.Guidance)
}

func TestVerifyIsolatedModeBlocksOnOverlap(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()
	ctx := context.Background()

	require.NoError(t, rt.Reserve("builder", []string{"internal/coord"}, "", nil, now))

	result, err := rt.Verify(ctx, "scout", verifiableTask("true"), []string{"internal/coord/worklog.go"}, coord.VerifyIsolated, now)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	require.Len(t, result.Blocked, 1)
	assert.Equal(t, "builder", result.Blocked[0].Owner)
}

func TestVerifyIsolatedModeAllowsDisjointScope(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()
	ctx := context.Background()

	require.NoError(t, rt.Reserve("builder", []string{"internal/coord"}, "", nil, now))

	result, err := rt.Verify(ctx, "scout", verifiableTask("true"), []string{"internal/index"}, coord.VerifyIsolated, now)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
