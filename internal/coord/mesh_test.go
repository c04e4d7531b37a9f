package coord_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tak/internal/coord"
)

func openRuntime(t *testing.T) *coord.Runtime {
	t.Helper()
	rt, err := coord.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func join(t *testing.T, rt *coord.Runtime, name, session string, now time.Time) coord.AgentRecord {
	t.Helper()
	rec, err := rt.Join(coord.JoinInput{Name: name, SessionID: session}, now)
	require.NoError(t, err)
	return rec
}

func TestJoinThenHeartbeat(t *testing.T) {
	rt := openRuntime(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := join(t, rt, "scout", "", now)
	assert.Equal(t, "scout", rec.Name)
	assert.Equal(t, coord.AgentActive, rec.Status)

	require.NoError(t, rt.Heartbeat("scout", now.Add(time.Minute)))
}

func TestJoinRejectsNameTakenByAnotherSession(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	join(t, rt, "scout", "session-a", now)

	_, err := rt.Join(coord.JoinInput{Name: "scout", SessionID: "session-b"}, now)
	assert.Error(t, err)
}

func TestLeaveThenRejoinSameNameSucceeds(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	join(t, rt, "scout", "session-a", now)
	require.NoError(t, rt.Leave("scout", now))

	_, err := rt.Join(coord.JoinInput{Name: "scout", SessionID: "session-b"}, now)
	assert.NoError(t, err)
}

func TestCleanupSweepsStaleAgents(t *testing.T) {
	rt := openRuntime(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	join(t, rt, "stale-one", "", base)
	join(t, rt, "fresh-one", "", base)

	later := base.Add(20 * time.Minute)
	require.NoError(t, rt.Heartbeat("fresh-one", later))

	swept, err := rt.Cleanup(later, coord.StaleHorizon)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale-one"}, swept)

	require.Error(t, rt.Heartbeat("stale-one", later))
}

func TestSendAndInboxAckIsIdempotent(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	id, err := rt.Send("scout", "builder", "ping", nil, now)
	require.NoError(t, err)
	assert.NotZero(t, id)

	msgs, err := rt.Inbox("builder", true, now)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ping", msgs[0].Text)

	msgs, err = rt.Inbox("builder", true, now)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestListAgentsFiltersInactive(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	join(t, rt, "scout", "", now)
	join(t, rt, "builder", "", now)
	require.NoError(t, rt.Leave("builder", now))

	active, err := rt.ListAgents(true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "scout", active[0].Name)

	all, err := rt.ListAgents(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
