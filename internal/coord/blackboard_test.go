package coord_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tak/internal/coord"
)

func alwaysExists(string) bool { return true }
func neverExists(string) bool  { return false }

func TestPostFreeTextNote(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	n, err := rt.Post(coord.PostInput{Author: "scout", Body: "heads up, touching the index schema"}, alwaysExists, now)
	require.NoError(t, err)
	assert.Equal(t, "heads up, touching the index schema", n.Body)
	assert.Empty(t, n.Warnings)
}

func TestPostTemplatedNoteWarnsOnMissingRequiredField(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	n, err := rt.Post(coord.PostInput{
		Author:   "scout",
		Template: coord.TemplateBlocker,
		Fields:   map[string]string{"summary": "TODO"},
	}, alwaysExists, now)
	require.NoError(t, err)
	assert.NotEmpty(t, n.Warnings)
}

func TestPostRejectsNoChangeSinceWithoutSinceNote(t *testing.T) {
	rt := openRuntime(t)
	_, err := rt.Post(coord.PostInput{Author: "scout", Body: "x", NoChangeSince: true}, alwaysExists, time.Now())
	assert.Error(t, err)
}

func TestPostRejectsReferenceToMissingTask(t *testing.T) {
	rt := openRuntime(t)
	_, err := rt.Post(coord.PostInput{Author: "scout", Body: "x", TaskIDs: []string{"deadbeef"}}, neverExists, time.Now())
	assert.Error(t, err)
}

func TestPostWarnsOnSensitiveValue(t *testing.T) {
	rt := openRuntime(t)
	n, err := rt.Post(coord.PostInput{Author: "scout", Body: "export API_KEY=sk-abcdef1234567890"}, alwaysExists, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, n.Warnings)
}

func TestCloseThenReopenNote(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	n, err := rt.Post(coord.PostInput{Author: "scout", Body: "x"}, alwaysExists, now)
	require.NoError(t, err)

	require.NoError(t, rt.Close(n.ID, "scout", "resolved", now))
	open, err := rt.List(true)
	require.NoError(t, err)
	for _, o := range open {
		assert.NotEqual(t, n.ID, o.ID)
	}

	require.NoError(t, rt.Reopen(n.ID, now))
	shown, err := rt.Show(n.ID)
	require.NoError(t, err)
	assert.False(t, shown.Closed)
	assert.Empty(t, shown.ClosedBy)
}

func TestCloseRecordsClosedByAndClosedAt(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	n, err := rt.Post(coord.PostInput{Author: "scout", Body: "x"}, alwaysExists, now)
	require.NoError(t, err)

	require.NoError(t, rt.Close(n.ID, "builder", "resolved", now))
	shown, err := rt.Show(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "builder", shown.ClosedBy)
	require.NotNil(t, shown.ClosedAt)
}

func TestPostWithTagsAndMultipleTaskIDs(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	n, err := rt.Post(coord.PostInput{
		Author:  "scout",
		Body:    "x",
		Tags:    []string{"infra", "urgent"},
		TaskIDs: []string{"task-a", "task-b"},
	}, alwaysExists, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"infra", "urgent"}, n.Tags)
	assert.Equal(t, []string{"task-a", "task-b"}, n.TaskIDs)

	shown, err := rt.Show(n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"infra", "urgent"}, shown.Tags)
	assert.Equal(t, []string{"task-a", "task-b"}, shown.TaskIDs)
}
