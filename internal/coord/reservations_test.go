package coord_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tak/internal/coord"
	"github.com/steveyegge/tak/internal/errs"
)

func TestReserveRejectsConflictingForeignPath(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	require.NoError(t, rt.Reserve("scout", []string{"internal/store"}, "refactor", nil, now))

	err := rt.Reserve("builder", []string{"internal/store/store.go"}, "", nil, now)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ReservationConflict))
}

func TestReserveAllowsNonOverlappingSiblingDirs(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	require.NoError(t, rt.Reserve("scout", []string{"internal/store"}, "", nil, now))
	assert.NoError(t, rt.Reserve("builder", []string{"internal/storex"}, "", nil, now))
}

func TestReleaseAllClearsEveryReservation(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	require.NoError(t, rt.Reserve("scout", []string{"internal/store", "internal/index"}, "", nil, now))
	require.NoError(t, rt.Release("scout", nil))

	blockers, err := rt.Blockers("builder", "internal/store", now)
	require.NoError(t, err)
	assert.Empty(t, blockers)
}

func TestNormalizePathRejectsEscapingRoot(t *testing.T) {
	_, err := coord.NormalizePath("../../etc/passwd")
	assert.Error(t, err)
}

func TestNormalizePathCollapsesDotDot(t *testing.T) {
	p, err := coord.NormalizePath("internal/store/../index/index.go")
	require.NoError(t, err)
	assert.Equal(t, "internal/index/index.go", p)
}

func TestReserveIgnoresReservationFromDepartedAgent(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	join(t, rt, "scout", "", now)
	require.NoError(t, rt.Reserve("scout", []string{"internal/store"}, "", nil, now))
	require.NoError(t, rt.Leave("scout", now))

	assert.NoError(t, rt.Reserve("builder", []string{"internal/store/store.go"}, "", nil, now))
}

func TestBlockersExcludesDepartedAgent(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	join(t, rt, "scout", "", now)
	require.NoError(t, rt.Reserve("scout", []string{"internal/store"}, "", nil, now))
	require.NoError(t, rt.Leave("scout", now))

	blockers, err := rt.Blockers("builder", "internal/store", now)
	require.NoError(t, err)
	assert.Empty(t, blockers)
}

func TestReserveIgnoresExpiredReservation(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()
	ttl := time.Minute

	require.NoError(t, rt.Reserve("scout", []string{"internal/store"}, "", &ttl, now))
	later := now.Add(2 * time.Minute)

	assert.NoError(t, rt.Reserve("builder", []string{"internal/store/store.go"}, "", nil, later))

	blockers, err := rt.Blockers("someone-else", "internal/store", later)
	require.NoError(t, err)
	assert.Empty(t, blockers)
}

func TestConcurrentReservesOnSamePathOnlyOneSucceeds(t *testing.T) {
	rt := openRuntime(t)
	now := time.Now()

	var wg sync.WaitGroup
	results := make([]error, 2)
	agents := []string{"scout", "builder"}
	for i := range agents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = rt.Reserve(agents[i], []string{"internal/coord"}, "", nil, now)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}
