package lifecycle

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/tak/internal/errs"
	"github.com/steveyegge/tak/internal/lockfile"
	"github.com/steveyegge/tak/internal/task"
)

// ErrNoWork is returned by Claim when no task currently matches the filter
// (spec.md §4.5.3 step 2), distinguished from the ClaimBusy lock-exhaustion
// failure. It is an errs.Error with code NotFound, so errors.Is against it
// matches any NotFound errs.Error.
var ErrNoWork = errs.New(errs.NotFound, "no available task matches the claim filter")

// claimBackoff bounds claim.lock acquisition retries (spec.md §4.5.3: "retry
// with exponential backoff up to a bounded number of attempts; fail with
// ClaimBusy on exhaustion"), replacing a hand-rolled retry loop with
// cenkalti/backoff/v4 per SPEC_FULL.md's Domain Stack wiring.
func claimBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return b
}

// Claim implements spec.md §4.5.3's atomic claim protocol: acquire
// claim.lock with bounded exponential backoff, compute available(filters)
// under the lock, pick the first candidate, execute the start contract, and
// release.
func (e *Engine) Claim(ctx context.Context, assignee string, filter task.Filter) (Result, error) {
	lockPath := filepath.Join(e.Handle.TakDir, "claim.lock")
	lock, err := lockfile.Open(lockPath)
	if err != nil {
		return Result{}, errs.Wrap(errs.IOError, err, "open claim lock").WithPath(lockPath)
	}
	defer lock.Release()

	acquireErr := backoff.Retry(func() error {
		err := lock.TryAcquire()
		if err != nil && lockfile.IsLocked(err) {
			return err // retryable
		}
		return backoff.Permanent(err) // nil or a non-retryable error
	}, claimBackoff())
	if acquireErr != nil {
		return Result{}, errs.Wrap(errs.ClaimBusy, acquireErr, "acquire claim lock")
	}

	candidates, err := e.Handle.Index.Available(ctx, filter)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{}, ErrNoWork
	}

	return e.startAs(ctx, candidates[0], assignee, "claimed")
}
