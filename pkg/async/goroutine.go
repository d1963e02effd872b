package async

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/ssobridge/pkg/observability"
)

// SafeGo runs fn in a goroutine with:
// - a context detached from the parent's cancellation but keeping its values
// - a timeout
// - panic recovery
// - error logging through the logger carried by parentCtx
//
// The task outlives the request that started it. Errors are logged and
// dropped.
//
// Example:
//
//	async.SafeGo(r.Context(), 5*time.Second, "partner user sync", func(ctx context.Context) error {
//	    return partner.SyncUser(ctx, name, email, password)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go run(parentCtx, timeout, taskName, fn)
}

func run(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
	defer cancel()

	logger := observability.FromContext(parentCtx).WithField("task", taskName)
	defer observability.RecoverPanic(logger, taskName)

	if err := fn(ctx); err != nil {
		logger.WithError(err).Warn("task failed")
	}
}

// Tracker is SafeGo with bookkeeping, so shutdown can wait for in-flight
// tasks. The zero value is ready to use.
type Tracker struct {
	wg sync.WaitGroup
}

// Go starts fn like SafeGo and tracks it until it returns
func (t *Tracker) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		run(parentCtx, timeout, taskName, fn)
	}()
}

// Run runs fn inline under the same protections as Go and tracks it until
// it returns. The caller waits at most timeout; a failure is logged, never
// returned.
func (t *Tracker) Run(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	t.wg.Add(1)
	defer t.wg.Done()
	run(parentCtx, timeout, taskName, fn)
}

// Wait blocks until all tracked tasks finished or ctx is done
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
