// Package async runs fire-and-forget background work safely.
//
// SafeGo starts a task that must not hold up the request that triggered it,
// such as pushing a new registration to the partner application:
//
//	async.SafeGo(r.Context(), 5*time.Second, "partner user sync", func(ctx context.Context) error {
//		return partner.SyncUser(ctx, name, email, password)
//	})
//
// The task keeps the request's context values (logger, request id, trace) but
// not its cancellation, runs under its own timeout, and has panics and errors
// logged instead of propagated.
//
// A Tracker does the same and lets graceful shutdown wait for in-flight tasks.
// Run executes the task inline when the caller must see it finish first:
//
//	var tasks async.Tracker
//	tasks.Run(ctx, timeout, "partner user sync", fn)
//	...
//	_ = tasks.Wait(shutdownCtx)
package async
