// Package race implements the Timed Race Runner: it dispatches a set of
// attempts concurrently and resolves to the first usable result or to a
// global timeout, guaranteeing that no attempt outlives the race.
package race

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Attempt is one candidate request. It must honor ctx cancellation so
// that its underlying socket/connection is released the instant the race
// is decided, win or lose. usable reports whether result is a real reply;
// an attempt that errors or times out returns usable=false, never an
// error — individual failures must never fail the race early.
type Attempt[T any] func(ctx context.Context) (result T, usable bool)

// Run dispatches every attempt in attempts concurrently under a shared
// per-attempt timeout. It returns the first result for which usable is
// true, and true. If every attempt finishes unusable, or the timeout
// elapses first, it returns the zero value and false. Cancelling the
// shared context (on first success, or on timeout) is what causes
// still-running attempts to give up their sockets; callers' Attempt
// implementations are expected to select on ctx.Done().
func Run[T any](parent context.Context, timeout time.Duration, attempts []Attempt[T]) (T, bool) {
	var zero T
	if len(attempts) == 0 {
		return zero, false
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type outcome struct {
		result T
		usable bool
	}
	results := make(chan outcome, len(attempts))

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range attempts {
		a := a
		g.Go(func() error {
			r, ok := a(gctx)
			select {
			case results <- outcome{r, ok}:
			case <-ctx.Done():
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	remaining := len(attempts)
	for remaining > 0 {
		select {
		case o := <-results:
			remaining--
			if o.usable {
				cancel() // first usable reply wins; release every other socket
				<-done
				return o.result, true
			}
		case <-ctx.Done():
			<-done
			return zero, false
		}
	}
	return zero, false
}
