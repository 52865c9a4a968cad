// Package background runs fire-and-forget side effects (title generation,
// persistence writes) outside the request that triggered them.
//
// Tasks never report back into the main flow. Their failures go to the log
// and to an optional error channel.
package background

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/codexa/internal/observability"
)

// TaskError is a failed background task.
type TaskError struct {
	Task string
	Err  error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("background task %s: %v", e.Task, e.Err)
}

func (e TaskError) Unwrap() error {
	return e.Err
}

type Runner struct {
	group  errgroup.Group
	errors chan TaskError
}

// NewRunner creates a runner whose error channel buffers up to buffer
// failures; later failures are only logged until the channel is drained.
func NewRunner(buffer int) *Runner {
	return &Runner{
		errors: make(chan TaskError, buffer),
	}
}

// Go starts fn detached from ctx's cancellation, keeping its values
// (request id). The task is never joined into the caller's result.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	taskCtx := context.WithoutCancel(ctx)
	log := observability.LoggerFromContext(ctx).With("task", name)

	r.group.Go(func() error {
		if err := fn(taskCtx); err != nil {
			log.Error("background task failed", "error", err)
			select {
			case r.errors <- TaskError{Task: name, Err: err}:
			default:
			}
		}
		return nil
	})
}

// Errors exposes failed tasks.
func (r *Runner) Errors() <-chan TaskError {
	return r.errors
}

// Wait blocks until every started task has finished. Used at shutdown and in
// tests.
func (r *Runner) Wait() {
	_ = r.group.Wait()
}
