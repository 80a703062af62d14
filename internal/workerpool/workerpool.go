// Package workerpool runs a function over a batch of inputs with bounded
// parallelism and an explicit error policy.
package workerpool

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dialog-insights-go/internal/metrics"
)

// DefaultSize is the number of concurrent slots used when Options.Size is unset.
const DefaultSize = 4

// Policy decides what a failed task does to the rest of the batch.
type Policy int

const (
	// FailFast stops the batch on the first error: the shared context is
	// cancelled, tasks that have not started are skipped and Map returns the error.
	FailFast Policy = iota
	// Isolate records the error and lets every other task run to completion.
	Isolate
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Isolate:
		return "isolate"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

type Options struct {
	Size    int
	Policy  Policy
	Log     *logrus.Entry  // optional, per-task progress at debug level
	Metrics *metrics.Stage // optional
}

// Failure is an isolated task error.
type Failure struct {
	Index int
	Err   error
}

// Results holds successful values in submission order (failed or skipped
// inputs are omitted) and the isolated failures in completion order.
type Results[T any] struct {
	Values   []T
	Failures []Failure
	Skipped  int
}

// TaskError is returned by Map under FailFast.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

type outcome[T any] struct {
	index   int
	value   T
	err     error
	skipped bool
}

// Map calls fn once for every input, at most opts.Size at a time. Every input
// is submitted up front. Workers only send outcomes; the calling goroutine
// drains them one at a time in completion order, so nothing else is shared.
func Map[In, Out any](ctx context.Context, inputs []In, opts Options, fn func(context.Context, In) (Out, error)) (Results[Out], error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(size)

	done := make(chan outcome[Out], len(inputs))
	var waitErr error

	go func() {
		for i, in := range inputs {
			g.Go(func() error {
				if gctx.Err() != nil {
					done <- outcome[Out]{index: i, skipped: true}
					return nil
				}
				start := time.Now()
				v, err := fn(gctx, in)
				opts.Metrics.ObserveTask(time.Since(start), err)
				done <- outcome[Out]{index: i, value: v, err: err}
				if err != nil && opts.Policy == FailFast {
					return &TaskError{Index: i, Err: err}
				}
				return nil
			})
		}
		waitErr = g.Wait()
		close(done)
	}()

	values := make([]Out, len(inputs))
	ok := make([]bool, len(inputs))
	res := Results[Out]{Values: make([]Out, 0, len(inputs))}

	finished := 0
	for o := range done {
		finished++
		switch {
		case o.skipped:
			res.Skipped++
			opts.Metrics.ObserveSkipped()
		case o.err != nil:
			res.Failures = append(res.Failures, Failure{Index: o.index, Err: o.err})
		default:
			values[o.index] = o.value
			ok[o.index] = true
		}
		if opts.Log != nil {
			opts.Log.WithFields(logrus.Fields{
				"index":    o.index,
				"finished": finished,
				"total":    len(inputs),
				"failed":   o.err != nil,
				"skipped":  o.skipped,
			}).Debug("task finished")
		}
	}

	for i, v := range values {
		if ok[i] {
			res.Values = append(res.Values, v)
		}
	}

	if waitErr != nil {
		return res, waitErr
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}
