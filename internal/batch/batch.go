// Package batch executes many independent operations with bounded
// concurrency, preserving input order in the output and propagating
// cancellation, using a semaphore plus sync.WaitGroup.
package batch

import (
	"context"
	"sync"
)

// Options controls batch execution.
type Options struct {
	// MaxConcurrency bounds how many items run at once. <=0 means
	// unbounded (every item gets its own goroutine).
	MaxConcurrency int
	// FailFast cancels all in-flight work on the first error. When
	// false, every item runs to completion and per-item errors are
	// reported alongside their results.
	FailFast bool
}

// Result pairs an item's output with any error it produced. Index
// preserves the item's position in the original input slice.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Run executes fn for every item in items with the concurrency and
// failure semantics in opts, returning one Result per input item in
// input order regardless of completion order, plus an aggregate error
// that is non-nil only when FailFast is set and at least one item
// failed. Cancellation (ctx.Err() or a fail-fast sibling's error)
// short-circuits items that haven't started yet; they come back with
// that error and a zero Value.
func Run[T any, R any](ctx context.Context, items []T, opts Options, fn func(context.Context, T) (R, error)) ([]Result[R], error) {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results, nil
	}

	concurrency := opts.MaxConcurrency
	if concurrency <= 0 || concurrency > len(items) {
		concurrency = len(items)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var firstErrOnce sync.Once
	var firstErr error
	recordFailure := func(err error) {
		if !opts.FailFast {
			return
		}
		firstErrOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case <-runCtx.Done():
			results[i] = Result[R]{Index: i, Err: runCtx.Err()}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()

			value, err := fn(runCtx, item)
			results[i] = Result[R]{Index: i, Value: value, Err: err}
			if err != nil {
				recordFailure(err)
			}
		}(i, item)
	}

	wg.Wait()

	return results, firstErr
}
