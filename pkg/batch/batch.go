// Package batch provides the bounded-concurrency batch controller used by
// every component that processes an unbounded number of items. Items are
// processed in sequential batches with a capped number of in-flight workers
// per batch and a recovery delay between batches, which keeps file and
// socket handle usage flat under large asset sets.
package batch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options controls batching behaviour.
type Options struct {
	// BatchSize is the number of items per sequential batch.
	BatchSize int
	// Concurrency caps in-flight items within one batch. Values above
	// BatchSize are clamped to BatchSize.
	Concurrency int
	// Delay is inserted between batches so OS handles can drain.
	Delay time.Duration
	// OnProgress, when set, is invoked once per completed batch with the
	// cumulative number of processed items and the total item count.
	OnProgress func(done, total int)
}

var errNoWork = errors.New("batch: work function is required")

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Concurrency > o.BatchSize {
		o.Concurrency = o.BatchSize
	}
	return o
}

// Split divides items into consecutive chunks of at most size elements.
// The returned slices share backing storage with items.
func Split[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Run processes every item exactly once. Batches run sequentially; within a
// batch up to Concurrency items run simultaneously. A non-nil error from fn
// aborts the run after the current batch drains, so work functions that
// should tolerate per-item failures must handle them internally and return
// nil. Run also stops between batches when ctx is cancelled.
func Run[T any](ctx context.Context, items []T, opts Options, fn func(context.Context, T) error) error {
	if fn == nil {
		return errNoWork
	}
	opts = opts.normalized()

	total := len(items)
	done := 0

	for i, chunk := range Split(items, opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && opts.Delay > 0 {
			select {
			case <-time.After(opts.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(opts.Concurrency)
		for _, item := range chunk {
			item := item
			group.Go(func() error {
				return fn(groupCtx, item)
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		done += len(chunk)
		if opts.OnProgress != nil {
			opts.OnProgress(done, total)
		}
	}
	return nil
}
