package storkit

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Batch runs many independent operations against one Operator with bounded
// concurrency. Submitting queues the operation and returns immediately;
// nothing is guaranteed complete until Wait returns.
//
// Failures do not stop the batch. Every queued operation runs (unless the
// context is canceled) and Wait reports all failures together as a
// *BatchError.
//
// A Batch is single-use: after Wait, submit methods fail with Closed.
type Batch struct {
	op  *Operator
	ctx context.Context
	g   *errgroup.Group

	mu     sync.Mutex
	errs   []error
	closed bool
}

// Batch creates a batch executor over the operator. If concurrency is not
// positive the number of CPUs is used; either way the backend's declared
// MaxBatchSize caps it.
func (o *Operator) Batch(ctx context.Context, concurrency int) *Batch {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if limit, ok := o.cap.Limit(OpBatch); ok && int64(concurrency) > limit {
		concurrency = int(limit)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	return &Batch{op: o, ctx: ctx, g: g}
}

// submit queues one operation. The worker records the failure instead of
// returning it so one bad path does not cancel the rest of the batch.
func (b *Batch) submit(op Op, path string, fn func(context.Context) error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return NewError(KindClosed, op, path, "batch already finished")
	}
	b.mu.Unlock()

	b.g.Go(func() error {
		if err := b.ctx.Err(); err != nil {
			b.record(WrapError(KindUnexpected, op, path, err))
			return nil
		}
		if err := fn(b.ctx); err != nil {
			b.record(err)
		}
		return nil
	})
	return nil
}

func (b *Batch) record(err error) {
	b.mu.Lock()
	b.errs = append(b.errs, err)
	b.mu.Unlock()
}

// Write queues an upload of data to path.
func (b *Batch) Write(path string, data []byte, opts ...WriteOption) error {
	return b.submit(OpWrite, path, func(ctx context.Context) error {
		_, err := b.op.Write(ctx, path, data, opts...)
		return err
	})
}

// Delete queues a delete of path.
func (b *Batch) Delete(path string, opts ...DeleteOption) error {
	return b.submit(OpDelete, path, func(ctx context.Context) error {
		return b.op.Delete(ctx, path, opts...)
	})
}

// Copy queues a copy from one path to another.
func (b *Batch) Copy(from, to string) error {
	return b.submit(OpCopy, from, func(ctx context.Context) error {
		return b.op.Copy(ctx, from, to)
	})
}

// CreateDir queues a directory creation.
func (b *Batch) CreateDir(path string) error {
	return b.submit(OpCreateDir, path, func(ctx context.Context) error {
		return b.op.CreateDir(ctx, path)
	})
}

// Stat queues a metadata fetch; fn receives the result when it completes.
// fn runs on a worker goroutine and must be safe for that.
func (b *Batch) Stat(path string, fn func(Metadata, error)) error {
	return b.submit(OpStat, path, func(ctx context.Context) error {
		meta, err := b.op.Stat(ctx, path)
		fn(meta, err)
		return err
	})
}

// Wait blocks until every queued operation has completed and returns nil
// or a *BatchError aggregating the failures. The batch accepts no further
// submissions afterwards.
func (b *Batch) Wait() error {
	b.g.Wait() // workers never return errors, failures land in b.errs

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if len(b.errs) == 0 {
		return nil
	}
	return &BatchError{Errors: b.errs}
}

// BatchError aggregates the failures of a batch. Each element is the
// normalized *Error of one failed operation.
type BatchError struct {
	Errors []error
}

// Error implements error.
func (e *BatchError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(e.Errors)))
	sb.WriteString(" operations failed: ")
	for i, err := range e.Errors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
		if i == 2 && len(e.Errors) > 3 {
			sb.WriteString("; ...")
			break
		}
	}
	return sb.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return e.Errors
}
