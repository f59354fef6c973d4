// Package mux merges several blocking message sources into one serialized
// dispatch stream.
//
// Every source runs in its own goroutine. Whenever at least one of them has
// produced a value, the slots are scanned in list order and each finished
// slot is dispatched and then restarted, so two values ready at the same
// time are always dispatched lower index first and dispatch never runs
// concurrently with itself.
package mux

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStop is returned by a dispatch callback to end Run cleanly.
	ErrStop = errors.New("mux: stop")
	// ErrNoSources is returned by Run when it is given nothing to listen to.
	ErrNoSources = errors.New("mux: no sources")
)

// Source produces the next value. It must return once ctx is cancelled.
type Source[T any] func(ctx context.Context) (T, error)

// Dispatch consumes one value.
type Dispatch[T any] func(ctx context.Context, v T) error

type task[T any] struct {
	done   chan struct{}
	result T
	err    error
}

type runner[T any] struct {
	sources  []Source[T]
	dispatch Dispatch[T]

	ctx    context.Context
	notify chan struct{}
	tasks  []*task[T]
	wg     sync.WaitGroup
}

// Run listens to every source until dispatch returns ErrStop (Run returns
// nil), a source or dispatch fails (that error is returned), or ctx is done.
// Outstanding sources are cancelled and awaited before Run returns.
func Run[T any](ctx context.Context, sources []Source[T], dispatch Dispatch[T]) (err error) {
	if len(sources) == 0 {
		return ErrNoSources
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &runner[T]{
		sources:  sources,
		dispatch: dispatch,
		ctx:      runCtx,
		// At most one completion per slot is ever unconsumed, so senders never block.
		notify: make(chan struct{}, len(sources)),
		tasks:  make([]*task[T], len(sources)),
	}
	for i := range sources {
		r.spawn(i)
	}

	var failed *task[T]
	defer func() {
		cancel()
		r.wg.Wait()
		if cleanupErr := r.cleanupErrors(failed); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.notify:
		}

		for i, t := range r.tasks {
			select {
			case <-t.done:
			default:
				continue
			}
			if t.err != nil {
				failed = t
				return t.err
			}
			if err := dispatch(ctx, t.result); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
			r.spawn(i)
		}
	}
}

func (r *runner[T]) spawn(i int) {
	t := &task[T]{done: make(chan struct{})}
	r.tasks[i] = t
	source := r.sources[i]

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t.result, t.err = source(r.ctx)
		close(t.done)
		select {
		case r.notify <- struct{}{}:
		case <-r.ctx.Done():
		}
	}()
}

// cleanupErrors collects what the cancelled sources returned, ignoring the
// cancellation they were asked for and the failure Run already reports.
func (r *runner[T]) cleanupErrors(failed *task[T]) error {
	var errs []error
	for _, t := range r.tasks {
		if t == failed || t.err == nil {
			continue
		}
		if errors.Is(t.err, context.Canceled) || errors.Is(t.err, context.DeadlineExceeded) {
			continue
		}
		errs = append(errs, t.err)
	}
	return errors.Join(errs...)
}
