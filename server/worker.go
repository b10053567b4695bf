package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/jasm/resolver"
)

// ErrStopped is returned by Do after Stop.
var ErrStopped = errors.New("server: worker stopped")

// request is a unit of work to be executed on the worker goroutine.
type request struct {
	fn   func(*resolver.Resolver) any
	done chan result
}

// result holds the return value of a worker call.
type result struct {
	value any
	err   error
}

// Worker serializes access to the shared resolver. Reloading the
// classpath replaces it, so every read goes through the worker goroutine;
// assemblies take a fork and run on their own goroutine.
type Worker struct {
	res      *resolver.Resolver
	requests chan request
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts its goroutine. A nil resolver
// means base types only.
func NewWorker(res *resolver.Resolver) *Worker {
	if res == nil {
		res = resolver.New()
	}
	w := &Worker{
		res:      res,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func(*resolver.Resolver) any) result {
	var r result
	func() {
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("%v", p)
			}
		}()
		r.value = fn(w.res)
	}()
	return r
}

// Do runs fn on the worker goroutine and blocks until it completes or
// ctx is done.
func (w *Worker) Do(ctx context.Context, fn func(*resolver.Resolver) any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.done:
		return r.value, r.err
	case <-w.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolver returns a private fork of the shared resolver.
func (w *Worker) Resolver(ctx context.Context) (*resolver.Resolver, error) {
	v, err := w.Do(ctx, func(res *resolver.Resolver) any {
		return res.Fork()
	})
	if err != nil {
		return nil, err
	}
	return v.(*resolver.Resolver), nil
}

// SetResolver replaces the shared resolver, for example after the
// classpath was re-indexed.
func (w *Worker) SetResolver(res *resolver.Resolver) error {
	_, err := w.Do(context.Background(), func(*resolver.Resolver) any {
		w.res = res
		return nil
	})
	return err
}

// Stop shuts down the worker goroutine. Later calls do nothing.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
