package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
)

var (
	// ErrStopped is returned for invocations admitted after shutdown began.
	ErrStopped = errors.New("runtime stopped")
	// ErrAborted wraps a panic raised by an entry point or continuation.
	ErrAborted = errors.New("invocation aborted")
)

// Entry is a top-level invocation. It runs on the exclusive loop and may
// return a promise to be driven after it returns.
type Entry func(ctx context.Context) (*Promise, error)

// Runtime serializes every entry point and continuation onto a single loop.
// Collaborator calls run concurrently off the loop, one chain step at a time.
//
// Once the context given to Run is done no new entry is admitted, but the loop
// keeps serving continuations until every issued chain has finished. Calls never
// see that context; only the call timeout ends them.
type Runtime struct {
	logger      log.Logger
	callTimeout time.Duration

	entries chan func()
	jobs    chan func()
	closing chan struct{}
	stopped chan struct{}
	start   sync.Once

	wg sync.WaitGroup
}

func NewRuntime(logger log.Logger, callTimeout time.Duration) *Runtime {
	return &Runtime{
		logger:      logger.With("module", "scheduler"),
		callTimeout: callTimeout,
		entries:     make(chan func()),
		jobs:        make(chan func()),
		closing:     make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Run processes exclusive jobs until ctx is done and every issued chain has
// drained. Only the first call has any effect.
func (r *Runtime) Run(ctx context.Context) {
	r.start.Do(func() {
		defer close(r.stopped)

	serve:
		for {
			select {
			case <-ctx.Done():
				break serve
			case job := <-r.entries:
				job()
			case job := <-r.jobs:
				job()
			}
		}

		// every wg.Add happened on this loop, so no chain can be added from here on
		close(r.closing)
		drained := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(drained)
		}()
		r.logger.Info("Draining issued chains")
		for {
			select {
			case <-drained:
				r.logger.Info("Exclusive loop stopped")
				return
			case job := <-r.jobs:
				job()
			}
		}
	})
}

// Wait blocks until every chain issued so far has finished.
func (r *Runtime) Wait() {
	r.wg.Wait()
}

// Stopped is closed once Run has returned.
func (r *Runtime) Stopped() <-chan struct{} {
	return r.stopped
}

// Invoke runs entry with exclusive state access. Rejections are returned
// directly. If entry issues a promise, the returned receipt completes when the
// whole chain has run.
func (r *Runtime) Invoke(ctx context.Context, name string, entry Entry) (*Receipt, error) {
	var (
		p   *Promise
		err error
	)
	done := make(chan struct{})
	job := func() {
		defer close(done)
		p, err = guard(name, func() (*Promise, error) { return entry(ctx) })
		if err == nil && p.Len() > 0 {
			r.wg.Add(1)
		}
	}

	select {
	case r.entries <- job:
	case <-r.closing:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	<-done
	if err != nil {
		return nil, err
	}

	rc := newReceipt()
	if p.Len() == 0 {
		rc.finish(Success(nil), nil)
		return rc, nil
	}
	go r.drive(name, p, rc)
	return rc, nil
}

func (r *Runtime) drive(name string, p *Promise, rc *Receipt) {
	defer r.wg.Done()

	steps := append([]step(nil), p.steps...)
	var prev *Result

	for len(steps) > 0 {
		s := steps[0]
		steps = steps[1:]

		if s.call != nil {
			res := r.call(s, prev)
			prev = &res
			continue
		}

		var results []Result
		if prev != nil {
			results = []Result{*prev}
		}

		var (
			next *Promise
			err  error
		)
		r.exclusive(func(ctx context.Context) {
			next, err = guard(s.name, func() (*Promise, error) { return s.cont(ctx, results) })
		})
		if err != nil {
			r.logger.Error("Continuation aborted", "chain", name, "step", s.name, "err", err)
			rc.finish(Failure(err), err)
			return
		}

		if next.Len() > 0 {
			// a follow-up promise runs before the rest of the chain and starts fresh
			steps = append(append([]step(nil), next.steps...), steps...)
			prev = nil
			continue
		}
		res := Success(nil)
		prev = &res
	}

	if prev == nil {
		rc.finish(Success(nil), nil)
		return
	}
	rc.finish(*prev, nil)
}

// call runs one collaborator call. An expired call is not awaited; its outcome
// is reported as unknown rather than failed.
func (r *Runtime) call(s step, prev *Result) Result {
	if prev != nil && prev.Outcome != Succeeded {
		r.logger.Debug("Skipping call after unsuccessful step", "step", s.name, "outcome", prev.Outcome)
		skipped := fmt.Errorf("%w: %w", ErrPredecessorFailed, prev.Err)
		if prev.Outcome == Expired {
			return Expiry(skipped)
		}
		return Failure(skipped)
	}

	ctx := context.Background()
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	type outcome struct {
		value any
		err   error
	}
	out := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				out <- outcome{err: fmt.Errorf("%w: %v", ErrAborted, rec)}
			}
		}()
		v, err := s.call(ctx)
		out <- outcome{value: v, err: err}
	}()

	select {
	case o := <-out:
		if o.err != nil {
			r.logger.Debug("Call failed", "step", s.name, "err", o.err)
			return Failure(fmt.Errorf("%s: %w", s.name, o.err))
		}
		return Success(o.value)
	case <-ctx.Done():
		r.logger.Error("Call expired, outcome unknown", "step", s.name, "timeout", r.callTimeout)
		return Expiry(fmt.Errorf("%s: %w: %w", s.name, ErrCallExpired, ctx.Err()))
	}
}

// exclusive runs a continuation on the loop and waits for it to return. The
// loop serves continuations until every chain has drained.
func (r *Runtime) exclusive(fn func(ctx context.Context)) {
	done := make(chan struct{})
	r.jobs <- func() {
		defer close(done)
		fn(context.Background())
	}
	<-done
}

func guard(name string, fn func() (*Promise, error)) (p *Promise, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, fmt.Errorf("%w: %s: %v", ErrAborted, name, rec)
		}
	}()
	return fn()
}

// Receipt tracks the completion of an issued chain.
type Receipt struct {
	done   chan struct{}
	result Result
	err    error
}

func newReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

func (rc *Receipt) finish(result Result, err error) {
	rc.result, rc.err = result, err
	close(rc.done)
}

// Done is closed when the chain has finished.
func (rc *Receipt) Done() <-chan struct{} {
	return rc.done
}

// Wait blocks until the chain finishes. It returns the result of the last step
// and the error that aborted the chain, if any.
func (rc *Receipt) Wait(ctx context.Context) (Result, error) {
	select {
	case <-rc.done:
		return rc.result, rc.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
