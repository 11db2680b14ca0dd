package scheduler

import (
	"context"
	"errors"
	"fmt"
)

// Outcome is how a dispatched step completed.
type Outcome int

const (
	Unresolved Outcome = iota
	Succeeded
	Failed
	// Expired means the call outlived its deadline. It may still have
	// committed, so the step neither succeeded nor failed for certain.
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Expired:
		return "expired"
	default:
		return "unresolved"
	}
}

var (
	// ErrResultCount is returned when a continuation does not receive exactly one result.
	ErrResultCount = errors.New("continuation expects exactly one predecessor result")
	// ErrUnresolved is returned when a predecessor result was never resolved.
	ErrUnresolved = errors.New("predecessor result is unresolved")
	// ErrPredecessorFailed is the failure reported for a call skipped because the step before it failed.
	ErrPredecessorFailed = errors.New("skipped: predecessor step failed")
	// ErrCallExpired marks a call whose outcome is unknown because it outlived its deadline.
	ErrCallExpired = errors.New("call expired, outcome unknown")
)

// Result is the completion of one step.
type Result struct {
	Outcome Outcome
	Value   any
	Err     error
}

func Success(value any) Result {
	return Result{Outcome: Succeeded, Value: value}
}

func Failure(err error) Result {
	return Result{Outcome: Failed, Err: err}
}

func Expiry(err error) Result {
	return Result{Outcome: Expired, Err: err}
}

// CallFunc performs a collaborator call. It never runs on the exclusive loop.
type CallFunc func(ctx context.Context) (any, error)

// Continuation runs on the exclusive loop with the results of the step before it.
// It may return a follow-up promise that is run before the rest of the chain.
// A non-nil error aborts the chain.
type Continuation func(ctx context.Context, results []Result) (*Promise, error)

type step struct {
	name string
	call CallFunc
	cont Continuation
}

// Promise is an ordered chain of collaborator calls and continuations.
type Promise struct {
	steps []step
}

// Call starts a chain with a collaborator call.
func Call(name string, fn CallFunc) *Promise {
	return (&Promise{}).Then(name, fn)
}

// Then appends a collaborator call. The call is skipped if the step before it
// did not succeed. A skip after an expired step is reported expired, otherwise failed.
func (p *Promise) Then(name string, fn CallFunc) *Promise {
	p.steps = append(p.steps, step{name: name, call: fn})
	return p
}

// ThenContinue appends a continuation.
func (p *Promise) ThenContinue(name string, fn Continuation) *Promise {
	p.steps = append(p.steps, step{name: name, cont: fn})
	return p
}

// Len is the number of steps in the chain.
func (p *Promise) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

// Single returns the one result a continuation expects, failing on any other count
// or on an unresolved result.
func Single(results []Result) (Result, error) {
	if len(results) != 1 {
		return Result{}, fmt.Errorf("%w: got %d", ErrResultCount, len(results))
	}
	if results[0].Outcome == Unresolved {
		return Result{}, ErrUnresolved
	}
	return results[0], nil
}
