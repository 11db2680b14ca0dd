package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/swap-bridge/scheduler"
)

func newRuntime(t *testing.T, timeout time.Duration) *scheduler.Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rt := scheduler.NewRuntime(log.NewLogger(os.Stdout), timeout)
	go rt.Run(ctx)
	return rt
}

func value(v any) scheduler.CallFunc {
	return func(context.Context) (any, error) { return v, nil }
}

func fail(msg string) scheduler.CallFunc {
	return func(context.Context) (any, error) { return nil, errors.New(msg) }
}

func TestChainDeliversSingleResult(t *testing.T) {
	rt := newRuntime(t, time.Second)
	ctx := context.Background()

	var got []scheduler.Result
	rc, err := rt.Invoke(ctx, "test", func(context.Context) (*scheduler.Promise, error) {
		return scheduler.Call("first", value(1)).
			Then("second", value(2)).
			ThenContinue("done", func(_ context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
				got = results
				return nil, nil
			}), nil
	})
	require.NoError(t, err)

	res, err := rc.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, scheduler.Succeeded, res.Outcome)

	require.Len(t, got, 1)
	require.Equal(t, scheduler.Succeeded, got[0].Outcome)
	require.Equal(t, 2, got[0].Value)
}

func TestFailedStepSkipsLaterCalls(t *testing.T) {
	rt := newRuntime(t, time.Second)
	ctx := context.Background()

	called := false
	var got scheduler.Result
	rc, err := rt.Invoke(ctx, "test", func(context.Context) (*scheduler.Promise, error) {
		return scheduler.Call("first", fail("boom")).
			Then("second", func(context.Context) (any, error) {
				called = true
				return nil, nil
			}).
			ThenContinue("done", func(_ context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
				r, err := scheduler.Single(results)
				got = r
				return nil, err
			}), nil
	})
	require.NoError(t, err)
	_, err = rc.Wait(ctx)
	require.NoError(t, err)

	require.False(t, called)
	require.Equal(t, scheduler.Failed, got.Outcome)
	require.ErrorIs(t, got.Err, scheduler.ErrPredecessorFailed)
}

func TestContinuationFollowUpRunsFirst(t *testing.T) {
	rt := newRuntime(t, time.Second)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) scheduler.CallFunc {
		return func(context.Context) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return name, nil
		}
	}

	rc, err := rt.Invoke(ctx, "test", func(context.Context) (*scheduler.Promise, error) {
		return scheduler.Call("a", record("a")).
			ThenContinue("branch", func(context.Context, []scheduler.Result) (*scheduler.Promise, error) {
				return scheduler.Call("b", record("b")).Then("c", record("c")), nil
			}).
			ThenContinue("tail", func(_ context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
				r, err := scheduler.Single(results)
				if err != nil {
					return nil, err
				}
				if r.Value != "c" {
					return nil, fmt.Errorf("unexpected predecessor %v", r.Value)
				}
				return scheduler.Call("d", record("d")), nil
			}), nil
	})
	require.NoError(t, err)

	res, err := rc.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "d", res.Value)
	require.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestEntryRejectionIsReturned(t *testing.T) {
	rt := newRuntime(t, time.Second)
	rejected := errors.New("rejected")

	rc, err := rt.Invoke(context.Background(), "test", func(context.Context) (*scheduler.Promise, error) {
		return nil, rejected
	})
	require.ErrorIs(t, err, rejected)
	require.Nil(t, rc)
}

func TestEntryWithoutPromiseCompletesImmediately(t *testing.T) {
	rt := newRuntime(t, time.Second)

	rc, err := rt.Invoke(context.Background(), "test", func(context.Context) (*scheduler.Promise, error) {
		return nil, nil
	})
	require.NoError(t, err)

	select {
	case <-rc.Done():
	default:
		t.Fatal("receipt should be complete")
	}
}

func TestContinuationPanicAbortsChain(t *testing.T) {
	rt := newRuntime(t, time.Second)
	ctx := context.Background()

	rc, err := rt.Invoke(ctx, "test", func(context.Context) (*scheduler.Promise, error) {
		return scheduler.Call("a", value(1)).
			ThenContinue("explode", func(context.Context, []scheduler.Result) (*scheduler.Promise, error) {
				panic("invariant")
			}), nil
	})
	require.NoError(t, err)

	res, err := rc.Wait(ctx)
	require.ErrorIs(t, err, scheduler.ErrAborted)
	require.Equal(t, scheduler.Failed, res.Outcome)

	// the loop keeps serving invocations
	_, err = rt.Invoke(ctx, "next", func(context.Context) (*scheduler.Promise, error) { return nil, nil })
	require.NoError(t, err)
}

func TestCallExpiry(t *testing.T) {
	rt := newRuntime(t, 20*time.Millisecond)
	ctx := context.Background()

	var got scheduler.Result
	rc, err := rt.Invoke(ctx, "test", func(context.Context) (*scheduler.Promise, error) {
		return scheduler.Call("slow", func(ctx context.Context) (any, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return "late", nil
		}).ThenContinue("done", func(_ context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
			r, err := scheduler.Single(results)
			got = r
			return nil, err
		}), nil
	})
	require.NoError(t, err)
	_, err = rc.Wait(ctx)
	require.NoError(t, err)

	require.Equal(t, scheduler.Expired, got.Outcome)
	require.ErrorIs(t, got.Err, scheduler.ErrCallExpired)
	require.ErrorIs(t, got.Err, context.DeadlineExceeded)
}

func TestLateCallIsNotReportedFailed(t *testing.T) {
	rt := newRuntime(t, 20*time.Millisecond)
	ctx := context.Background()

	// the call ignores its deadline and commits after it
	committed := make(chan struct{})
	skipped := true
	var got scheduler.Result
	rc, err := rt.Invoke(ctx, "test", func(context.Context) (*scheduler.Promise, error) {
		return scheduler.Call("late", func(context.Context) (any, error) {
			time.Sleep(60 * time.Millisecond)
			close(committed)
			return nil, nil
		}).Then("next", func(context.Context) (any, error) {
			skipped = false
			return nil, nil
		}).ThenContinue("done", func(_ context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
			r, err := scheduler.Single(results)
			got = r
			return nil, err
		}), nil
	})
	require.NoError(t, err)
	_, err = rc.Wait(ctx)
	require.NoError(t, err)

	require.True(t, skipped)
	require.Equal(t, scheduler.Expired, got.Outcome)
	require.ErrorIs(t, got.Err, scheduler.ErrPredecessorFailed)
	require.ErrorIs(t, got.Err, scheduler.ErrCallExpired)
	<-committed
}

func TestContinuationsAreExclusive(t *testing.T) {
	rt := newRuntime(t, time.Second)
	ctx := context.Background()

	// unsynchronized counter; only safe because continuations never overlap
	counter := 0
	const chains = 50

	for i := 0; i < chains; i++ {
		_, err := rt.Invoke(ctx, "inc", func(context.Context) (*scheduler.Promise, error) {
			return scheduler.Call("noop", value(nil)).
				ThenContinue("inc", func(context.Context, []scheduler.Result) (*scheduler.Promise, error) {
					c := counter
					time.Sleep(time.Microsecond)
					counter = c + 1
					return nil, nil
				}), nil
		})
		require.NoError(t, err)
	}
	rt.Wait()
	require.Equal(t, chains, counter)
}

func TestSingle(t *testing.T) {
	_, err := scheduler.Single(nil)
	require.ErrorIs(t, err, scheduler.ErrResultCount)

	_, err = scheduler.Single([]scheduler.Result{scheduler.Success(1), scheduler.Success(2)})
	require.ErrorIs(t, err, scheduler.ErrResultCount)

	_, err = scheduler.Single([]scheduler.Result{{}})
	require.ErrorIs(t, err, scheduler.ErrUnresolved)

	r, err := scheduler.Single([]scheduler.Result{scheduler.Failure(errors.New("x"))})
	require.NoError(t, err)
	require.Equal(t, scheduler.Failed, r.Outcome)
}

func TestStoppedRuntimeRejects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rt := scheduler.NewRuntime(log.NewNopLogger(), time.Second)
	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, err := rt.Invoke(context.Background(), "late", func(context.Context) (*scheduler.Promise, error) { return nil, nil })
	require.ErrorIs(t, err, scheduler.ErrStopped)
}

func TestShutdownDrainsIssuedChains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rt := scheduler.NewRuntime(log.NewNopLogger(), time.Second)
	go rt.Run(ctx)

	gate := make(chan struct{})
	var callErr error
	followed := false
	rc, err := rt.Invoke(context.Background(), "test", func(context.Context) (*scheduler.Promise, error) {
		return scheduler.Call("gated", func(ctx context.Context) (any, error) {
			<-gate
			callErr = ctx.Err()
			return 1, nil
		}).ThenContinue("branch", func(_ context.Context, results []scheduler.Result) (*scheduler.Promise, error) {
			if _, err := scheduler.Single(results); err != nil {
				return nil, err
			}
			return scheduler.Call("follow_up", value(2)).ThenContinue("tail", func(context.Context, []scheduler.Result) (*scheduler.Promise, error) {
				followed = true
				return nil, nil
			}), nil
		}), nil
	})
	require.NoError(t, err)

	cancel()
	// new entries are refused while the issued chain drains
	require.Eventually(t, func() bool {
		_, err := rt.Invoke(context.Background(), "late", func(context.Context) (*scheduler.Promise, error) { return nil, nil })
		return errors.Is(err, scheduler.ErrStopped)
	}, time.Second, 5*time.Millisecond)

	select {
	case <-rt.Stopped():
		t.Fatal("loop stopped with a chain in flight")
	default:
	}

	close(gate)
	res, err := rc.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, scheduler.Succeeded, res.Outcome)
	require.NoError(t, callErr)
	require.True(t, followed)

	select {
	case <-rt.Stopped():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after draining")
	}
}
