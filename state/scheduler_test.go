package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testEnv(t *testing.T) (*Env, chan func(*State) error) {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(nil) })
	ch := make(chan func(*State) error, 10)
	return &Env{
		DispatchChannel: ch,
		Context:         ctx,
		Cancel:          cancel,
	}, ch
}

// runLoop executes dispatched functions until ctx ends.
func runLoop(env *Env, ch chan func(*State) error) <-chan struct{} {
	done := make(chan struct{})
	s := &State{Env: env}
	go func() {
		defer close(done)
		for {
			select {
			case f := <-ch:
				if err := f(s); err != nil {
					env.Cancel(err)
				}
			case <-env.Context.Done():
				return
			}
		}
	}()
	return done
}

func TestDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	env, ch := testEnv(t)
	done := runLoop(env, ch)

	called := make(chan struct{})
	env.Dispatch(func(s *State) error {
		assert.Same(t, env, s.Env)
		close(called)
		return nil
	})
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("dispatched function was not executed")
	}
	env.Cancel(nil)
	<-done
}

func TestDispatchWait(t *testing.T) {
	defer goleak.VerifyNone(t)
	env, ch := testEnv(t)
	done := runLoop(env, ch)

	res, err := env.DispatchWait(func(s *State) (any, error) {
		return "BusportA", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "BusportA", res)

	// an error from the loop stops the station
	boom := errors.New("socket closed")
	_, err = env.DispatchWait(func(s *State) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	<-done
	assert.ErrorIs(t, context.Cause(env.Context), boom)

	_, err = env.DispatchWait(func(s *State) (any, error) {
		t.Error("ran after stop")
		return nil, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestDispatchAfterStop(t *testing.T) {
	env, ch := testEnv(t)
	env.Stopping.Store(true)
	close(ch)
	env.Dispatch(func(s *State) error { return nil })
	assert.NoError(t, env.Context.Err())

	// the channel closing before Stopping is observed is recovered
	env.Stopping.Store(false)
	env.Dispatch(func(s *State) error { return nil })
	assert.Error(t, context.Cause(env.Context))
}

func TestRepeatTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	env, ch := testEnv(t)

	count := 0
	env.RepeatTask(func(s *State) error {
		count++
		if count >= 3 {
			env.Cancel(nil)
		}
		return nil
	}, 10*time.Millisecond)
	<-runLoop(env, ch)
	assert.GreaterOrEqual(t, count, 3)
}
