package state

import (
	"context"
	"fmt"
	"time"
)

// Dispatch queues fun on the event loop without waiting for it. Once the station stops, fun is dropped.
func (e *Env) Dispatch(fun func(*State) error) {
	defer func() {
		// the loop closes the channel while stopping
		if r := recover(); r != nil {
			e.Cancel(fmt.Errorf("dispatch after stop: %v", r))
		}
	}()
	if e.Stopping.Load() {
		return
	}
	select {
	case e.DispatchChannel <- fun:
	case <-e.Context.Done():
	}
}

// DispatchWait runs fun on the event loop and waits for its result. An error returned by fun is fatal
// to the station, so callers report recoverable failures in the result instead.
func (e *Env) DispatchWait(fun func(*State) (any, error)) (any, error) {
	ret := make(chan Pair[any, error], 1)
	e.Dispatch(func(s *State) error {
		res, err := fun(s)
		ret <- Pair[any, error]{res, err}
		return err
	})
	select {
	case res := <-ret:
		return res.V1, res.V2
	case <-e.Context.Done():
		return nil, context.Cause(e.Context)
	}
}

func (e *Env) repeatedTask(fun func(*State) error, delay time.Duration) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		e.Dispatch(fun)
		select {
		case <-ticker.C:
		case <-e.Context.Done():
			return
		}
	}
}

// RepeatTask dispatches fun immediately and then every delay until the station stops.
func (e *Env) RepeatTask(fun func(*State) error, delay time.Duration) {
	go e.repeatedTask(fun, delay)
}
