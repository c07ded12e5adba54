package trigger

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrBusy is returned when a pass is requested while another one is
// still running.
var ErrBusy = errors.New("a pass is already running")

// Func runs one pass of the engine.
type Func func(ctx context.Context) error

// Trigger starts passes on some external signal.
type Trigger interface {
	Listen(ctx context.Context)
	Fire(ctx context.Context) error
	ID() uuid.UUID
}

// Serial wraps fn so at most one invocation runs at a time across
// every trigger sharing the returned Func. Overlapping requests fail
// with ErrBusy instead of queueing.
func Serial(fn Func) Func {
	var mu sync.Mutex
	return func(ctx context.Context) error {
		if !mu.TryLock() {
			return ErrBusy
		}
		defer mu.Unlock()
		return fn(ctx)
	}
}
