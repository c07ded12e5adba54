package http

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFireRunsPass(t *testing.T) {
	calls := 0
	h := New(func(context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, h.Fire(context.Background()))
	assert.Equal(t, 1, calls)
	assert.NotEqual(t, h.ID(), New(nil).ID())
}

func TestFireReturnsPassError(t *testing.T) {
	boom := errors.New("boom")
	h := New(func(context.Context) error { return boom })

	assert.ErrorIs(t, h.Fire(context.Background()), boom)
}

func TestListenReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New(nil)

	done := make(chan struct{})
	go func() {
		h.Listen(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listen did not return after cancel")
	}
}
