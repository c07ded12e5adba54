// Package worker bounds fan-out work against a cluster backend.
package worker

import (
	"context"
	"errors"
	"sync"
)

// Pool bounds concurrent goroutines using a semaphore and collects
// the errors they return.
type Pool struct {
	sem  chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit runs fn once a slot frees up. It only fails when ctx is
// cancelled before that happens.
func (p *Pool) Submit(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
		p.wg.Add(1)
		go func() {
			defer func() {
				<-p.sem
				p.wg.Done()
			}()
			if err := fn(); err != nil {
				p.mu.Lock()
				p.errs = append(p.errs, err)
				p.mu.Unlock()
			}
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted fn returned and joins their
// errors.
func (p *Pool) Wait() error {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}
