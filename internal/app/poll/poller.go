package poll

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Poller re-runs Fetch on a fixed interval while its view is open. Every cycle
// gets its own context and sequence number; starting a cycle cancels the one
// before it, and only the result of the latest started cycle reaches Apply.
type Poller[T any] struct {
	Interval time.Duration
	Fetch    func(ctx context.Context) (T, error)
	Apply    func(T)
	OnError  func(error)

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	stopped bool
	running sync.WaitGroup
}

var ErrPollerNotConfigured = errors.New("poll: fetch and apply are required")

// Run fires a cycle immediately and then on every tick until ctx is done. It
// returns after in-flight cycles have finished.
func (p *Poller[T]) Run(ctx context.Context) error {
	if p.Fetch == nil || p.Apply == nil {
		return ErrPollerNotConfigured
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	p.mu.Lock()
	p.stopped = false
	p.mu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer p.Stop()

	p.Trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Trigger(ctx)
		}
	}
}

// Trigger starts a cycle now and returns its sequence number. After Stop, or
// once ctx is done, it starts nothing and returns 0.
func (p *Poller[T]) Trigger(ctx context.Context) uint64 {
	p.mu.Lock()
	if p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		return 0
	}
	p.seq++
	seq := p.seq
	if p.cancel != nil {
		p.cancel()
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.running.Done()
		defer cancel()
		res, err := p.Fetch(cycleCtx)

		p.mu.Lock()
		defer p.mu.Unlock()
		if seq != p.seq {
			return
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) && p.OnError != nil {
				p.OnError(err)
			}
			return
		}
		p.Apply(res)
	}()
	return seq
}

// Stop cancels the current cycle, refuses new ones and waits for all cycles
// to return.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.running.Wait()
}

// Wait blocks until every started cycle has returned.
func (p *Poller[T]) Wait() {
	p.running.Wait()
}
