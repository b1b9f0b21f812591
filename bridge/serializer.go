package bridge

import (
	"context"
	"sync"
)

// serializer admits exactly one operation at a time, releasing queued
// waiters in FIFO arrival order. The embedded engine has one execution
// context and is not reentrant, so this is the only gate between callers
// and the stream state.
type serializer struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// acquire blocks until the caller owns the critical section or ctx is done.
func (s *serializer) acquire(ctx context.Context) error {
	s.mu.Lock()
	if !s.held {
		s.held = true
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// The turn was granted concurrently with cancellation; pass it on.
		s.release()
		return ctx.Err()
	}
}

// release hands the critical section to the oldest waiter, if any.
func (s *serializer) release() {
	s.mu.Lock()
	if len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		close(ch)
		return
	}
	s.held = false
	s.mu.Unlock()
}

// runExclusive runs op inside the critical section. The section is released
// on every path out of op, including panics, so a failed request cannot
// permanently wedge the bridge.
func (s *serializer) runExclusive(ctx context.Context, op func() error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return op()
}
