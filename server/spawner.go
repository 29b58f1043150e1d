package server

import (
	"context"
	"sync"
)

// Spawner schedules the handling of a single inbound packet.
// Go may block in order to apply backpressure, it returns an error
// only if ctx is done before the task could be scheduled.
type Spawner interface {
	Go(ctx context.Context, task func()) error
	// Wait blocks until all scheduled tasks have returned.
	Wait()
}

// NewSpawner returns an unbounded spawner for limit <= 0
// and a spawner with at most limit concurrent tasks otherwise.
func NewSpawner(limit int) Spawner {
	if limit <= 0 {
		return &unboundedSpawner{}
	}
	return &boundedSpawner{
		sem: make(chan struct{}, limit),
	}
}

// one goroutine per task
type unboundedSpawner struct {
	wg sync.WaitGroup
}

func (s *unboundedSpawner) Go(ctx context.Context, task func()) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		task()
	}()
	return nil
}

func (s *unboundedSpawner) Wait() {
	s.wg.Wait()
}

// semaphore limits the number of concurrent tasks
type boundedSpawner struct {
	wg  sync.WaitGroup
	sem chan struct{}
}

func (s *boundedSpawner) Go(ctx context.Context, task func()) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.wg.Done()
		}()
		task()
	}()
	return nil
}

func (s *boundedSpawner) Wait() {
	s.wg.Wait()
}
