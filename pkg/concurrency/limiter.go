package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of limiter activity
type Stats struct {
	Acquired       int64
	Released       int64
	Active         int64
	PeakConcurrent int64
	TotalWait      time.Duration
}

// AverageWait is the mean time spent waiting for a slot
func (s Stats) AverageWait() time.Duration {
	if s.Acquired == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.Acquired)
}

// Limiter is a semaphore that bounds how many conversions run at once.
type Limiter struct {
	sem      chan struct{}
	wg       sync.WaitGroup
	active   atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
	peak     atomic.Int64
	waitNs   atomic.Int64
}

// NewLimiter creates a limiter with maxConcurrent slots (at least one)
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{sem: make(chan struct{}, maxConcurrent)}
}

// Capacity is the number of slots
func (l *Limiter) Capacity() int {
	return cap(l.sem)
}

// Acquire blocks until a slot is free or ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		l.waitNs.Add(time.Since(start).Nanoseconds())
		l.acquired.Add(1)
		l.updatePeak(l.active.Add(1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
		l.released.Add(1)
	default:
	}
}

// Go runs fn in a goroutine once a slot is free. It returns ctx's error
// without running fn when ctx ends first.
func (l *Limiter) Go(ctx context.Context, fn func()) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.Release()
		fn()
	}()
	return nil
}

// Wait blocks until every function started by Go has returned
func (l *Limiter) Wait() {
	l.wg.Wait()
}

// Stats returns a snapshot of the counters
func (l *Limiter) Stats() Stats {
	return Stats{
		Acquired:       l.acquired.Load(),
		Released:       l.released.Load(),
		Active:         l.active.Load(),
		PeakConcurrent: l.peak.Load(),
		TotalWait:      time.Duration(l.waitNs.Load()),
	}
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}
