// Package iteration runs independent jobs sequentially or on a bounded worker
// pool, returning results in job order.
package iteration

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrJobPanicked is returned for a job whose Run panicked.
var ErrJobPanicked = errors.New("job panicked")

// Pool runs jobs with the configured strategy
type Pool struct {
	config Config
}

// NewPool creates a pool with the given config
func NewPool(config Config) *Pool {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = runtime.NumCPU()
	}
	if config.Strategy == "" {
		config.Strategy = StrategyParallel
	}
	return &Pool{config: config}
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.config
}

// Run executes jobs and returns their results in job order. The first failing
// job cancels the rest and its error is returned.
func (p *Pool) Run(ctx context.Context, jobs []Job) ([]interface{}, error) {
	if len(jobs) == 0 {
		return []interface{}{}, nil
	}
	if p.config.Strategy == StrategySequential || p.config.MaxConcurrent == 1 {
		return p.runSequential(ctx, jobs)
	}
	return p.runParallel(ctx, jobs)
}

func (p *Pool) runSequential(ctx context.Context, jobs []Job) ([]interface{}, error) {
	results := make([]interface{}, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := runJob(ctx, job)
		if err != nil {
			return nil, jobError(job, i, err)
		}
		results[i] = out
	}
	return results, nil
}

func (p *Pool) runParallel(ctx context.Context, jobs []Job) ([]interface{}, error) {
	results := make([]interface{}, len(jobs))

	workers := p.config.MaxConcurrent
	if workers > len(jobs) {
		workers = len(jobs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	queue := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				out, err := runJob(ctx, jobs[idx])
				if err != nil {
					once.Do(func() {
						firstErr = jobError(jobs[idx], idx, err)
						cancel()
					})
					continue
				}
				// each index is written by exactly one worker
				results[idx] = out
			}
		}()
	}

dispatch:
	for i := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- i:
		}
	}
	close(queue)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// runJob calls job.Run, converting a panic into ErrJobPanicked.
func runJob(ctx context.Context, job Job) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

func jobError(job Job, idx int, err error) error {
	if job.Name != "" {
		return fmt.Errorf("%s: %w", job.Name, err)
	}
	return fmt.Errorf("job %d: %w", idx, err)
}
