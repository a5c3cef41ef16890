package iteration

import "context"

// Strategy selects how jobs are scheduled
type Strategy string

const (
	StrategySequential Strategy = "sequential" // Run jobs one after another
	StrategyParallel   Strategy = "parallel"   // Run jobs on a bounded worker pool
)

// Config holds configuration for a Pool
type Config struct {
	Strategy      Strategy // sequential or parallel
	MaxConcurrent int      // Max concurrent workers (0 = runtime.NumCPU())
}

// JobFunc produces one result
type JobFunc func(ctx context.Context) (interface{}, error)

// Job is a named unit of work. The name is used in errors.
type Job struct {
	Name string
	Run  JobFunc
}
