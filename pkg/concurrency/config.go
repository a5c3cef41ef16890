package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Environment variables read by LoadConfig
const (
	EnvWorkers     = "CE2OCF_WORKERS"
	EnvParallelism = "CE2OCF_PARALLELISM"
	EnvMultiplier  = "CE2OCF_CONCURRENCY_MULTIPLIER"
)

// Config holds the worker counts used by the conversion service and pipeline.
//
// Workers bounds how many conversion requests run at once. Parallelism bounds
// how many documents of a single conversion are parsed at once.
type Config struct {
	Workers       int
	Parallelism   int
	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig loads concurrency configuration with priority: env vars > auto-detection
func LoadConfig() *Config {
	config := &Config{
		IsKubernetes:  isKubernetes(),
		EffectiveCPUs: runtime.GOMAXPROCS(0),
		Source:        ConfigSourceAutoDetect,
	}

	if workers := getEnvInt(EnvWorkers, 0); workers > 0 {
		config.Workers = workers
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt(EnvMultiplier, 0); multiplier > 0 {
		config.Workers = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		config.Workers = defaultWorkers(config.IsKubernetes, config.EffectiveCPUs)
	}

	if parallelism := getEnvInt(EnvParallelism, 0); parallelism > 0 {
		config.Parallelism = parallelism
	} else {
		config.Parallelism = defaultParallelism(config.IsKubernetes, config.EffectiveCPUs)
	}

	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	return config
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func defaultWorkers(isK8s bool, cpus int) int {
	if isK8s {
		return max(cpus, 2)
	}
	return max(cpus*2, 4)
}

// A conversion has a fixed number of independent documents, so parallelism
// past that count buys nothing.
func defaultParallelism(isK8s bool, cpus int) int {
	n := cpus
	if !isK8s {
		n = cpus * 2
	}
	return min(max(n, 1), 12)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Workers: %d, Parallelism: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.Workers,
		c.Parallelism,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}
