package concurrency

import (
	"fmt"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/wehubfusion/ce2ocf/pkg/logging"
)

// InitializeForKubernetes sets GOMAXPROCS to the container CPU quota. Call it
// at the start of a long-running command. The returned func restores the
// previous value.
func InitializeForKubernetes(logger logging.Logger) func() {
	logger = logging.OrNoOp(logger)
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		logger.Warn("Failed to set maxprocs", logging.F("error", err.Error()))
		return func() {}
	}

	logger.Info("Concurrency initialized", logging.F("gomaxprocs", runtime.GOMAXPROCS(0)))
	return undo
}
