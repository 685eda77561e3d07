// Package governor sizes the worker pool against live CPU and memory
// headroom and decides when an input must be processed in forced-streaming
// mode. When the monitoring subsystem is unavailable it degrades to a
// static budget derived from core count alone instead of failing the run
package governor

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"reconfilter/internal/platform/logger"
)

// cpuBudgetPercent caps aggregate worker use of available cores
const cpuBudgetPercent = 70

// streamingPercent of available memory above which an input is forced
// into streaming mode
const streamingPercent = 10

// Budget is one run's worker plan. Not persisted; recomputed per invocation
type Budget struct {
	MaxWorkers      int
	ForceStreaming  bool
	Cores           int
	AvailableMemory uint64
	Degraded        bool // monitoring unavailable, static fallback in use
}

// Probe seams, swapped in tests
var (
	cpuCounts     = cpu.Counts
	virtualMemory = mem.VirtualMemory
)

// Plan probes live CPU and memory and sizes the budget for an input of
// the given total size. Any failed probe marks the budget degraded
func Plan(inputSize int64) Budget {
	degraded := false
	log := logger.With("governor")
	cores, err := cpuCounts(true)
	if err != nil || cores < 1 {
		log.Warn().Err(err).Msg("cpu probe unavailable; using runtime core count")
		cores = runtime.NumCPU()
		degraded = true
	}

	vm, err := virtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("memory probe unavailable; using static budget")
		return Static(cores)
	}
	b := PlanWith(inputSize, vm.Available, cores)
	b.Degraded = degraded
	return b
}

// PlanWith is the pure sizing core: workers capped at 70% of cores, never
// below one; streaming forced when the input exceeds 10% of available
// memory
func PlanWith(inputSize int64, availableMemory uint64, cores int) Budget {
	if cores < 1 {
		cores = 1
	}
	return Budget{
		MaxWorkers:      maxWorkers(cores),
		ForceStreaming:  inputSize > 0 && uint64(inputSize) > availableMemory/100*streamingPercent,
		Cores:           cores,
		AvailableMemory: availableMemory,
	}
}

// Static is the fallback budget when resource monitoring is unavailable
func Static(cores int) Budget {
	if cores < 1 {
		cores = 1
	}
	return Budget{
		MaxWorkers: maxWorkers(cores),
		Cores:      cores,
		Degraded:   true,
	}
}

func maxWorkers(cores int) int {
	w := cores * cpuBudgetPercent / 100
	if w < 1 {
		w = 1
	}
	return w
}
